package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topic: topic, Logger: log}
}

// PublishTicketEvent keys messages by event id so one event's ticket history
// stays ordered within a partition
func (p *Producer) PublishTicketEvent(ctx context.Context, eventType string, ticket *models.Ticket) error {
	evt := models.TicketEvent{
		Type:      eventType,
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		Vendor:    ticket.VendorEmail,
		Rows:      ticket.Rows,
		Amount:    ticket.Amount,
		Timestamp: time.Now().UTC(),
	}
	msgBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ticket.EventID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(eventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s for ticket %s: %w", eventType, ticket.ID, err)
	}
	p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("%s ticket=%s", eventType, ticket.ID))
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}
