package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublishTicketEvent(t *testing.T) {
	writer := new(MockWriter)
	var sent []kafka.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	p := &Producer{Writer: writer, Topic: "raffle-ticket-events", Logger: logger.NewWithWriter("test", nil)}
	ticket := &models.Ticket{
		ID:          "t1",
		EventID:     "event-1",
		VendorEmail: "v@example.com",
		Amount:      0.4,
		Rows:        []models.TicketRow{{Number: "07", Quantity: 2}},
	}

	require.NoError(t, p.PublishTicketEvent(context.Background(), models.TicketCreated, ticket))
	require.Len(t, sent, 1)
	assert.Equal(t, "event-1", string(sent[0].Key))

	var evt models.TicketEvent
	require.NoError(t, json.Unmarshal(sent[0].Value, &evt))
	assert.Equal(t, models.TicketCreated, evt.Type)
	assert.Equal(t, "t1", evt.TicketID)
	assert.Equal(t, ticket.Rows, evt.Rows)
}

func TestPublishTicketEventWriteError(t *testing.T) {
	writer := new(MockWriter)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	p := &Producer{Writer: writer, Topic: "raffle-ticket-events", Logger: logger.NewWithWriter("test", nil)}
	err := p.PublishTicketEvent(context.Background(), models.TicketDeleted, &models.Ticket{ID: "t1", EventID: "event-1"})
	assert.ErrorContains(t, err, "broker down")
}
