package models

import "time"

const (
	TicketCreated = "ticket.created"
	TicketUpdated = "ticket.updated"
	TicketDeleted = "ticket.deleted"
)

// TicketEvent is published to Kafka after a ticket transaction commits
type TicketEvent struct {
	Type      string      `json:"type"`
	TicketID  string      `json:"ticket_id"`
	EventID   string      `json:"event_id"`
	Vendor    string      `json:"vendor_email,omitempty"`
	Rows      []TicketRow `json:"rows,omitempty"`
	Amount    float64     `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}
