package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DefaultPricePerTime is the unit price of one sold "time" of a number
const DefaultPricePerTime = 0.20

// TicketRow is one (number, quantity) line of a ticket
type TicketRow struct {
	Number   string `json:"number"`
	Quantity int    `json:"quantity"`
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          string      `bun:"id,pk" json:"id"`
	EventID     string      `bun:"event_id,notnull" json:"event_id"`
	ClientName  string      `bun:"client_name,notnull" json:"client_name"`
	Amount      float64     `bun:"amount" json:"amount"`
	Numbers     string      `bun:"numbers" json:"numbers"`
	Rows        []TicketRow `bun:"rows,type:jsonb" json:"rows"`
	VendorEmail string      `bun:"vendor_email,nullzero" json:"vendor_email,omitempty"`
	CreatedAt   time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// TicketDraft is what a vendor submits when selling a ticket
type TicketDraft struct {
	ClientName string      `json:"client_name"`
	Numbers    string      `json:"numbers"`
	Rows       []TicketRow `json:"rows"`
}

// TotalQuantity sums every row quantity, ignoring non-positive rows
func TotalQuantity(rows []TicketRow) int {
	total := 0
	for _, row := range rows {
		if row.Quantity > 0 {
			total += row.Quantity
		}
	}
	return total
}
