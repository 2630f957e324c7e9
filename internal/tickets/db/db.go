package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-raffle/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if _, err := d.Bun.NewInsert().Model(ticket).Exec(ctx); err != nil {
		return fmt.Errorf("insert ticket %s: %w", ticket.ID, err)
	}
	return nil
}

// GetTicketByID returns nil, nil when the ticket does not exist
func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return &ticket, nil
}

func (d *DB) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model(ticket).
		Column("client_name", "amount", "numbers", "rows", "vendor_email", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", ticket.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update ticket %s: %w", ticket.ID, sql.ErrNoRows)
	}
	return nil
}

func (d *DB) DeleteTicket(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete ticket %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete ticket %s: %w", id, err)
	}
	return n > 0, nil
}

// ListTickets returns the event's tickets newest first. An empty vendorEmail
// lists every vendor's tickets.
func (d *DB) ListTickets(ctx context.Context, eventID, vendorEmail string) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	q := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Order("created_at DESC")
	if vendorEmail != "" {
		q = q.Where("vendor_email = ?", vendorEmail)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list tickets for event %s: %w", eventID, err)
	}
	return tickets, nil
}

// TicketExists looks for another ticket of the same client sold by the same
// vendor in the event. excludeID skips the ticket being updated.
func (d *DB) TicketExists(ctx context.Context, eventID, clientName, vendorEmail, excludeID string) (bool, error) {
	q := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("client_name = ?", clientName).
		Where("vendor_email = ?", vendorEmail)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check duplicate ticket for %s: %w", clientName, err)
	}
	return exists, nil
}

// AssignUnassigned hands every ticket of the event without a vendor to vendorEmail
func (d *DB) AssignUnassigned(ctx context.Context, eventID, vendorEmail string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("vendor_email = ?", vendorEmail).
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Where("vendor_email IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("assign tickets of event %s: %w", eventID, err)
	}
	return res.RowsAffected()
}
