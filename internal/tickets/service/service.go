package tickets

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	qr "ms-raffle/internal/tickets/qr_genrator"
	"ms-raffle/internal/utils"
)

type TicketDBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	DeleteTicket(ctx context.Context, id string) (bool, error)
	ListTickets(ctx context.Context, eventID, vendorEmail string) ([]models.Ticket, error)
	TicketExists(ctx context.Context, eventID, clientName, vendorEmail, excludeID string) (bool, error)
	AssignUnassigned(ctx context.Context, eventID, vendorEmail string) (int64, error)
}

type AvailabilityChecker interface {
	Check(ctx context.Context, eventID, number string, qty int) models.Availability
}

type CounterMutator interface {
	Increment(ctx context.Context, eventID, number string, qty int) bool
	Decrement(ctx context.Context, eventID, number string, qty int) bool
	Compensate(ctx context.Context, eventID, number string, qty int) bool
	Restore(ctx context.Context, eventID, number string, qty int) bool
}

type InFlightGuard interface {
	Acquire(ctx context.Context, idempotencyKey, owner string) (bool, error)
	Release(ctx context.Context, idempotencyKey, owner string) error
}

type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, eventType string, ticket *models.Ticket) error
}

// TicketService runs create, update and delete as sequences of counter
// mutations with compensation, persisting the ticket only once every counter
// change has been applied
type TicketService struct {
	DB           TicketDBLayer
	Checker      AvailabilityChecker
	Counter      CounterMutator
	Guard        InFlightGuard
	Publisher    EventPublisher
	QR           *qr.QRGenerator
	Logger       *logger.Logger
	PricePerTime float64

	tracer trace.Tracer
}

// NewTicketService leaves Guard, Publisher and QR unset, callers wire them
// when redis, kafka and a QR secret are available
func NewTicketService(db TicketDBLayer, checker AvailabilityChecker, counter CounterMutator, log *logger.Logger, pricePerTime float64) *TicketService {
	if pricePerTime <= 0 {
		pricePerTime = models.DefaultPricePerTime
	}
	return &TicketService{
		DB:           db,
		Checker:      checker,
		Counter:      counter,
		Logger:       log,
		PricePerTime: pricePerTime,
		tracer:       otel.Tracer("ms-raffle/tickets"),
	}
}

// CreateTicket sells a new ticket. Exactly one of the results is non-nil.
func (s *TicketService) CreateTicket(ctx context.Context, draft models.TicketDraft, eventID, vendorEmail, idempotencyKey string) (*models.Ticket, *models.FailureResult) {
	ctx, span := s.startSpan(ctx, "tickets.create", eventID)
	defer span.End()

	if vendorEmail == "" {
		return nil, models.NewFailure(models.StatusError, "A vendor identity is required to sell tickets")
	}
	if draft.ClientName == "" || eventID == "" {
		return nil, models.NewFailure(models.StatusError, "Client name and event are required")
	}
	if ctx.Err() != nil {
		return nil, cancelled()
	}

	if idempotencyKey != "" && s.Guard != nil {
		owner := utils.NewID()
		acquired, err := s.Guard.Acquire(ctx, idempotencyKey, owner)
		if err != nil {
			s.Logger.Warn("TICKETS", fmt.Sprintf("submission guard unavailable, continuing without it: %v", err))
		} else if !acquired {
			return nil, models.NewFailure(models.StatusInfo, "This ticket is already being processed, please wait")
		} else {
			defer func() {
				if err := s.Guard.Release(context.WithoutCancel(ctx), idempotencyKey, owner); err != nil {
					s.Logger.Warn("TICKETS", err.Error())
				}
			}()
		}
	}

	consolidated := Consolidate(draft.Rows)
	if failure := validateQuantities(consolidated); failure != nil {
		return nil, failure
	}

	// fail fast with a precise message before anything is written
	for _, nq := range consolidated {
		if failure := s.checkNumber(ctx, eventID, nq.Number, nq.Qty, models.StatusWarning, ""); failure != nil {
			return nil, failure
		}
	}

	rows := normalizeRows(draft.Rows)
	for _, row := range rows {
		if failure := s.checkNumber(ctx, eventID, row.Number, row.Quantity, models.StatusWarning, ""); failure != nil {
			return nil, failure
		}
	}

	if s.isDuplicate(ctx, eventID, draft.ClientName, vendorEmail, "") {
		return nil, models.NewFailure(models.StatusError, fmt.Sprintf("A ticket for %s already exists for this vendor", draft.ClientName))
	}

	for _, nq := range consolidated {
		msg := fmt.Sprintf("Number %s is no longer available, another vendor may have sold it in the meantime", nq.Number)
		if failure := s.checkNumber(ctx, eventID, nq.Number, nq.Qty, models.StatusError, msg); failure != nil {
			return nil, failure
		}
	}

	applied, failure := s.incrementAll(ctx, eventID, rows)
	if failure != nil {
		return nil, failure
	}

	total := models.TotalQuantity(rows)
	ticket := &models.Ticket{
		ID:          utils.NewID(),
		EventID:     eventID,
		ClientName:  draft.ClientName,
		Amount:      s.amount(total),
		Numbers:     displayNumbers(draft.Numbers, consolidated),
		Rows:        rows,
		VendorEmail: vendorEmail,
	}
	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to save ticket for %s, releasing %d counters: %v", draft.ClientName, len(applied), err))
		s.compensateAll(ctx, eventID, applied)
		return nil, models.NewFailure(models.StatusError, "The ticket could not be saved, no numbers were sold")
	}

	s.Logger.Info("TICKETS", fmt.Sprintf("ticket %s created for %s (%d units, %.2f)", ticket.ID, ticket.ClientName, total, ticket.Amount))
	span.SetAttributes(attribute.String("raffle.ticket_id", ticket.ID))
	s.publish(ctx, models.TicketCreated, ticket)
	return ticket, nil
}

// UpdateTicket replaces the rows and client of an existing ticket, moving only
// the per-number difference through the counters
func (s *TicketService) UpdateTicket(ctx context.Context, ticket models.Ticket, eventID, vendorEmail string) (*models.Ticket, *models.FailureResult) {
	ctx, span := s.startSpan(ctx, "tickets.update", eventID)
	defer span.End()

	if vendorEmail == "" {
		return nil, models.NewFailure(models.StatusError, "A vendor identity is required to modify tickets")
	}
	if ctx.Err() != nil {
		return nil, cancelled()
	}

	original, err := s.DB.GetTicketByID(ctx, ticket.ID)
	if err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to load ticket %s: %v", ticket.ID, err))
		return nil, models.NewFailure(models.StatusError, "The ticket could not be loaded")
	}
	if original == nil || original.EventID != eventID {
		return nil, models.NewFailure(models.StatusError, "Ticket not found")
	}
	if !canModify(original, vendorEmail) {
		s.Logger.Warn("AUTH", fmt.Sprintf("%s tried to modify ticket %s owned by %s", vendorEmail, original.ID, original.VendorEmail))
		return nil, models.NewFailure(models.StatusError, "You can only modify your own tickets")
	}

	clientName := ticket.ClientName
	if clientName == "" {
		clientName = original.ClientName
	}

	newConsolidated := Consolidate(ticket.Rows)
	if failure := validateQuantities(newConsolidated); failure != nil {
		return nil, failure
	}
	if clientName != original.ClientName && s.isDuplicate(ctx, eventID, clientName, vendorEmail, original.ID) {
		return nil, models.NewFailure(models.StatusError, fmt.Sprintf("A ticket for %s already exists for this vendor", clientName))
	}

	oldConsolidated := Consolidate(original.Rows)
	oldQty := quantities(oldConsolidated)
	newQty := quantities(newConsolidated)

	// release first so the increments below see the freed capacity. Until the
	// ticket is saved it still holds these units, so every failure below puts
	// them back.
	released := []models.TicketRow{}
	for _, nq := range oldConsolidated {
		if reduction := nq.Qty - newQty[nq.Number]; reduction > 0 {
			if !s.Counter.Decrement(ctx, eventID, nq.Number, reduction) {
				s.Logger.Error("COUNTER", fmt.Sprintf("failed to release %d of number %s while updating ticket %s", reduction, nq.Number, original.ID))
				continue
			}
			released = append(released, models.TicketRow{Number: nq.Number, Quantity: reduction})
		}
	}

	increases := []models.TicketRow{}
	for _, nq := range newConsolidated {
		if delta := nq.Qty - oldQty[nq.Number]; delta > 0 {
			increases = append(increases, models.TicketRow{Number: nq.Number, Quantity: delta})
		}
	}
	for _, inc := range increases {
		if failure := s.checkNumber(ctx, eventID, inc.Number, inc.Quantity, models.StatusWarning, ""); failure != nil {
			s.restoreAll(ctx, eventID, released)
			return nil, failure
		}
	}

	applied, failure := s.incrementAll(ctx, eventID, increases)
	if failure != nil {
		s.restoreAll(ctx, eventID, released)
		return nil, failure
	}

	rows := normalizeRows(ticket.Rows)
	updated := *original
	updated.ClientName = clientName
	updated.Rows = rows
	updated.Amount = s.amount(models.TotalQuantity(rows))
	updated.Numbers = displayNumbers(ticket.Numbers, newConsolidated)
	updated.VendorEmail = vendorEmail

	if err := s.DB.UpdateTicket(ctx, &updated); err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to save ticket %s, undoing %d increments and %d releases: %v", original.ID, len(applied), len(released), err))
		s.compensateAll(ctx, eventID, applied)
		s.restoreAll(ctx, eventID, released)
		return nil, models.NewFailure(models.StatusError, "The ticket could not be updated")
	}

	s.Logger.Info("TICKETS", fmt.Sprintf("ticket %s updated by %s", updated.ID, vendorEmail))
	s.publish(ctx, models.TicketUpdated, &updated)
	return &updated, nil
}

// DeleteTicket removes the ticket and then releases its numbers. Only the
// call that actually removed the row releases, so concurrent deletes of the
// same ticket free its units once. Counter failures are logged and leave the
// counter over-reporting.
func (s *TicketService) DeleteTicket(ctx context.Context, ticketID, eventID, vendorEmail string) bool {
	ctx, span := s.startSpan(ctx, "tickets.delete", eventID)
	defer span.End()

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to load ticket %s for deletion: %v", ticketID, err))
		return false
	}
	if ticket == nil || ticket.EventID != eventID {
		s.Logger.Warn("TICKETS", fmt.Sprintf("ticket %s not found in event %s", ticketID, eventID))
		return false
	}
	if !canModify(ticket, vendorEmail) {
		s.Logger.Warn("AUTH", fmt.Sprintf("%s tried to delete ticket %s owned by %s", vendorEmail, ticketID, ticket.VendorEmail))
		return false
	}

	removed, err := s.DB.DeleteTicket(ctx, ticketID)
	if err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to delete ticket %s: %v", ticketID, err))
		return false
	}
	if !removed {
		s.Logger.Warn("TICKETS", fmt.Sprintf("ticket %s was already deleted, nothing to release", ticketID))
		return false
	}

	releaseCtx := context.WithoutCancel(ctx)
	for _, nq := range Consolidate(ticket.Rows) {
		if nq.Qty <= 0 {
			continue
		}
		if !s.Counter.Decrement(releaseCtx, eventID, nq.Number, nq.Qty) {
			s.Logger.Error("COUNTER", fmt.Sprintf("failed to release %d of number %s after deleting ticket %s", nq.Qty, nq.Number, ticketID))
		}
	}

	s.Logger.Info("TICKETS", fmt.Sprintf("ticket %s deleted by %s", ticketID, vendorEmail))
	s.publish(ctx, models.TicketDeleted, ticket)
	return true
}

// GetTicket enforces the same ownership rule as mutations
func (s *TicketService) GetTicket(ctx context.Context, ticketID, eventID, vendorEmail string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil || ticket.EventID != eventID {
		return nil, ErrNotFound
	}
	if !canModify(ticket, vendorEmail) {
		return nil, ErrForbidden
	}
	return ticket, nil
}

// ListTickets returns the vendor's tickets for an event, empty on failure or cancellation
func (s *TicketService) ListTickets(ctx context.Context, eventID, vendorEmail string) []models.Ticket {
	if ctx.Err() != nil || vendorEmail == "" {
		return []models.Ticket{}
	}
	tickets, err := s.DB.ListTickets(ctx, eventID, vendorEmail)
	if ctx.Err() != nil {
		return []models.Ticket{}
	}
	if err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to list tickets of event %s: %v", eventID, err))
		return []models.Ticket{}
	}
	return tickets
}

// MigrateUnassignedTickets gives every ticket without a vendor to vendorEmail
func (s *TicketService) MigrateUnassignedTickets(ctx context.Context, eventID, vendorEmail string) (int64, error) {
	if vendorEmail == "" {
		return 0, ErrNoVendor
	}
	n, err := s.DB.AssignUnassigned(ctx, eventID, vendorEmail)
	if err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to migrate tickets of event %s: %v", eventID, err))
		return 0, err
	}
	if n > 0 {
		s.Logger.Info("TICKETS", fmt.Sprintf("%d unassigned tickets of event %s assigned to %s", n, eventID, vendorEmail))
	}
	return n, nil
}

// ReceiptQR renders the encrypted receipt of a ticket as a PNG
func (s *TicketService) ReceiptQR(ctx context.Context, ticketID, eventID, vendorEmail string) ([]byte, error) {
	if s.QR == nil {
		return nil, errors.New("receipt QR codes are not configured")
	}
	ticket, err := s.GetTicket(ctx, ticketID, eventID, vendorEmail)
	if err != nil {
		return nil, err
	}
	return s.QR.GenerateReceiptQR(qr.NewReceipt(ticket), 256)
}

// VerifyReceipt decrypts a scanned QR payload and confirms the ticket still
// exists with the same rows
func (s *TicketService) VerifyReceipt(ctx context.Context, eventID, payload string) (*models.Ticket, error) {
	if s.QR == nil {
		return nil, errors.New("receipt QR codes are not configured")
	}
	receipt, err := s.QR.Decrypt(payload)
	if err != nil {
		return nil, err
	}
	if receipt.EventID != eventID {
		return nil, ErrNotFound
	}
	ticket, err := s.DB.GetTicketByID(ctx, receipt.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ErrNotFound
	}
	if !sameRows(ticket.Rows, receipt.Rows) {
		return nil, fmt.Errorf("ticket %s changed after the receipt was issued", ticket.ID)
	}
	return ticket, nil
}

// incrementAll applies rows in order. On the first failure it compensates the
// rows already applied and reports the failing number.
func (s *TicketService) incrementAll(ctx context.Context, eventID string, rows []models.TicketRow) ([]models.TicketRow, *models.FailureResult) {
	applied := make([]models.TicketRow, 0, len(rows))
	for _, row := range rows {
		if row.Quantity <= 0 {
			continue
		}
		if !s.Counter.Increment(ctx, eventID, row.Number, row.Quantity) {
			if ctx.Err() != nil {
				s.compensateAll(ctx, eventID, applied)
				return nil, cancelled()
			}
			s.Logger.Warn("TICKETS", fmt.Sprintf("increment of number %s failed, compensating %d applied rows", row.Number, len(applied)))
			s.compensateAll(ctx, eventID, applied)
			remaining := s.remaining(ctx, eventID, row.Number)
			return nil, models.NewNumberFailure(models.StatusError,
				fmt.Sprintf("Could not sell %d of number %s, only %d left", row.Quantity, row.Number, remaining),
				row.Number, remaining, row.Quantity)
		}
		applied = append(applied, row)
	}
	return applied, nil
}

func (s *TicketService) compensateAll(ctx context.Context, eventID string, applied []models.TicketRow) {
	ctx = context.WithoutCancel(ctx)
	for _, row := range applied {
		if !s.Counter.Compensate(ctx, eventID, row.Number, row.Quantity) {
			s.Logger.Error("COUNTER", fmt.Sprintf("compensation of %d on number %s in event %s failed, counter may over-report sales", row.Quantity, row.Number, eventID))
		}
	}
}

// restoreAll puts back units released by an update that did not complete
func (s *TicketService) restoreAll(ctx context.Context, eventID string, released []models.TicketRow) {
	ctx = context.WithoutCancel(ctx)
	for _, row := range released {
		if !s.Counter.Restore(ctx, eventID, row.Number, row.Quantity) {
			s.Logger.Error("COUNTER", fmt.Sprintf("restoring %d on number %s in event %s failed, counter may under-report sales", row.Quantity, row.Number, eventID))
		}
	}
}

func cancelled() *models.FailureResult {
	return models.NewFailure(models.StatusInfo, "The request was cancelled before the ticket was saved")
}

// checkNumber returns a failure when qty units of number cannot be sold.
// An empty message produces the standard "only N left" text.
func (s *TicketService) checkNumber(ctx context.Context, eventID, number string, qty int, status models.FailureStatus, message string) *models.FailureResult {
	availability := s.Checker.Check(ctx, eventID, number, qty)
	if availability.Available {
		return nil
	}
	if ctx.Err() != nil {
		return cancelled()
	}
	if availability.Unverified {
		return models.NewNumberFailure(models.StatusError,
			fmt.Sprintf("Availability of number %s could not be verified, please try again", number),
			number, 0, qty)
	}
	if message == "" {
		if availability.Remaining == 0 {
			message = fmt.Sprintf("Number %s is sold out", number)
		} else {
			message = fmt.Sprintf("Only %d of number %s left, %d requested", availability.Remaining, number, qty)
		}
	}
	return models.NewNumberFailure(status, message, number, availability.Remaining, qty)
}

func (s *TicketService) remaining(ctx context.Context, eventID, number string) int {
	return s.Checker.Check(context.WithoutCancel(ctx), eventID, number, 1).Remaining
}

// isDuplicate treats lookup failures as "not a duplicate"
func (s *TicketService) isDuplicate(ctx context.Context, eventID, clientName, vendorEmail, excludeID string) bool {
	exists, err := s.DB.TicketExists(ctx, eventID, clientName, vendorEmail, excludeID)
	if err != nil {
		s.Logger.Warn("TICKETS", fmt.Sprintf("duplicate check failed for %s: %v", clientName, err))
		return false
	}
	return exists
}

func (s *TicketService) publish(ctx context.Context, eventType string, ticket *models.Ticket) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishTicketEvent(context.WithoutCancel(ctx), eventType, ticket); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish %s: %v", eventType, err))
	}
}

func (s *TicketService) amount(totalQty int) float64 {
	return math.Round(float64(totalQty)*s.PricePerTime*100) / 100
}

func (s *TicketService) startSpan(ctx context.Context, name, eventID string) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = otel.Tracer("ms-raffle/tickets")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("raffle.event_id", eventID)))
}

func validateQuantities(consolidated []NumberQty) *models.FailureResult {
	if len(consolidated) == 0 {
		return models.NewFailure(models.StatusError, "A ticket needs at least one number")
	}
	for _, nq := range consolidated {
		if !isNumeric(nq.Number) {
			return models.NewNumberFailure(models.StatusError, fmt.Sprintf("%q is not a valid number", nq.Number), nq.Number, 0, nq.Qty)
		}
		if nq.Qty <= 0 {
			return models.NewNumberFailure(models.StatusError, fmt.Sprintf("Quantity for number %s must be greater than zero", nq.Number), nq.Number, 0, nq.Qty)
		}
	}
	return nil
}

// canModify allows the owning vendor, or anyone when the ticket is unassigned
func canModify(ticket *models.Ticket, vendorEmail string) bool {
	return ticket.VendorEmail == "" || ticket.VendorEmail == vendorEmail
}

func displayNumbers(given string, consolidated []NumberQty) string {
	if given != "" {
		return given
	}
	return numbersLabel(consolidated)
}

func sameRows(a, b []models.TicketRow) bool {
	qa, qb := quantities(Consolidate(a)), quantities(Consolidate(b))
	if len(qa) != len(qb) {
		return false
	}
	for number, qty := range qa {
		if qb[number] != qty {
			return false
		}
	}
	return true
}
