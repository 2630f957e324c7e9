package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	tickets "ms-raffle/internal/tickets/service"
	"ms-raffle/internal/utils"
)

const IdempotencyHeader = "Idempotency-Key"

type TicketService interface {
	CreateTicket(ctx context.Context, draft models.TicketDraft, eventID, vendorEmail, idempotencyKey string) (*models.Ticket, *models.FailureResult)
	UpdateTicket(ctx context.Context, ticket models.Ticket, eventID, vendorEmail string) (*models.Ticket, *models.FailureResult)
	DeleteTicket(ctx context.Context, ticketID, eventID, vendorEmail string) bool
	GetTicket(ctx context.Context, ticketID, eventID, vendorEmail string) (*models.Ticket, error)
	ListTickets(ctx context.Context, eventID, vendorEmail string) []models.Ticket
	MigrateUnassignedTickets(ctx context.Context, eventID, vendorEmail string) (int64, error)
	ReceiptQR(ctx context.Context, ticketID, eventID, vendorEmail string) ([]byte, error)
	VerifyReceipt(ctx context.Context, eventID, payload string) (*models.Ticket, error)
	SalesReport(ctx context.Context, eventID, vendorEmail string) (*models.SalesReport, error)
}

type Handler struct {
	TicketService TicketService
	Logger        *logger.Logger
}

func NewHandler(svc TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: svc, Logger: log}
}

// RegisterRoutes mounts the ticket endpoints under an authenticated /api router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events/{eventId}/tickets", func(r chi.Router) {
		r.Get("/", h.ListTickets)
		r.Post("/", h.CreateTicket)
		r.Post("/migrate", h.MigrateTickets)
		r.Post("/verify", h.VerifyReceipt)
		r.Get("/report", h.SalesReport)
		r.Get("/{ticketId}", h.ViewTicket)
		r.Put("/{ticketId}", h.UpdateTicket)
		r.Delete("/{ticketId}", h.DeleteTicket)
		r.Get("/{ticketId}/qr", h.ReceiptQR)
	})
}

// failureStatus maps a rejected transaction to an HTTP status
func failureStatus(failure *models.FailureResult) int {
	switch failure.Status {
	case models.StatusError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var draft models.TicketDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ticket, failure := h.TicketService.CreateTicket(r.Context(), draft, eventID, auth.VendorEmail(r.Context()), r.Header.Get(IdempotencyHeader))
	if failure != nil {
		utils.WriteJSON(w, failureStatus(failure), failure)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var ticket models.Ticket
	if err := json.NewDecoder(r.Body).Decode(&ticket); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ticket.ID = chi.URLParam(r, "ticketId")

	updated, failure := h.TicketService.UpdateTicket(r.Context(), ticket, eventID, auth.VendorEmail(r.Context()))
	if failure != nil {
		utils.WriteJSON(w, failureStatus(failure), failure)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	ok := h.TicketService.DeleteTicket(r.Context(), chi.URLParam(r, "ticketId"), chi.URLParam(r, "eventId"), auth.VendorEmail(r.Context()))
	if !ok {
		utils.WriteError(w, http.StatusBadRequest, "Ticket could not be deleted", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"), chi.URLParam(r, "eventId"), auth.VendorEmail(r.Context()))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, ticket)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.TicketService.ListTickets(r.Context(), chi.URLParam(r, "eventId"), auth.VendorEmail(r.Context())))
}

func (h *Handler) MigrateTickets(w http.ResponseWriter, r *http.Request) {
	n, err := h.TicketService.MigrateUnassignedTickets(r.Context(), chi.URLParam(r, "eventId"), auth.VendorEmail(r.Context()))
	if errors.Is(err, tickets.ErrNoVendor) {
		utils.WriteError(w, http.StatusUnauthorized, "Vendor identity required", err)
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to migrate tickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int64{"migrated": n})
}

func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.TicketService.SalesReport(r.Context(), chi.URLParam(r, "eventId"), auth.VendorEmail(r.Context()))
	if errors.Is(err, tickets.ErrNoVendor) {
		utils.WriteError(w, http.StatusUnauthorized, "Vendor identity required", err)
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to build sales report", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) ReceiptQR(w http.ResponseWriter, r *http.Request) {
	img, err := h.TicketService.ReceiptQR(r.Context(), chi.URLParam(r, "ticketId"), chi.URLParam(r, "eventId"), auth.VendorEmail(r.Context()))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// VerifyReceipt expects {"encrypted_qr": "..."} as scanned from a receipt
func (h *Handler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EncryptedQR == "" {
		utils.WriteError(w, http.StatusBadRequest, "encrypted_qr is required", err)
		return
	}

	ticket, err := h.TicketService.VerifyReceipt(r.Context(), chi.URLParam(r, "eventId"), body.EncryptedQR)
	if err != nil {
		h.Logger.Warn("TICKETS", fmt.Sprintf("receipt verification failed: %v", err))
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "reason": err.Error()})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "ticket": ticket})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tickets.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Ticket not found", nil)
	case errors.Is(err, tickets.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Ticket belongs to another vendor", nil)
	default:
		h.Logger.Error("TICKETS", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load ticket", err)
	}
}
