package limit_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	limitsvc "ms-raffle/internal/limits/service"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/sse"
	"ms-raffle/internal/utils"
)

type LimitService interface {
	GetNumberLimits(ctx context.Context, eventID string, bypassCache bool) []models.NumberLimit
	UpdateNumberLimit(ctx context.Context, eventID, numberRange string, maxTimes int) (*models.NumberLimit, error)
	DeleteNumberLimit(ctx context.Context, limitID string) error
	CheckNumberAvailability(ctx context.Context, eventID, number string, qty int) models.Availability
}

type Handler struct {
	Limits  LimitService
	Emitter *sse.LimitsEmitter
	Logger  *logger.Logger
}

func NewHandler(limits LimitService, emitter *sse.LimitsEmitter, log *logger.Logger) *Handler {
	return &Handler{Limits: limits, Emitter: emitter, Logger: log}
}

// RegisterRoutes mounts the limit endpoints under an /api router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{eventId}/limits", h.ListLimits)
	r.Put("/events/{eventId}/limits", h.UpsertLimit)
	r.Get("/events/{eventId}/limits/stream", h.StreamLimits)
	r.Get("/events/{eventId}/availability", h.CheckAvailability)
	r.Delete("/limits/{limitId}", h.DeleteLimit)
}

func (h *Handler) ListLimits(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	bypass, _ := strconv.ParseBool(r.URL.Query().Get("bypassCache"))
	utils.WriteJSON(w, http.StatusOK, h.Limits.GetNumberLimits(r.Context(), eventID, bypass))
}

func (h *Handler) UpsertLimit(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var req models.NumberLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	limit, err := h.Limits.UpdateNumberLimit(r.Context(), eventID, req.NumberRange, req.MaxTimes)
	if errors.Is(err, limitsvc.ErrInvalidLimit) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid number limit", err)
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to save number limit", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, limit)
}

func (h *Handler) DeleteLimit(w http.ResponseWriter, r *http.Request) {
	err := h.Limits.DeleteNumberLimit(r.Context(), chi.URLParam(r, "limitId"))
	if errors.Is(err, limitsvc.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Number limit not found", nil)
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to delete number limit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	number := r.URL.Query().Get("number")
	qty := 1
	if raw := r.URL.Query().Get("qty"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "qty must be an integer", err)
			return
		}
		qty = parsed
	}
	utils.WriteJSON(w, http.StatusOK, h.Limits.CheckNumberAvailability(r.Context(), eventID, number, qty))
}

// StreamLimits sends the current list, then a fresh list after every change
func (h *Handler) StreamLimits(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	if h.Emitter == nil {
		http.Error(w, "Live limits are not available", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	updates, err := h.Emitter.Subscribe(ctx, eventID)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("limits stream for event %s: %v", eventID, err))
		http.Error(w, "Live limits are not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.writeEvent(w, "limits", h.Limits.GetNumberLimits(ctx, eventID, false))
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to limits stream of event %s", eventID))

	for {
		select {
		case limits, ok := <-updates:
			if !ok {
				return
			}
			h.writeEvent(w, "limits", limits)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client left limits stream of event %s", eventID))
			return
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize %s event: %v", event, err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
