package ticket_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	tickets "ms-raffle/internal/tickets/service"
)

type MockTicketService struct {
	mock.Mock
}

func (m *MockTicketService) CreateTicket(ctx context.Context, draft models.TicketDraft, eventID, vendorEmail, key string) (*models.Ticket, *models.FailureResult) {
	args := m.Called(ctx, draft, eventID, vendorEmail, key)
	ticket, _ := args.Get(0).(*models.Ticket)
	failure, _ := args.Get(1).(*models.FailureResult)
	return ticket, failure
}

func (m *MockTicketService) UpdateTicket(ctx context.Context, ticket models.Ticket, eventID, vendorEmail string) (*models.Ticket, *models.FailureResult) {
	args := m.Called(ctx, ticket, eventID, vendorEmail)
	updated, _ := args.Get(0).(*models.Ticket)
	failure, _ := args.Get(1).(*models.FailureResult)
	return updated, failure
}

func (m *MockTicketService) DeleteTicket(ctx context.Context, ticketID, eventID, vendorEmail string) bool {
	return m.Called(ctx, ticketID, eventID, vendorEmail).Bool(0)
}

func (m *MockTicketService) GetTicket(ctx context.Context, ticketID, eventID, vendorEmail string) (*models.Ticket, error) {
	args := m.Called(ctx, ticketID, eventID, vendorEmail)
	ticket, _ := args.Get(0).(*models.Ticket)
	return ticket, args.Error(1)
}

func (m *MockTicketService) ListTickets(ctx context.Context, eventID, vendorEmail string) []models.Ticket {
	return m.Called(ctx, eventID, vendorEmail).Get(0).([]models.Ticket)
}

func (m *MockTicketService) MigrateUnassignedTickets(ctx context.Context, eventID, vendorEmail string) (int64, error) {
	args := m.Called(ctx, eventID, vendorEmail)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTicketService) ReceiptQR(ctx context.Context, ticketID, eventID, vendorEmail string) ([]byte, error) {
	args := m.Called(ctx, ticketID, eventID, vendorEmail)
	img, _ := args.Get(0).([]byte)
	return img, args.Error(1)
}

func (m *MockTicketService) VerifyReceipt(ctx context.Context, eventID, payload string) (*models.Ticket, error) {
	args := m.Called(ctx, eventID, payload)
	ticket, _ := args.Get(0).(*models.Ticket)
	return ticket, args.Error(1)
}

func (m *MockTicketService) SalesReport(ctx context.Context, eventID, vendorEmail string) (*models.SalesReport, error) {
	args := m.Called(ctx, eventID, vendorEmail)
	report, _ := args.Get(0).(*models.SalesReport)
	return report, args.Error(1)
}

const vendor = "v@example.com"

func router(svc *MockTicketService) http.Handler {
	h := NewHandler(svc, logger.NewWithWriter("test", nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), auth.Identity{Subject: "u1", Email: vendor})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/api", h.RegisterRoutes)
	return r
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateTicketPassesIdentityAndKey(t *testing.T) {
	svc := new(MockTicketService)
	created := &models.Ticket{ID: "t1", EventID: "event-1", ClientName: "Ana"}
	svc.On("CreateTicket", mock.Anything, mock.MatchedBy(func(d models.TicketDraft) bool {
		return d.ClientName == "Ana" && len(d.Rows) == 1
	}), "event-1", vendor, "key-1").Return(created, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/events/event-1/tickets", strings.NewReader(`{"client_name":"Ana","rows":[{"number":"07","quantity":2}]}`))
	req.Header.Set(IdempotencyHeader, "key-1")
	rec := serve(router(svc), req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestCreateTicketFailureStatusMapping(t *testing.T) {
	tests := []struct {
		status models.FailureStatus
		code   int
	}{
		{models.StatusWarning, http.StatusConflict},
		{models.StatusInfo, http.StatusConflict},
		{models.StatusError, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			svc := new(MockTicketService)
			failure := models.NewNumberFailure(tt.status, "nope", "07", 1, 3)
			svc.On("CreateTicket", mock.Anything, mock.Anything, "event-1", vendor, "").Return(nil, failure)

			req := httptest.NewRequest(http.MethodPost, "/api/events/event-1/tickets", strings.NewReader(`{"client_name":"Ana","rows":[{"number":"07","quantity":3}]}`))
			rec := serve(router(svc), req)

			assert.Equal(t, tt.code, rec.Code)
			var got models.FailureResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.False(t, got.Success)
			assert.Equal(t, 1, got.NumberInfo.Remaining)
		})
	}
}

func TestCreateTicketBadBody(t *testing.T) {
	svc := new(MockTicketService)
	req := httptest.NewRequest(http.MethodPost, "/api/events/event-1/tickets", strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, serve(router(svc), req).Code)
	svc.AssertNotCalled(t, "CreateTicket")
}

func TestUpdateTicketUsesPathID(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("UpdateTicket", mock.Anything, mock.MatchedBy(func(tk models.Ticket) bool { return tk.ID == "t1" }), "event-1", vendor).
		Return(&models.Ticket{ID: "t1"}, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/events/event-1/tickets/t1", strings.NewReader(`{"id":"other","rows":[{"number":"07","quantity":1}]}`))
	assert.Equal(t, http.StatusOK, serve(router(svc), req).Code)
	svc.AssertExpectations(t)
}

func TestDeleteTicket(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("DeleteTicket", mock.Anything, "t1", "event-1", vendor).Return(true)
	svc.On("DeleteTicket", mock.Anything, "t2", "event-1", vendor).Return(false)
	h := router(svc)

	assert.Equal(t, http.StatusNoContent, serve(h, httptest.NewRequest(http.MethodDelete, "/api/events/event-1/tickets/t1", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, httptest.NewRequest(http.MethodDelete, "/api/events/event-1/tickets/t2", nil)).Code)
}

func TestViewTicketErrors(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("GetTicket", mock.Anything, "missing", "event-1", vendor).Return(nil, tickets.ErrNotFound)
	svc.On("GetTicket", mock.Anything, "theirs", "event-1", vendor).Return(nil, tickets.ErrForbidden)
	h := router(svc)

	assert.Equal(t, http.StatusNotFound, serve(h, httptest.NewRequest(http.MethodGet, "/api/events/event-1/tickets/missing", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, httptest.NewRequest(http.MethodGet, "/api/events/event-1/tickets/theirs", nil)).Code)
}

func TestMigrateTickets(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("MigrateUnassignedTickets", mock.Anything, "event-1", vendor).Return(int64(3), nil)

	rec := serve(router(svc), httptest.NewRequest(http.MethodPost, "/api/events/event-1/tickets/migrate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"migrated":3}`, rec.Body.String())
}

func TestReceiptQR(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("ReceiptQR", mock.Anything, "t1", "event-1", vendor).Return([]byte{0x89, 'P', 'N', 'G'}, nil)

	rec := serve(router(svc), httptest.NewRequest(http.MethodGet, "/api/events/event-1/tickets/t1/qr", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestVerifyReceipt(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("VerifyReceipt", mock.Anything, "event-1", "payload").Return(&models.Ticket{ID: "t1"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/events/event-1/tickets/verify", strings.NewReader(`{"encrypted_qr":"payload"}`))
	rec := serve(router(svc), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)

	req = httptest.NewRequest(http.MethodPost, "/api/events/event-1/tickets/verify", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, serve(router(svc), req).Code)
}

func TestSalesReport(t *testing.T) {
	svc := new(MockTicketService)
	report := &models.SalesReport{
		EventID:        "event-1",
		VendorEmail:    vendor,
		Numbers:        []models.NumberSales{{Number: "07", TimesSold: 2}},
		TotalTimesSold: 2,
		TotalAmount:    0.4,
	}
	svc.On("SalesReport", mock.Anything, "event-1", vendor).Return(report, nil)

	rec := serve(router(svc), httptest.NewRequest(http.MethodGet, "/api/events/event-1/tickets/report", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"eventId":"event-1","vendorEmail":"v@example.com","numbers":[{"number":"07","timesSold":2}],"totalTimesSold":2,"totalAmount":0.4}`, rec.Body.String())
	svc.AssertNotCalled(t, "GetTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSalesReportWithoutVendor(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("SalesReport", mock.Anything, "event-1", vendor).Return(nil, tickets.ErrNoVendor)

	rec := serve(router(svc), httptest.NewRequest(http.MethodGet, "/api/events/event-1/tickets/report", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
