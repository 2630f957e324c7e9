package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-raffle/internal/models"
	"ms-raffle/internal/tickets/db"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(context.Background())
	require.NoError(t, err)

	return &db.DB{Bun: bunDB}
}

func newTicket(eventID, client, vendor string) *models.Ticket {
	return &models.Ticket{
		ID:          uuid.NewString(),
		EventID:     eventID,
		ClientName:  client,
		Amount:      0.6,
		Numbers:     "07, 12",
		Rows:        []models.TicketRow{{Number: "07", Quantity: 2}, {Number: "12", Quantity: 1}},
		VendorEmail: vendor,
	}
}

func TestCreateAndGetTicket(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := newTicket("event-1", "Ana", "vendor@example.com")
	require.NoError(t, store.CreateTicket(ctx, ticket))

	got, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana", got.ClientName)
	assert.Equal(t, ticket.Rows, got.Rows)
	assert.Equal(t, "vendor@example.com", got.VendorEmail)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := store.GetTicketByID(ctx, uuid.NewString())
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateTicket(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := newTicket("event-1", "Ana", "vendor@example.com")
	require.NoError(t, store.CreateTicket(ctx, ticket))

	ticket.Rows = []models.TicketRow{{Number: "07", Quantity: 1}}
	ticket.Amount = 0.2
	require.NoError(t, store.UpdateTicket(ctx, ticket))

	got, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, got.Rows, 1)
	assert.InDelta(t, 0.2, got.Amount, 1e-9)
	assert.False(t, got.UpdatedAt.IsZero())

	ghost := newTicket("event-1", "Ghost", "")
	assert.Error(t, store.UpdateTicket(ctx, ghost))
}

func TestDeleteTicket(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := newTicket("event-1", "Ana", "vendor@example.com")
	require.NoError(t, store.CreateTicket(ctx, ticket))
	removed, err := store.DeleteTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	removed, err = store.DeleteTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestListTicketsNewestFirstAndFiltered(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	older := newTicket("event-1", "Ana", "a@example.com")
	older.CreatedAt = time.Now().Add(-time.Hour).UTC()
	newer := newTicket("event-1", "Luis", "a@example.com")
	newer.CreatedAt = time.Now().UTC()
	other := newTicket("event-1", "Eva", "b@example.com")
	otherEvent := newTicket("event-2", "Ana", "a@example.com")
	for _, tk := range []*models.Ticket{older, newer, other, otherEvent} {
		require.NoError(t, store.CreateTicket(ctx, tk))
	}

	mine, err := store.ListTickets(ctx, "event-1", "a@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	all, err := store.ListTickets(ctx, "event-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTicketExists(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := newTicket("event-1", "Ana", "a@example.com")
	require.NoError(t, store.CreateTicket(ctx, ticket))

	exists, err := store.TicketExists(ctx, "event-1", "Ana", "a@example.com", "")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.TicketExists(ctx, "event-1", "Ana", "a@example.com", ticket.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.TicketExists(ctx, "event-1", "Ana", "b@example.com", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAssignUnassigned(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	orphanA := newTicket("event-1", "Ana", "")
	orphanB := newTicket("event-1", "Luis", "")
	owned := newTicket("event-1", "Eva", "b@example.com")
	for _, tk := range []*models.Ticket{orphanA, orphanB, owned} {
		require.NoError(t, store.CreateTicket(ctx, tk))
	}

	n, err := store.AssignUnassigned(ctx, "event-1", "a@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	mine, err := store.ListTickets(ctx, "event-1", "a@example.com")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	got, err := store.GetTicketByID(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", got.VendorEmail)
}
