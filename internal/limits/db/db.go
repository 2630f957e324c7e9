package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

type DB struct {
	Bun *bun.DB
}

// ListLimits returns every limit of an event ordered by number_range
func (d *DB) ListLimits(ctx context.Context, eventID string) ([]models.NumberLimit, error) {
	limits := []models.NumberLimit{}
	if eventID == "" {
		return limits, nil
	}
	err := d.Bun.NewSelect().
		Model(&limits).
		Where("event_id = ?", eventID).
		Order("number_range ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list limits for event %s: %w", eventID, err)
	}
	return limits, nil
}

// GetLimit returns nil, nil when the event has no limit for that exact range
func (d *DB) GetLimit(ctx context.Context, eventID, numberRange string) (*models.NumberLimit, error) {
	var limit models.NumberLimit
	err := d.Bun.NewSelect().
		Model(&limit).
		Where("event_id = ?", eventID).
		Where("number_range = ?", numberRange).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get limit %s/%s: %w", eventID, numberRange, err)
	}
	return &limit, nil
}

func (d *DB) GetLimitByID(ctx context.Context, id string) (*models.NumberLimit, error) {
	var limit models.NumberLimit
	err := d.Bun.NewSelect().
		Model(&limit).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get limit %s: %w", id, err)
	}
	return &limit, nil
}

// UpsertLimit creates the limit with times_sold = 0 or, if the range already
// exists for the event, overwrites max_times only. An existing row is left
// untouched when the new max is below its times_sold; the returned row then
// still carries the old max_times.
func (d *DB) UpsertLimit(ctx context.Context, eventID, numberRange string, maxTimes int) (*models.NumberLimit, error) {
	_, err := d.Bun.ExecContext(ctx, `
		INSERT INTO number_limits (id, event_id, number_range, max_times, times_sold, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (event_id, number_range) DO UPDATE
		SET max_times = EXCLUDED.max_times
		WHERE number_limits.times_sold <= EXCLUDED.max_times`,
		utils.NewID(), eventID, numberRange, maxTimes, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert limit %s/%s: %w", eventID, numberRange, err)
	}
	return d.GetLimit(ctx, eventID, numberRange)
}

// DeleteLimit reports false when no row had that id
func (d *DB) DeleteLimit(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.NumberLimit)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete limit %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete limit %s: %w", id, err)
	}
	return n > 0, nil
}

// IncrementIfBelow adds qty to times_sold only while the result stays within
// max_times. Zero rows affected means another writer got there first.
func (d *DB) IncrementIfBelow(ctx context.Context, id string, qty int) (int64, error) {
	res, err := d.Bun.ExecContext(ctx,
		"UPDATE number_limits SET times_sold = times_sold + ? WHERE id = ? AND times_sold < max_times - ? + 1",
		qty, id, qty)
	if err != nil {
		return 0, fmt.Errorf("increment limit %s: %w", id, err)
	}
	return res.RowsAffected()
}

// DecrementClamped subtracts qty from times_sold in one statement, never
// going below zero
func (d *DB) DecrementClamped(ctx context.Context, id string, qty int) (int64, error) {
	res, err := d.Bun.ExecContext(ctx,
		"UPDATE number_limits SET times_sold = CASE WHEN times_sold > ? THEN times_sold - ? ELSE 0 END WHERE id = ?",
		qty, qty, id)
	if err != nil {
		return 0, fmt.Errorf("decrement limit %s: %w", id, err)
	}
	return res.RowsAffected()
}

// AddTimesSold adds qty without checking max_times. It only restores units
// that a persisted ticket still holds.
func (d *DB) AddTimesSold(ctx context.Context, id string, qty int) (int64, error) {
	res, err := d.Bun.ExecContext(ctx,
		"UPDATE number_limits SET times_sold = times_sold + ? WHERE id = ?",
		qty, id)
	if err != nil {
		return 0, fmt.Errorf("restore limit %s: %w", id, err)
	}
	return res.RowsAffected()
}

// SetTimesSold overwrites the counter, used for administrative resets
func (d *DB) SetTimesSold(ctx context.Context, id string, value int) (int64, error) {
	res, err := d.Bun.ExecContext(ctx,
		"UPDATE number_limits SET times_sold = ? WHERE id = ?",
		value, id)
	if err != nil {
		return 0, fmt.Errorf("set times_sold on limit %s: %w", id, err)
	}
	return res.RowsAffected()
}
