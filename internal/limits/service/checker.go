package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ms-raffle/internal/limits"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// nearLimitThreshold is the remaining count at which operators get a warning
const nearLimitThreshold = 5

// Checker answers availability questions straight from the store, never
// from the cache.
type Checker struct {
	DB     LimitDBLayer
	Logger *logger.Logger
}

func NewChecker(db LimitDBLayer, log *logger.Logger) *Checker {
	return &Checker{DB: db, Logger: log}
}

// Check reports whether qty units of number can still be sold in eventID.
// Cancellation, invalid input and store failures all answer "unavailable".
func (c *Checker) Check(ctx context.Context, eventID, number string, qty int) models.Availability {
	availability, _ := c.check(ctx, eventID, number, qty)
	return availability
}

// check also returns the freshly read limit that governs number, nil when the
// number is unconstrained or the answer is negative for other reasons.
func (c *Checker) check(ctx context.Context, eventID, number string, qty int) (models.Availability, *models.NumberLimit) {
	if ctx.Err() != nil {
		return models.Unavailable(), nil
	}

	number = strings.TrimSpace(number)
	if _, err := strconv.Atoi(number); err != nil {
		c.Logger.Warn("LIMITS", fmt.Sprintf("availability check with non-numeric number %q", number))
		return models.Unavailable(), nil
	}
	if qty <= 0 || eventID == "" {
		c.Logger.Warn("LIMITS", fmt.Sprintf("availability check rejected: event=%q qty=%d", eventID, qty))
		return models.Unavailable(), nil
	}

	all, err := c.DB.ListLimits(ctx, eventID)
	if ctx.Err() != nil {
		return models.Unavailable(), nil
	}
	if err != nil {
		c.Logger.Error("LIMITS", fmt.Sprintf("failed to load limits for event %s: %v", eventID, err))
		return models.UnverifiedAvailability(), nil
	}
	if len(all) == 0 {
		return models.UnlimitedAvailability(), nil
	}

	match := firstMatch(c.Logger, all, number)
	if match == nil {
		return models.UnlimitedAvailability(), nil
	}

	fresh, err := c.DB.GetLimitByID(ctx, match.ID)
	if ctx.Err() != nil {
		return models.Unavailable(), nil
	}
	if err != nil {
		c.Logger.Error("LIMITS", fmt.Sprintf("failed to refresh limit %s: %v", match.ID, err))
		return models.UnverifiedAvailability(), nil
	}
	if fresh == nil {
		c.Logger.Warn("LIMITS", fmt.Sprintf("limit %s for number %s disappeared during check", match.ID, number))
		return models.Unavailable(), nil
	}

	remaining := fresh.Remaining()
	availability := models.Availability{
		Available: remaining >= qty,
		Remaining: remaining,
		LimitID:   fresh.ID,
	}

	switch {
	case !availability.Available:
		c.Logger.Warn("LIMITS", fmt.Sprintf("number %s of event %s not available: requested %d, remaining %d", number, eventID, qty, remaining))
	case remaining <= nearLimitThreshold:
		c.Logger.Warn("LIMITS", fmt.Sprintf("number %s of event %s is near its limit: %d remaining", number, eventID, remaining))
	}
	return availability, fresh
}

// firstMatch scans in store order. Overlapping ranges are a configuration
// error, the first one wins.
func firstMatch(log *logger.Logger, all []models.NumberLimit, number string) *models.NumberLimit {
	for i := range all {
		ok, err := limits.MatchRange(number, all[i].NumberRange)
		if err != nil {
			log.Warn("LIMITS", fmt.Sprintf("skipping limit %s: %v", all[i].ID, err))
			continue
		}
		if ok {
			return &all[i]
		}
	}
	return nil
}
