package service

import (
	"context"
	"fmt"
	"strings"

	"ms-raffle/internal/limits"
	"ms-raffle/internal/limits/db"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

type LimitDBLayer interface {
	ListLimits(ctx context.Context, eventID string) ([]models.NumberLimit, error)
	GetLimit(ctx context.Context, eventID, numberRange string) (*models.NumberLimit, error)
	GetLimitByID(ctx context.Context, id string) (*models.NumberLimit, error)
	UpsertLimit(ctx context.Context, eventID, numberRange string, maxTimes int) (*models.NumberLimit, error)
	DeleteLimit(ctx context.Context, id string) (bool, error)
	IncrementIfBelow(ctx context.Context, id string, qty int) (int64, error)
	DecrementClamped(ctx context.Context, id string, qty int) (int64, error)
	AddTimesSold(ctx context.Context, id string, qty int) (int64, error)
	CallProcedure(ctx context.Context, name string, params ...db.ProcParam) (bool, error)
}

type LimitCacheLayer interface {
	Get(ctx context.Context, eventID string) ([]models.NumberLimit, bool)
	Set(ctx context.Context, eventID string, limits []models.NumberLimit)
	Invalidate(ctx context.Context, eventID string)
}

type ChangePublisher interface {
	Publish(ctx context.Context, eventID, reason string)
}

type ChangeNotifier interface {
	ChangePublisher
	Subscribe(ctx context.Context, eventID string, onChange func(reason string)) (func(), error)
}

// LimitService is the entry point for everything that reads or configures limits
type LimitService struct {
	DB       LimitDBLayer
	Cache    LimitCacheLayer
	Notifier ChangeNotifier
	Checker  *Checker
	Mutator  *Mutator
	Logger   *logger.Logger
}

// NewLimitService wires the checker and mutator over the same store. cache and
// notifier may be nil.
func NewLimitService(store LimitDBLayer, cache LimitCacheLayer, notifier ChangeNotifier, log *logger.Logger) *LimitService {
	checker := NewChecker(store, log)
	return &LimitService{
		DB:       store,
		Cache:    cache,
		Notifier: notifier,
		Checker:  checker,
		Mutator:  NewMutator(store, checker, cache, notifier, log),
		Logger:   log,
	}
}

// GetNumberLimits lists an event's limits through the cache. Failures and
// cancellation produce an empty list.
func (s *LimitService) GetNumberLimits(ctx context.Context, eventID string, bypassCache bool) []models.NumberLimit {
	if ctx.Err() != nil || eventID == "" {
		return []models.NumberLimit{}
	}

	if !bypassCache && s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, eventID); ok {
			return cached
		}
	}

	all, err := s.DB.ListLimits(ctx, eventID)
	if ctx.Err() != nil {
		return []models.NumberLimit{}
	}
	if err != nil {
		s.Logger.Error("LIMITS", fmt.Sprintf("failed to list limits for event %s: %v", eventID, err))
		return []models.NumberLimit{}
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, eventID, all)
	}
	return all
}

// GetNumberLimit returns the limit governing number, nil when none applies or
// the store cannot be read
func (s *LimitService) GetNumberLimit(ctx context.Context, eventID, number string) *models.NumberLimit {
	all := s.GetNumberLimits(ctx, eventID, true)
	return firstMatch(s.Logger, all, strings.TrimSpace(number))
}

// UpdateNumberLimit creates or resizes the limit of a range. times_sold is
// never touched here, and a max below the units already sold is rejected
// with ErrInvalidLimit.
func (s *LimitService) UpdateNumberLimit(ctx context.Context, eventID, numberRange string, maxTimes int) (*models.NumberLimit, error) {
	numberRange = strings.TrimSpace(numberRange)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidLimit)
	}
	if err := limits.ValidRange(numberRange); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLimit, err)
	}
	if maxTimes < 0 {
		return nil, fmt.Errorf("%w: max times must not be negative", ErrInvalidLimit)
	}

	limit, err := s.DB.UpsertLimit(ctx, eventID, numberRange, maxTimes)
	if err != nil {
		s.Logger.Error("LIMITS", fmt.Sprintf("failed to save limit %s for event %s: %v", numberRange, eventID, err))
		return nil, err
	}
	if limit != nil && limit.MaxTimes != maxTimes {
		s.Logger.Warn("LIMITS", fmt.Sprintf("refused to lower limit %s to %d, %d already sold", limit.ID, maxTimes, limit.TimesSold))
		return nil, fmt.Errorf("%w: %d units of %s are already sold, max times cannot go below that", ErrInvalidLimit, limit.TimesSold, numberRange)
	}

	s.Logger.Info("LIMITS", fmt.Sprintf("limit %s for event %s set to %d", numberRange, eventID, maxTimes))
	s.Mutator.changed(ctx, eventID, "limit-updated")
	return limit, nil
}

// DeleteNumberLimit returns ErrNotFound when the id does not exist
func (s *LimitService) DeleteNumberLimit(ctx context.Context, limitID string) error {
	limit, err := s.DB.GetLimitByID(ctx, limitID)
	if err != nil {
		s.Logger.Error("LIMITS", fmt.Sprintf("failed to read limit %s before delete: %v", limitID, err))
		return err
	}
	if limit == nil {
		return ErrNotFound
	}

	deleted, err := s.DB.DeleteLimit(ctx, limitID)
	if err != nil {
		s.Logger.Error("LIMITS", fmt.Sprintf("failed to delete limit %s: %v", limitID, err))
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	s.Logger.Info("LIMITS", fmt.Sprintf("limit %s (%s) deleted from event %s", limitID, limit.NumberRange, limit.EventID))
	s.Mutator.changed(ctx, limit.EventID, "limit-deleted")
	return nil
}

func (s *LimitService) CheckNumberAvailability(ctx context.Context, eventID, number string, qty int) models.Availability {
	return s.Checker.Check(ctx, eventID, number, qty)
}

// SubscribeToNumberLimits calls onChange with a freshly read list every time
// the event's limits change. The notification payload is ignored.
func (s *LimitService) SubscribeToNumberLimits(ctx context.Context, eventID string, onChange func([]models.NumberLimit)) (func(), error) {
	if onChange == nil {
		return func() {}, fmt.Errorf("subscribe to limits of event %s: nil callback", eventID)
	}
	if s.Notifier == nil {
		return func() {}, fmt.Errorf("subscribe to limits of event %s: notifications disabled", eventID)
	}
	return s.Notifier.Subscribe(ctx, eventID, func(string) {
		onChange(s.GetNumberLimits(context.WithoutCancel(ctx), eventID, true))
	})
}
