package service

import (
	"context"
	"errors"
	"fmt"

	"ms-raffle/internal/limits/db"
	"ms-raffle/internal/models"
)

type Outcome int

const (
	OutcomeOk Outcome = iota
	// OutcomeContention means the write was refused because capacity ran out
	OutcomeContention
	// OutcomeFailed means the store could not be reached or the call is unsupported
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeContention:
		return "contention"
	default:
		return "failed"
	}
}

type StrategyResult struct {
	Outcome Outcome
	Err     error
}

func ok() StrategyResult { return StrategyResult{Outcome: OutcomeOk} }

func contention(format string, args ...interface{}) StrategyResult {
	return StrategyResult{Outcome: OutcomeContention, Err: fmt.Errorf("%w: %s", ErrContention, fmt.Sprintf(format, args...))}
}

func failed(err error) StrategyResult {
	return StrategyResult{Outcome: OutcomeFailed, Err: err}
}

// CounterRequest is one mutation of the limit that governs Number
type CounterRequest struct {
	EventID string
	Number  string
	Qty     int
	Limit   *models.NumberLimit
}

// CounterStrategy is one way of applying a counter mutation. Strategies run in
// order until one returns OutcomeOk.
type CounterStrategy struct {
	Name  string
	Apply func(ctx context.Context, req CounterRequest) StrategyResult
}

// runStrategies returns the first Ok result, otherwise the last result seen
func (m *Mutator) runStrategies(ctx context.Context, op string, strategies []CounterStrategy, req CounterRequest) StrategyResult {
	last := failed(fmt.Errorf("%s: no strategies configured", op))
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return failed(err)
		}
		res := s.Apply(ctx, req)
		if res.Outcome == OutcomeOk {
			m.Logger.LogCounter(op, req.EventID, req.Number, req.Qty, fmt.Sprintf("applied by %s", s.Name))
			return res
		}
		if res.Outcome == OutcomeContention {
			m.Logger.Warn("COUNTER", fmt.Sprintf("%s via %s lost the race for number %s: %v", op, s.Name, req.Number, res.Err))
		} else {
			m.Logger.Debug("COUNTER", fmt.Sprintf("%s via %s unavailable for number %s: %v", op, s.Name, req.Number, res.Err))
		}
		last = res
	}
	return last
}

// procedureIncrement uses the store-side increment_number_sold_safely function
func (m *Mutator) procedureIncrement(ctx context.Context, req CounterRequest) StrategyResult {
	fresh, err := m.DB.GetLimitByID(ctx, req.Limit.ID)
	if err != nil {
		return failed(err)
	}
	if fresh == nil {
		return failed(ErrNotFound)
	}
	applied, err := m.DB.CallProcedure(ctx, db.ProcIncrementSafely,
		db.ProcParam{Name: "p_limit_id", Value: fresh.ID},
		db.ProcParam{Name: "p_increment", Value: req.Qty},
		db.ProcParam{Name: "p_max_times", Value: fresh.MaxTimes},
	)
	if err != nil {
		return failed(err)
	}
	if !applied {
		return contention("procedure refused %d more on limit %s", req.Qty, fresh.ID)
	}
	return ok()
}

// conditionalIncrement re-reads the row and relies on the conditional UPDATE
// to refuse the write if capacity was consumed meanwhile
func (m *Mutator) conditionalIncrement(ctx context.Context, req CounterRequest) StrategyResult {
	fresh, err := m.DB.GetLimitByID(ctx, req.Limit.ID)
	if err != nil {
		return failed(err)
	}
	if fresh == nil {
		return failed(ErrNotFound)
	}
	if fresh.TimesSold+req.Qty > fresh.MaxTimes {
		return contention("limit %s has %d of %d sold, %d more requested", fresh.ID, fresh.TimesSold, fresh.MaxTimes, req.Qty)
	}
	rows, err := m.DB.IncrementIfBelow(ctx, fresh.ID, req.Qty)
	if err != nil {
		return failed(err)
	}
	if rows == 0 {
		return contention("conditional update on limit %s affected no rows", fresh.ID)
	}
	return ok()
}

// procedureDecrement uses the store-side decrement_number_sold_safely function
func (m *Mutator) procedureDecrement(ctx context.Context, req CounterRequest) StrategyResult {
	applied, err := m.DB.CallProcedure(ctx, db.ProcDecrementSafely,
		db.ProcParam{Name: "p_event_id", Value: req.EventID},
		db.ProcParam{Name: "p_number_range", Value: req.Limit.NumberRange},
		db.ProcParam{Name: "p_decrement", Value: req.Qty},
	)
	if err != nil {
		return failed(err)
	}
	if !applied {
		return failed(fmt.Errorf("procedure found no limit %s for event %s", req.Limit.NumberRange, req.EventID))
	}
	return ok()
}

// clampDecrement subtracts qty in a single statement clamped at zero, so a
// sale landing concurrently is never overwritten
func (m *Mutator) clampDecrement(ctx context.Context, req CounterRequest) StrategyResult {
	rows, err := m.DB.DecrementClamped(ctx, req.Limit.ID, req.Qty)
	if err != nil {
		return failed(err)
	}
	if rows == 0 {
		return failed(fmt.Errorf("limit %s: %w", req.Limit.ID, ErrNotFound))
	}
	return ok()
}

// unconditionalIncrement re-adds units a persisted ticket still holds
func (m *Mutator) unconditionalIncrement(ctx context.Context, req CounterRequest) StrategyResult {
	rows, err := m.DB.AddTimesSold(ctx, req.Limit.ID, req.Qty)
	if err != nil {
		return failed(err)
	}
	if rows == 0 {
		return failed(fmt.Errorf("limit %s: %w", req.Limit.ID, ErrNotFound))
	}
	return ok()
}

func isContention(res StrategyResult) bool {
	return res.Outcome == OutcomeContention || errors.Is(res.Err, ErrContention)
}
