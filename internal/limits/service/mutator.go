package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

const tracerName = "ms-raffle/limits"

// Mutator is the only code path that changes times_sold
type Mutator struct {
	DB       LimitDBLayer
	Checker  *Checker
	Cache    LimitCacheLayer
	Notifier ChangePublisher
	Logger   *logger.Logger

	// Each list is tried in order. Tests replace them to force a specific path.
	IncrementStrategies  []CounterStrategy
	DecrementStrategies  []CounterStrategy
	CompensateStrategies []CounterStrategy
	RestoreStrategies    []CounterStrategy

	tracer trace.Tracer
}

func NewMutator(db LimitDBLayer, checker *Checker, cache LimitCacheLayer, notifier ChangePublisher, log *logger.Logger) *Mutator {
	m := &Mutator{
		DB:       db,
		Checker:  checker,
		Cache:    cache,
		Notifier: notifier,
		Logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
	m.IncrementStrategies = []CounterStrategy{
		{Name: "procedure", Apply: m.procedureIncrement},
		{Name: "conditional-update", Apply: m.conditionalIncrement},
	}
	m.DecrementStrategies = []CounterStrategy{
		{Name: "clamped-update", Apply: m.clampDecrement},
	}
	m.CompensateStrategies = []CounterStrategy{
		{Name: "procedure", Apply: m.procedureDecrement},
		{Name: "clamped-update", Apply: m.clampDecrement},
	}
	m.RestoreStrategies = []CounterStrategy{
		{Name: "unconditional-update", Apply: m.unconditionalIncrement},
	}
	return m
}

// Increment sells qty more units of number. It returns false without writing
// when the number is unavailable, and false when a concurrent writer consumed
// the capacity first.
func (m *Mutator) Increment(ctx context.Context, eventID, number string, qty int) bool {
	ctx, span := m.startSpan(ctx, "limits.increment", eventID, number, qty)
	defer span.End()

	availability, limit := m.Checker.check(ctx, eventID, number, qty)
	if !availability.Available {
		span.SetAttributes(attribute.String("limits.outcome", "unavailable"))
		return false
	}
	if limit == nil {
		return true
	}

	req := CounterRequest{EventID: eventID, Number: number, Qty: qty, Limit: limit}
	res := m.runStrategies(ctx, "increment", m.IncrementStrategies, req)
	m.changed(ctx, eventID, "increment")
	span.SetAttributes(attribute.String("limits.outcome", res.Outcome.String()))

	if res.Outcome != OutcomeOk {
		m.logFailure("increment", req, res)
		return false
	}
	return true
}

// Decrement releases qty units of number, clamping times_sold at zero
func (m *Mutator) Decrement(ctx context.Context, eventID, number string, qty int) bool {
	return m.adjust(ctx, "decrement", m.DecrementStrategies, eventID, number, qty)
}

// Compensate undoes an increment applied earlier in the same ticket
// transaction, preferring the store-side procedure
func (m *Mutator) Compensate(ctx context.Context, eventID, number string, qty int) bool {
	return m.adjust(ctx, "compensate", m.CompensateStrategies, eventID, number, qty)
}

// Restore puts back units released earlier in a ticket transaction that
// later failed. The ticket still holds them, so max_times is not checked.
func (m *Mutator) Restore(ctx context.Context, eventID, number string, qty int) bool {
	return m.adjust(ctx, "restore", m.RestoreStrategies, eventID, number, qty)
}

func (m *Mutator) adjust(ctx context.Context, op string, strategies []CounterStrategy, eventID, number string, qty int) bool {
	ctx, span := m.startSpan(ctx, "limits."+op, eventID, number, qty)
	defer span.End()

	if qty <= 0 {
		return true
	}

	limit, err := m.resolve(ctx, eventID, number)
	if err != nil {
		m.Logger.Error("COUNTER", fmt.Sprintf("%s of number %s in event %s could not read limits: %v", op, number, eventID, err))
		return false
	}
	if limit == nil {
		return true
	}

	req := CounterRequest{EventID: eventID, Number: number, Qty: qty, Limit: limit}
	res := m.runStrategies(ctx, op, strategies, req)
	m.changed(ctx, eventID, op)
	span.SetAttributes(attribute.String("limits.outcome", res.Outcome.String()))

	if res.Outcome != OutcomeOk {
		m.logFailure(op, req, res)
		return false
	}
	return true
}

// resolve finds the limit governing number, nil when it is unconstrained
func (m *Mutator) resolve(ctx context.Context, eventID, number string) (*models.NumberLimit, error) {
	all, err := m.DB.ListLimits(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return firstMatch(m.Logger, all, strings.TrimSpace(number)), nil
}

func (m *Mutator) logFailure(op string, req CounterRequest, res StrategyResult) {
	if isContention(res) {
		m.Logger.Warn("COUNTER", fmt.Sprintf("%s of %d on number %s (event %s) refused: %v", op, req.Qty, req.Number, req.EventID, res.Err))
		return
	}
	m.Logger.Error("COUNTER", fmt.Sprintf("%s of %d on number %s (event %s) failed: %v", op, req.Qty, req.Number, req.EventID, res.Err))
}

// changed drops the cached list and tells subscribers to re-read
func (m *Mutator) changed(ctx context.Context, eventID, reason string) {
	ctx = context.WithoutCancel(ctx)
	if m.Cache != nil {
		m.Cache.Invalidate(ctx, eventID)
	}
	if m.Notifier != nil {
		m.Notifier.Publish(ctx, eventID, reason)
	}
}

func (m *Mutator) startSpan(ctx context.Context, name, eventID, number string, qty int) (context.Context, trace.Span) {
	tracer := m.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("raffle.event_id", eventID),
		attribute.String("raffle.number", number),
		attribute.Int("raffle.qty", qty),
	))
}
