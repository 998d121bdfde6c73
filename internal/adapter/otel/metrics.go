package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "crucible"

// Metrics holds all Crucible metric instruments.
type Metrics struct {
	Delegations       metric.Int64Counter
	DelegationsFailed metric.Int64Counter
	Decompositions    metric.Int64Counter
	SubtasksRun       metric.Int64Counter
	ActionsRun        metric.Int64Counter
	ActionsBlocked    metric.Int64Counter
	BreakerTrips      metric.Int64Counter
	DelegationSeconds metric.Float64Histogram
	ActionSeconds     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Delegations, err = meter.Int64Counter("crucible.delegations",
		metric.WithDescription("Number of delegations attempted"))
	if err != nil {
		return nil, err
	}

	m.DelegationsFailed, err = meter.Int64Counter("crucible.delegations.failed",
		metric.WithDescription("Number of delegations that failed"))
	if err != nil {
		return nil, err
	}

	m.Decompositions, err = meter.Int64Counter("crucible.decompositions",
		metric.WithDescription("Number of decomposition decisions executed"))
	if err != nil {
		return nil, err
	}

	m.SubtasksRun, err = meter.Int64Counter("crucible.subtasks",
		metric.WithDescription("Number of decomposition subtasks run"))
	if err != nil {
		return nil, err
	}

	m.ActionsRun, err = meter.Int64Counter("crucible.actions",
		metric.WithDescription("Number of actions executed"))
	if err != nil {
		return nil, err
	}

	m.ActionsBlocked, err = meter.Int64Counter("crucible.actions.blocked",
		metric.WithDescription("Number of actions blocked by security policy"))
	if err != nil {
		return nil, err
	}

	m.BreakerTrips, err = meter.Int64Counter("crucible.breaker.trips",
		metric.WithDescription("Number of circuit breaker transitions to OPEN"))
	if err != nil {
		return nil, err
	}

	m.DelegationSeconds, err = meter.Float64Histogram("crucible.delegation.duration_seconds",
		metric.WithDescription("Delegation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ActionSeconds, err = meter.Float64Histogram("crucible.action.duration_seconds",
		metric.WithDescription("Action duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
