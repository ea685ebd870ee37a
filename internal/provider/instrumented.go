package provider

import (
	"context"
	"time"
)

// HealthRecorder receives per-account send outcomes for health scoring.
// Satisfied by health.MetricsStore.
type HealthRecorder interface {
	Record(region string, success bool, errorKind string, duration time.Duration)
}

// SendObserver receives send outcomes for operational metrics.
// Satisfied by metrics.Manager.
type SendObserver interface {
	ObserveSend(region, channel string, success bool, kind string, duration time.Duration)
}

// Instrumented wraps a Client and reports every outcome to the health
// recorder and metrics observer. Reporting never affects the result.
type Instrumented struct {
	inner    Client
	health   HealthRecorder
	observer SendObserver
}

// NewInstrumented wraps a client; health and observer may each be nil.
func NewInstrumented(inner Client, health HealthRecorder, observer SendObserver) *Instrumented {
	return &Instrumented{inner: inner, health: health, observer: observer}
}

func (i *Instrumented) Send(ctx context.Context, req SendRequest) SendResult {
	result := i.inner.Send(ctx, req)

	if i.health != nil {
		i.health.Record(req.Account.Region, result.Success, result.Kind, result.Duration)
	}
	if i.observer != nil {
		i.observer.ObserveSend(req.Account.Region, string(req.Channel), result.Success, result.Kind, result.Duration)
	}
	return result
}
