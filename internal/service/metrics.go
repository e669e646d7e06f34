package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records sync outcomes on the service meter. All methods are safe on
// a nil receiver so tests can pass nil.
type Metrics struct {
	entitiesSynced   metric.Int64Counter
	entitiesFailed   metric.Int64Counter
	retriesScheduled metric.Int64Counter
	credentialErrors metric.Int64Counter
}

// NewMetrics creates sync metrics on the global meter provider
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("calendar-sync")

	entitiesSynced, err := meter.Int64Counter("sync_entities_synced_total",
		metric.WithDescription("Planning entities successfully pushed to the external calendar"))
	if err != nil {
		return nil, err
	}

	entitiesFailed, err := meter.Int64Counter("sync_entities_failed_total",
		metric.WithDescription("Planning entities that failed to push"))
	if err != nil {
		return nil, err
	}

	retriesScheduled, err := meter.Int64Counter("sync_retries_scheduled_total",
		metric.WithDescription("Backoff retries scheduled after retryable failures"))
	if err != nil {
		return nil, err
	}

	credentialErrors, err := meter.Int64Counter("sync_credential_errors_total",
		metric.WithDescription("Credentials moved to the error state"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		entitiesSynced:   entitiesSynced,
		entitiesFailed:   entitiesFailed,
		retriesScheduled: retriesScheduled,
		credentialErrors: credentialErrors,
	}, nil
}

func (m *Metrics) AddSynced(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.entitiesSynced.Add(ctx, int64(n))
}

func (m *Metrics) AddFailed(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.entitiesFailed.Add(ctx, int64(n))
}

func (m *Metrics) RetryScheduled(ctx context.Context, site string) {
	if m == nil {
		return
	}
	m.retriesScheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("site", site)))
}

func (m *Metrics) CredentialError(ctx context.Context) {
	if m == nil {
		return
	}
	m.credentialErrors.Add(ctx, 1)
}
