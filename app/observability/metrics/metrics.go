package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegistrationsTotal      metric.Int64Counter
	LoginsTotal             metric.Int64Counter
	LoginFailuresTotal      metric.Int64Counter
	NotificationsDispatched metric.Int64Counter
	NotificationsFailed     metric.Int64Counter
	SyncCreatedTotal        metric.Int64Counter
	SyncUpdatedTotal        metric.Int64Counter
	SyncErrorsTotal         metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metric instruments exactly once,
// using the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("gopinions-auth")
		m := &AppMetrics{}

		m.RegistrationsTotal = mustCounter(meter, "registrations_total",
			"Total number of completed registrations", "{registration}")
		m.LoginsTotal = mustCounter(meter, "logins_total",
			"Total number of successful logins", "{login}")
		m.LoginFailuresTotal = mustCounter(meter, "login_failures_total",
			"Total number of rejected login attempts", "{login}")
		m.NotificationsDispatched = mustCounter(meter, "notifications_dispatched_total",
			"Total number of notification emails delivered", "{notification}")
		m.NotificationsFailed = mustCounter(meter, "notifications_failed_total",
			"Total number of notification emails dropped or failed", "{notification}")
		m.SyncCreatedTotal = mustCounter(meter, "projection_sync_created_total",
			"Projection records created by reconciliation passes", "{record}")
		m.SyncUpdatedTotal = mustCounter(meter, "projection_sync_updated_total",
			"Projection records updated by reconciliation passes", "{record}")
		m.SyncErrorsTotal = mustCounter(meter, "projection_sync_errors_total",
			"Per-record failures during reconciliation passes", "{error}")

		appMetrics = m
	})
}

func mustCounter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	)
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
