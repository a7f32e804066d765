package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for sync observability. One
// instance per process, registered on its own registry so tests never
// collide with the global default.
type Metrics struct {
	Registry *prometheus.Registry

	SyncsTotal           *prometheus.CounterVec
	SyncDuration         *prometheus.HistogramVec
	ResourcesSynced      *prometheus.CounterVec
	DeactivationsTotal   *prometheus.CounterVec
	UnrecognizedTotal    *prometheus.CounterVec
	ValidationMismatches *prometheus.CounterVec
	ProviderDailyCost    *prometheus.GaugeVec
}

// NewMetrics creates and registers every instrument.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lasku",
			Name:      "syncs_total",
			Help:      "Provider syncs by terminal status.",
		}, []string{"provider_id", "status"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lasku",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of one provider sync.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider_id"}),
		ResourcesSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lasku",
			Name:      "resources_synced_total",
			Help:      "Resources written per sync, by state action.",
		}, []string{"provider_id", "action"}),
		DeactivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lasku",
			Name:      "deactivations_total",
			Help:      "Resources deactivated, by reason.",
		}, []string{"provider_id", "reason"}),
		UnrecognizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lasku",
			Name:      "unrecognized_sightings_total",
			Help:      "Billed objects with no type mapping.",
		}, []string{"provider_id"}),
		ValidationMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lasku",
			Name:      "validation_mismatches_total",
			Help:      "Syncs whose reconciled total fell outside tolerance.",
		}, []string{"provider_id"}),
		ProviderDailyCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lasku",
			Name:      "provider_daily_cost",
			Help:      "Reconciled total daily cost per provider.",
		}, []string{"provider_id"}),
	}

	registry.MustRegister(
		m.SyncsTotal,
		m.SyncDuration,
		m.ResourcesSynced,
		m.DeactivationsTotal,
		m.UnrecognizedTotal,
		m.ValidationMismatches,
		m.ProviderDailyCost,
	)
	return m
}
