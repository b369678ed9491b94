// Package telemetry holds gpsform's Prometheus metrics and OpenTelemetry setup.
package telemetry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SubmissionsTotal counts resolved submissions by outcome (sent, buffered, failed)
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsform",
			Name:      "submissions_total",
			Help:      "Total number of form submissions by outcome",
		},
		[]string{"outcome"},
	)

	// DeliveriesTotal counts delivery attempts by result and path (direct, reconcile)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsform",
			Name:      "deliveries_total",
			Help:      "Total number of delivery attempts to the submission endpoint",
		},
		[]string{"path", "result"},
	)

	// QueueDepth is the number of records pending after the last queue operation
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gpsform",
			Name:      "queue_depth",
			Help:      "Number of buffered records awaiting delivery",
		},
	)

	// ReconcilePasses counts completed reconcile passes
	ReconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gpsform",
			Name:      "reconcile_passes_total",
			Help:      "Total number of reconcile passes over the queue",
		},
	)

	// ConnectivityState is 1 while online, 0 while offline
	ConnectivityState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gpsform",
			Name:      "online",
			Help:      "Current connectivity signal (1 online, 0 offline)",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// Label values.
const (
	PathDirect    = "direct"
	PathReconcile = "reconcile"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		for _, c := range []prometheus.Collector{
			SubmissionsTotal,
			DeliveriesTotal,
			QueueDepth,
			ReconcilePasses,
			ConnectivityState,
		} {
			if err := register(prometheus.DefaultRegisterer, c); err != nil {
				slog.Warn("failed to register metric", "error", err)
			}
		}
	})
}

// register adds c to reg. An identical collector that is already registered
// is not an error.
func register(reg prometheus.Registerer, c prometheus.Collector) error {
	err := reg.Register(c)
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// ObserveDelivery records one delivery attempt.
func ObserveDelivery(path string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	DeliveriesTotal.WithLabelValues(path, result).Inc()
}

// SetOnline records the connectivity signal.
func SetOnline(online bool) {
	if online {
		ConnectivityState.Set(1)
		return
	}
	ConnectivityState.Set(0)
}
