package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	// RequestCounter counts terminal requests.
	// Labels: origin (user|scheduled|reminder|system), outcome (ok|error|suppressed)
	RequestCounter *prometheus.CounterVec

	// InvokeDuration measures agent subprocess wall time in seconds.
	// Labels: status (ok|timeout|killed|parse_error|nonzero_exit)
	InvokeDuration *prometheus.HistogramVec

	// ChunksEmitted tracks messages emitted per pipeline run.
	ChunksEmitted prometheus.Histogram

	// SchedulerRuns counts job firings by terminal status.
	// Labels: status (ok|error|suppressed|dropped)
	SchedulerRuns *prometheus.CounterVec

	// RemindersDelivered counts reminder delivery outcomes.
	// Labels: status (delivered|failed)
	RemindersDelivered *prometheus.CounterVec

	// EgressRetries counts platform send retries.
	EgressRetries prometheus.Counter

	// MemoryCaptureFailures counts fire-and-forget capture errors.
	MemoryCaptureFailures prometheus.Counter
}

// NewMetrics registers all collectors with the default registry. Call once at
// startup.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWithRegistry registers with an isolated registry, for tests.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donna_requests_total",
				Help: "Terminal requests by origin and outcome",
			},
			[]string{"origin", "outcome"},
		),

		InvokeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donna_agent_invoke_duration_seconds",
				Help:    "Agent subprocess wall time in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),

		ChunksEmitted: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "donna_pipeline_chunks",
				Help:    "Messages emitted per pipeline run",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),

		SchedulerRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donna_scheduler_runs_total",
				Help: "Scheduled job firings by terminal status",
			},
			[]string{"status"},
		),

		RemindersDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donna_reminders_total",
				Help: "Reminder delivery outcomes",
			},
			[]string{"status"},
		),

		EgressRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "donna_egress_retries_total",
				Help: "Platform send retries",
			},
		),

		MemoryCaptureFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "donna_memory_capture_failures_total",
				Help: "Fire-and-forget memory capture errors",
			},
		),
	}
}

// ServeMetrics exposes /metrics on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, logger *Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
