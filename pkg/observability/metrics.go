package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fetpipe"

// Metrics records tool attempts and stage outcomes.
type Metrics struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	stages        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	running       prometheus.Gauge
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Tool launches by stage and verification outcome.",
			},
			[]string{"stage", "outcome"},
		),
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Finished pipeline nodes by terminal status.",
			},
			[]string{"node", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of executed pipeline nodes.",
				// Neuroimaging tools run from seconds to hours.
				Buckets: prometheus.ExponentialBuckets(1, 4, 9),
			},
			[]string{"node"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stages_running",
			Help:      "Pipeline nodes currently executing.",
		}),
	}
	m.registry.MustRegister(m.attempts, m.stages, m.stageDuration, m.running)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveAttempt implements process.Observer.
func (m *Metrics) ObserveAttempt(_ context.Context, a process.Attempt) {
	m.attempts.WithLabelValues(a.Stage, a.Outcome.String()).Inc()
}

// Hooks returns engine hooks feeding the stage metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageStart: func(_ context.Context, _ *domain.StageEvent) {
			m.running.Inc()
		},
		OnStageFinish: func(_ context.Context, ev *domain.StageEvent) {
			m.running.Dec()
			status := domain.StageSucceeded
			if ev.Err != nil {
				status = domain.StageFailed
			}
			m.stages.WithLabelValues(ev.Node, string(status)).Inc()
			m.stageDuration.WithLabelValues(ev.Node).Observe(ev.Duration.Seconds())
		},
		OnStageSkip: func(_ context.Context, ev *domain.StageEvent) {
			m.stages.WithLabelValues(ev.Node, string(domain.StageSkipped)).Inc()
		},
	}
}

// Routes registers /metrics and /healthz on r.
func (m *Metrics) Routes(r chi.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
}

// Handler serves the metrics and the liveness endpoint.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	m.Routes(r)
	return r
}
