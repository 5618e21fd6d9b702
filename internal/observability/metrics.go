package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TasksRunning prometheus.Gauge
	QueueDepth   *prometheus.GaugeVec
	TaskEvents   *prometheus.CounterVec
	StepRetries  prometheus.Counter
	StepLatency  prometheus.Histogram
	PlanLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TasksRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Number of tasks currently holding an execution slot.",
		}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queued tasks by priority.",
		}, []string{"priority"}),
		TaskEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Task lifecycle events by type.",
		}, []string{"event"}),
		StepRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Step attempts beyond the first.",
		}),
		StepLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_latency_ms",
			Help:      "Wall time per completed step in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		}),
		PlanLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_latency_ms",
			Help:      "Planning latency per task in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		}),
	}
}

func (m *Metrics) ObserveTaskEvent(event string) {
	if m == nil {
		return
	}
	m.TaskEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveStepLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.StepLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObservePlanLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PlanLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncStepRetries() {
	if m == nil {
		return
	}
	m.StepRetries.Inc()
}

func (m *Metrics) SetTasksRunning(n int) {
	if m == nil {
		return
	}
	m.TasksRunning.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(priority string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(priority).Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
