package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	stepAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retirepipe_step_attempts_total",
			Help: "Total executor invocations per pipeline state.",
		},
		[]string{"state"},
	)
	stepSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retirepipe_step_success_total",
			Help: "Total successful executor invocations per pipeline state.",
		},
		[]string{"state"},
	)
	stepFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retirepipe_step_failure_total",
			Help: "Total failed executor invocations per pipeline state and failure class.",
		},
		[]string{"state", "class"},
	)
	stepRuntime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retirepipe_step_runtime_seconds",
			Help:    "Executor runtime histogram in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retirepipe_transitions_total",
			Help: "Total committed state transitions, by target state.",
		},
		[]string{"to"},
	)
	retirementsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retirepipe_retirements_finished_total",
			Help: "Retirements that reached a dead end, by outcome state.",
		},
		[]string{"outcome"},
	)
	workerUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retirepipe_worker_utilization",
			Help: "Worker utilization (in-flight / concurrency).",
		},
	)
)

func Register(reg *prometheus.Registry) {
	once.Do(func() {
		reg.MustRegister(
			stepAttempts,
			stepSuccess,
			stepFailure,
			stepRuntime,
			transitions,
			retirementsFinished,
			workerUtilization,
		)
	})
}

func IncStepAttempt(state string) {
	stepAttempts.WithLabelValues(state).Inc()
}

func IncStepSuccess(state string) {
	stepSuccess.WithLabelValues(state).Inc()
}

func IncStepFailure(state, class string) {
	stepFailure.WithLabelValues(state, class).Inc()
}

func ObserveStepRuntime(state string, seconds float64) {
	stepRuntime.WithLabelValues(state).Observe(seconds)
}

func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

func IncFinished(outcome string) {
	retirementsFinished.WithLabelValues(outcome).Inc()
}

func SetWorkerUtilization(value float64) {
	workerUtilization.Set(value)
}

type QueueDepthProvider interface {
	Depth(ctx context.Context, queueName string) (int64, error)
}

// QueueDepthCollector reports the active-retirement queue depth on
// scrape rather than on a timer.
type QueueDepthCollector struct {
	queueName string
	provider  QueueDepthProvider
	depthDesc *prometheus.Desc
}

func NewQueueDepthCollector(queueName string, provider QueueDepthProvider) *QueueDepthCollector {
	return &QueueDepthCollector{
		queueName: queueName,
		provider:  provider,
		depthDesc: prometheus.NewDesc(
			"retirepipe_queue_depth",
			"Current active-retirement queue depth.",
			[]string{"queue"},
			nil,
		),
	}
}

func (c *QueueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depthDesc
}

func (c *QueueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	if depth, err := c.provider.Depth(context.Background(), c.queueName); err == nil {
		ch <- prometheus.MustNewConstMetric(c.depthDesc, prometheus.GaugeValue, float64(depth), c.queueName)
	}
}
