package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Статусы тика.
const (
	TickStatusOK     = "ok"
	TickStatusFailed = "failed"
)

// Metrics — метрики планировщика.
type Metrics struct {
	TickDuration         prometheus.Histogram
	TicksTotal           *prometheus.CounterVec
	ConditionEvaluations *prometheus.CounterVec
	TruePartitions       *prometheus.GaugeVec
	RunRequestsTotal     prometheus.Counter
	PublishFailures      prometheus.Counter
}

// NewMetrics создаёт и регистрирует метрики.
// reg == nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assetsched_tick_duration_seconds",
			Help:    "Duration of scheduler ticks",
			Buckets: prometheus.DefBuckets,
		}),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetsched_ticks_total",
			Help: "Total scheduler ticks by status",
		}, []string{"status"}),
		ConditionEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetsched_condition_evaluations_total",
			Help: "Total root condition evaluations by asset",
		}, []string{"asset_key"}),
		TruePartitions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "assetsched_true_partitions",
			Help: "Number of partitions requested by the latest evaluation",
		}, []string{"asset_key"}),
		RunRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assetsched_run_requests_total",
			Help: "Total run requests emitted",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assetsched_publish_failures_total",
			Help: "Total failed run request publications",
		}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.TicksTotal,
		m.ConditionEvaluations,
		m.TruePartitions,
		m.RunRequestsTotal,
		m.PublishFailures,
	)
	return m
}

// ObserveTick фиксирует завершение тика.
func (m *Metrics) ObserveTick(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := TickStatusOK
	if err != nil {
		status = TickStatusFailed
	}
	m.TicksTotal.WithLabelValues(status).Inc()
	m.TickDuration.Observe(d.Seconds())
}

// ObserveEvaluation фиксирует вычисление политики asset.
func (m *Metrics) ObserveEvaluation(assetKey string, truePartitions int) {
	if m == nil {
		return
	}
	m.ConditionEvaluations.WithLabelValues(assetKey).Inc()
	m.TruePartitions.WithLabelValues(assetKey).Set(float64(truePartitions))
}

// AddRunRequests увеличивает счётчик запросов на запуск.
func (m *Metrics) AddRunRequests(n int) {
	if m == nil {
		return
	}
	m.RunRequestsTotal.Add(float64(n))
}

// IncPublishFailures увеличивает счётчик ошибок публикации.
func (m *Metrics) IncPublishFailures() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}
