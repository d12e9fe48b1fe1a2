package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "certivax"

// Metrics agrupa las métricas del registro. Los métodos aceptan receptor nil.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	QualityScore      prometheus.Histogram
	Published         *prometheus.CounterVec
}

// New registra las métricas en reg (prometheus.DefaultRegisterer si es nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by name and result kind",
		}, []string{"operation", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Registry operation latency including the store transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QualityScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "quality_score",
			Help:      "Animal quality score after each verification or revocation",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notifications handed to each sink by result",
		}, []string{"sink", "result"}),
	}
}

func (m *Metrics) ObserveOperation(op string, start time.Time, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveQualityScore(score int) {
	if m == nil {
		return
	}
	m.QualityScore.Observe(float64(score))
}

func (m *Metrics) IncPublished(sink string, n int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(sink, result).Add(float64(n))
}
