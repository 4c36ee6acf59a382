package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConsumerMetrics tracks a consumer runtime per stream and group.
type ConsumerMetrics struct {
	processed *prometheus.CounterVec
	acked     *prometheus.CounterVec
	failed    *prometheus.CounterVec
	claimed   *prometheus.CounterVec
	trimmed   *prometheus.CounterVec
	phase     *prometheus.GaugeVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	factory := promauto.With(reg)
	counter := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crystalstream",
				Subsystem: "consumer",
				Name:      name,
				Help:      help,
			},
			[]string{"stream", "group"},
		)
	}

	return &ConsumerMetrics{
		processed: counter("processed_total", "Entries handed to the consumer"),
		acked:     counter("acked_total", "Entries acknowledged after successful processing"),
		failed:    counter("failed_total", "Entries the consumer did not process successfully"),
		claimed:   counter("claimed_total", "Pending entries claimed during recovery"),
		trimmed:   counter("trimmed_total", "Entries removed by retention trimming"),
		phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "crystalstream",
				Subsystem: "consumer",
				Name:      "phase",
				Help:      "Current runtime phase (0 idle, 1 joining, 2 recovering, 3 listening, 4 stopped)",
			},
			[]string{"stream", "group", "consumer"},
		),
	}
}

func (m *ConsumerMetrics) Processed(stream, group string) {
	m.processed.WithLabelValues(stream, group).Inc()
}

func (m *ConsumerMetrics) Acked(stream, group string) {
	m.acked.WithLabelValues(stream, group).Inc()
}

func (m *ConsumerMetrics) Failed(stream, group string) {
	m.failed.WithLabelValues(stream, group).Inc()
}

func (m *ConsumerMetrics) Claimed(stream, group string, n int) {
	m.claimed.WithLabelValues(stream, group).Add(float64(n))
}

func (m *ConsumerMetrics) Trimmed(stream, group string, n int64) {
	m.trimmed.WithLabelValues(stream, group).Add(float64(n))
}

func (m *ConsumerMetrics) Phase(stream, group, consumer string, phase int) {
	m.phase.WithLabelValues(stream, group, consumer).Set(float64(phase))
}
