package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты переходов для метки result.
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
)

// LifecycleMetrics содержит метрики жизненного цикла альбаранов.
type LifecycleMetrics struct {
	// Счётчики операций
	created     prometheus.Counter
	transitions *prometheus.CounterVec

	// Исходы экспорта в Factusol
	exportCompleted prometheus.Counter
	exportFailed    prometheus.Counter

	exportDuration prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для экспортов в полёте
	exportsInFlight prometheus.Gauge
}

// NewLifecycleMetrics создаёт метрики в глобальном registry.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer создаёт метрики в указанном registry (удобно для тестов).
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		created: registerCounter(registerer, prometheus.CounterOpts{
			Name: "albaran_created_total",
			Help: "Total number of albaranes created",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "albaran_transitions_total",
			Help: "Lifecycle transitions grouped by trigger and result",
		}, []string{"trigger", "result"}),
		exportCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "albaran_export_completed_total",
			Help: "Total number of albaranes accepted by Factusol",
		}),
		exportFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "albaran_export_failed_total",
			Help: "Total number of albaranes rejected by Factusol",
		}),
		exportDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "albaran_export_duration_seconds",
			Help:    "Duration of Factusol export calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "albaran_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "albaran_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		exportsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "albaran_exports_in_flight",
			Help: "Number of Factusol exports currently in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCreated увеличивает счётчик созданных альбаранов.
func (m *LifecycleMetrics) RecordCreated() {
	m.created.Inc()
}

// RecordTransition учитывает попытку перехода по триггеру.
func (m *LifecycleMetrics) RecordTransition(trigger, result string) {
	m.transitions.WithLabelValues(trigger, result).Inc()
}

// RecordExportStarted увеличивает количество экспортов в полёте.
func (m *LifecycleMetrics) RecordExportStarted() {
	m.exportsInFlight.Inc()
}

// RecordExportFinished фиксирует исход экспорта и его длительность.
func (m *LifecycleMetrics) RecordExportFinished(success bool, duration time.Duration) {
	m.exportsInFlight.Dec()
	m.exportDuration.Observe(duration.Seconds())
	if success {
		m.exportCompleted.Inc()
		return
	}
	m.exportFailed.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
