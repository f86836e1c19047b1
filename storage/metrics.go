package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

import (
	"github.com/timtadh/offheap/varchar"
)

type Metrics struct {
	records       prometheus.Gauge
	regionBytes   prometheus.Gauge
	freeBytes     prometheus.Gauge
	grows         prometheus.Counter
	shrinks       prometheus.Counter
	allocFailures prometheus.Counter

	reg prometheus.Registerer
}

// NewMetrics builds the engine metrics and, when registerer is not nil,
// registers them as offheap_storage_* labelled with collection=name.
func NewMetrics(name string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}

	m.records = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "records",
		Help: "Number of live records.",
	})

	m.regionBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "region_bytes",
		Help: "Size of the mapped backing region.",
	})

	m.freeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "free_bytes",
		Help: "Bytes of the backing region not held by a record.",
	})

	m.grows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "region_grows_total",
		Help: "Total number of times the backing region was grown.",
	})

	m.shrinks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "region_shrinks_total",
		Help: "Total number of times the backing region was shrunk on clear.",
	})

	m.allocFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_failures_total",
		Help: "Total number of record writes that could not get space.",
	})

	if registerer == nil {
		return m, nil
	}
	if name == "" {
		name = "default"
	}
	reg := prometheus.WrapRegistererWithPrefix("offheap_storage_",
		prometheus.WrapRegistererWith(prometheus.Labels{"collection": name}, registerer))
	cs := m.collectors()
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, done := range cs[:i] {
				reg.Unregister(done)
			}
			return nil, err
		}
	}
	m.reg = reg
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.records,
		m.regionBytes,
		m.freeBytes,
		m.grows,
		m.shrinks,
		m.allocFailures,
	}
}

// Unregister removes the metrics from the registerer they were
// registered with, if any.
func (m *Metrics) Unregister() {
	if m.reg == nil {
		return
	}
	for _, c := range m.collectors() {
		m.reg.Unregister(c)
	}
	m.reg = nil
}

func (m *Metrics) observe(records int, s varchar.Stats) {
	m.records.Set(float64(records))
	m.regionBytes.Set(float64(s.RegionSize))
	m.freeBytes.Set(float64(s.FreeBytes))
}
