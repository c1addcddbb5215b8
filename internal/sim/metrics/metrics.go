package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "colonysim"

// Metrics owns its registry so several worlds (and tests) never collide on
// the global one.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks        prometheus.Counter
	StepSeconds  prometheus.Histogram
	Deals        prometheus.Counter
	DealQuantity *prometheus.CounterVec
	Deliveries   prometheus.Counter
	Crafts       prometheus.Counter
	Evaluations  *prometheus.CounterVec
	OpenJobs     prometheus.Gauge
	Reservations prometheus.Gauge
	Entities     *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks stepped",
		}),
		StepSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_seconds",
			Help:      "Wall time spent in one tick",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		Deals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deals_total",
			Help:      "Logistics deals committed",
		}),
		DealQuantity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_quantity_total",
			Help:      "Units committed to deals, by material",
		}, []string{"material"}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Transports delivered",
		}),
		Crafts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crafts_total",
			Help:      "Workshop batches produced",
		}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Finished behavior tree evaluations, by outcome",
		}, []string{"outcome"}),
		OpenJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_jobs",
			Help:      "Free vacancies on the job board",
		}),
		Reservations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservations",
			Help:      "Open inventory reservations across all entities",
		}),
		Entities: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Live entities, by kind",
		}, []string{"kind"}),
	}
}

// WithProcess adds the Go runtime and process collectors, for the server.
func (m *Metrics) WithProcess() *Metrics {
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
