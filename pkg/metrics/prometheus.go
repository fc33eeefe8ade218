package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billpay"

// PrometheusRecorder exports counters and latencies to a Prometheus registry
type PrometheusRecorder struct {
	registry  *prometheus.Registry
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors on a fresh registry
func NewPrometheusRecorder() (*PrometheusRecorder, error) {
	registry := prometheus.NewRegistry()

	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Payment workflow event counters",
		},
		[]string{"type", LabelNetwork, LabelOutcome},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latency_seconds",
			Help:      "Payment workflow operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", LabelNetwork},
	)

	for _, c := range []prometheus.Collector{
		counters,
		histogram,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &PrometheusRecorder{
		registry:  registry,
		counters:  counters,
		histogram: histogram,
	}, nil
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":       name,
		LabelNetwork: labels[LabelNetwork],
		LabelOutcome: labels[LabelOutcome],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation":  name,
		LabelNetwork: labels[LabelNetwork],
	}).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
