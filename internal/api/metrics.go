package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded by the predictions counter.
const (
	outcomeLeave      = "leave"
	outcomeStay       = "not_leave"
	outcomeInvalid    = "validation_error"
	outcomeEncoding   = "encoding_error"
	outcomePrediction = "prediction_error"
)

type metrics struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
	sockets     prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "churn",
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "churn",
			Name:      "inference_duration_seconds",
			Help:      "Time spent encoding and scoring one request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		sockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "churn",
			Name:      "websocket_clients",
			Help:      "Open prediction websocket connections.",
		}),
	}
	m.registry.MustRegister(
		m.predictions,
		m.latency,
		m.sockets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observe(outcome string, elapsed time.Duration) {
	m.predictions.WithLabelValues(outcome).Inc()
	if outcome == outcomeLeave || outcome == outcomeStay {
		m.latency.Observe(elapsed.Seconds())
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
