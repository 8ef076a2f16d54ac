// Package metrics holds the Prometheus collectors of the webhook.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	turns      *prometheus.CounterVec
	toolCalls  *prometheus.CounterVec
	toolRounds prometheus.Histogram
	runWait    prometheus.Histogram
	whatsapp   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Webhook turns by outcome",
		}, []string{"outcome"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_tool_calls_total",
			Help: "Dispatched tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		toolRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_tool_rounds",
			Help:    "requires_action rounds per turn",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
		}),
		runWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_run_wait_seconds",
			Help:    "Time spent polling a run until it settled",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		whatsapp: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_messages_total",
			Help: "Outbound WhatsApp messages by vendor status class",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) ObserveToolRounds(n int) {
	if m == nil {
		return
	}
	m.toolRounds.Observe(float64(n))
}

func (m *Metrics) ObserveRunWait(d time.Duration) {
	if m == nil {
		return
	}
	m.runWait.Observe(d.Seconds())
}

// ObserveWhatsApp counts a send by status class ("2xx", "4xx", "error").
func (m *Metrics) ObserveWhatsApp(class string) {
	if m == nil {
		return
	}
	m.whatsapp.WithLabelValues(class).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
