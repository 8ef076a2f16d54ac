package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveTurn("completed")
	m.ObserveTurn("completed")
	m.ObserveToolCall("consultar_cliente", "ok")
	m.ObserveToolRounds(2)
	m.ObserveRunWait(1500 * time.Millisecond)
	m.ObserveWhatsApp("2xx")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				values[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, 2.0, values["assistant_turns_total"])
	assert.Equal(t, 1.0, values["assistant_tool_calls_total"])
	assert.Equal(t, 1.0, values["assistant_tool_rounds"])
	assert.Equal(t, 1.0, values["assistant_run_wait_seconds"])
	assert.Equal(t, 1.0, values["whatsapp_messages_total"])
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("x")
	m.ObserveToolCall("x", "y")
	m.ObserveToolRounds(1)
	m.ObserveRunWait(time.Second)
	m.ObserveWhatsApp("2xx")
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveTurn("timeout")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `assistant_turns_total{outcome="timeout"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
