package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/assistant"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/metrics"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/whatsapp"
)

type fakeTurns struct {
	calls []assistant.Turn
	res   *assistant.Result
	err   error
	delay time.Duration
}

func (f *fakeTurns) HandleTurn(_ context.Context, t assistant.Turn) (*assistant.Result, error) {
	f.calls = append(f.calls, t)
	time.Sleep(f.delay)
	return f.res, f.err
}

type fakeMessenger struct {
	phone, text string
	res         *whatsapp.SendResult
	err         error
}

func (f *fakeMessenger) SendText(_ context.Context, phone, text string) (*whatsapp.SendResult, error) {
	f.phone, f.text = phone, text
	return f.res, f.err
}

func newTestServer(t *testing.T, turns *fakeTurns, msg messenger) *httptest.Server {
	t.Helper()
	s := &Server{Turns: turns, Messenger: msg, VerifyToken: "secreto", Metrics: metrics.New(), Log: zaptest.NewLogger(t)}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestHome(t *testing.T) {
	srv := newTestServer(t, &fakeTurns{}, nil)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Asistente Bellachik está en línea", string(body))
}

func TestTurn_Success(t *testing.T) {
	turns := &fakeTurns{res: &assistant.Result{
		ThreadID:  "thread_1",
		RunStatus: openai.RunStatusCompleted,
		Messages: []assistant.Message{
			{Role: "user", Content: "Hola", ThreadID: "thread_1"},
			{Role: "assistant", Content: "¡Hola!", ThreadID: "thread_1"},
		},
	}}
	srv := newTestServer(t, turns, nil)

	resp, out := post(t, srv, "/asistente_bellachik",
		`{"message":"Hola","thread_id":"","customer":{"nombre_completo":"Ana","edad":34}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "thread_1", out["thread_id"])
	assert.Equal(t, "completed", out["run_status"])
	require.Len(t, out["messages"], 2)
	first := out["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"role": "user", "content": "Hola", "thread_id": "thread_1"}, first)

	require.Len(t, turns.calls, 1)
	assert.Equal(t, "", turns.calls[0].ThreadID)
	assert.Equal(t, "Ana", string(turns.calls[0].Customer.FullName))
	assert.Equal(t, "34", string(turns.calls[0].Customer.Age))
}

func TestTurn_FailedRunStillSucceeds(t *testing.T) {
	turns := &fakeTurns{res: &assistant.Result{ThreadID: "t", RunStatus: openai.RunStatusFailed}}
	srv := newTestServer(t, turns, nil)

	resp, out := post(t, srv, "/asistente_bellachik", `{"message":"Hola","thread_id":"t"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", out["run_status"])
	assert.Equal(t, []any{}, out["messages"])
}

func TestTurn_BadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{"message":`,
		"missing thread_id": `{"message":"Hola"}`,
		"missing message":   `{"thread_id":"t"}`,
		"not an object":     `[]`,
		"message not text":  `{"message":5,"thread_id":"t"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			turns := &fakeTurns{}
			srv := newTestServer(t, turns, nil)
			resp, out := post(t, srv, "/asistente_bellachik", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "error", out["status"])
			assert.Equal(t, msgTurnFieldsRequired, out["message"])
			assert.Empty(t, turns.calls)
		})
	}
}

func TestTurn_NullThreadStartsNew(t *testing.T) {
	turns := &fakeTurns{res: &assistant.Result{ThreadID: "nuevo", RunStatus: openai.RunStatusCompleted}}
	srv := newTestServer(t, turns, nil)

	resp, _ := post(t, srv, "/asistente_bellachik", `{"message":"Hola","thread_id":null,"customer":null}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, turns.calls, 1)
	assert.Equal(t, "", turns.calls[0].ThreadID)
}

func TestTurn_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{assistant.ErrEmptyMessage, http.StatusBadRequest, msgEmptyMessage},
		{fmt.Errorf("lock: %w", assistant.ErrThreadBusy), http.StatusConflict, msgThreadBusy},
		{fmt.Errorf("poll: %w", assistant.ErrRunTimedOut), http.StatusGatewayTimeout, msgRunTimedOut},
		{errors.New("upstream 502"), http.StatusInternalServerError, "Error inesperado: upstream 502"},
	}
	for _, tc := range cases {
		srv := newTestServer(t, &fakeTurns{err: tc.err}, nil)
		resp, out := post(t, srv, "/asistente_bellachik", `{"message":"Hola","thread_id":"t"}`)
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
		assert.Equal(t, "error", out["status"])
		assert.Equal(t, tc.msg, out["message"])
	}
}

func TestSendMessage_MirrorsVendor(t *testing.T) {
	msg := &fakeMessenger{res: &whatsapp.SendResult{StatusCode: http.StatusBadRequest, Body: json.RawMessage(`{"error":{"code":131030}}`)}}
	srv := newTestServer(t, &fakeTurns{}, msg)

	resp, out := post(t, srv, "/send_message", `{"phone_number":"5215550001","message":"Recordatorio"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": map[string]any{"code": float64(131030)}}, out)
	assert.Equal(t, "5215550001", msg.phone)
	assert.Equal(t, "Recordatorio", msg.text)
}

func TestSendMessage_Errors(t *testing.T) {
	srv := newTestServer(t, &fakeTurns{}, &fakeMessenger{err: errors.New("dial tcp: refused")})

	resp, out := post(t, srv, "/send_message", `{"phone_number":"5215550001"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgSendFieldsRequired, out["message"])

	resp, out = post(t, srv, "/send_message", `{"phone_number":"5215550001","message":"hola"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, out["message"], "dial tcp: refused")

	disabled := newTestServer(t, &fakeTurns{}, nil)
	resp, _ = post(t, disabled, "/send_message", `{"phone_number":"5215550001","message":"hola"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebhookVerification(t *testing.T) {
	srv := newTestServer(t, &fakeTurns{}, nil)

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=1158201444")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1158201444", string(body))

	resp, err = http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=otro&hub.challenge=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeTurns{}, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestHTTPServer_TurnAtItsBudgetStillAnswers(t *testing.T) {
	const budget = 200 * time.Millisecond
	turns := &fakeTurns{err: assistant.ErrRunTimedOut, delay: budget + 50*time.Millisecond}
	s := &Server{Turns: turns, Metrics: metrics.New(), Log: zaptest.NewLogger(t)}

	cfg := NewHTTPServer("", s.Router(), budget)
	assert.Greater(t, cfg.WriteTimeout, budget)

	srv := httptest.NewUnstartedServer(cfg.Handler)
	srv.Config.WriteTimeout = cfg.WriteTimeout
	srv.Config.ReadTimeout = cfg.ReadTimeout
	srv.Start()
	t.Cleanup(srv.Close)

	resp, out := post(t, srv, "/asistente_bellachik", `{"message":"hola","thread_id":"thread_1"}`)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
}
