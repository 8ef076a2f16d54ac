package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/assistant"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/envelope"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/whatsapp"
)

const (
	msgTurnFieldsRequired = `Se requieren los campos "message" y "thread_id" en el JSON.`
	msgEmptyMessage       = `El campo "message" no puede estar vacío.`
	msgThreadBusy         = "El hilo está procesando otro mensaje. Intenta de nuevo en unos momentos."
	msgRunTimedOut        = "El asistente no respondió a tiempo."
	msgSendFieldsRequired = `Se requieren los campos "phone_number" y "message" en el JSON.`
	msgWhatsAppDisabled   = "El envío por WhatsApp no está configurado."
)

type turnResponse struct {
	Status    string              `json:"status"`
	ThreadID  string              `json:"thread_id"`
	RunStatus string              `json:"run_status"`
	Messages  []assistant.Message `json:"messages"`
}

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Asistente Bellachik está en línea"))
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	turn, ok := decodeTurn(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgTurnFieldsRequired)
		return
	}

	res, err := s.Turns.HandleTurn(r.Context(), turn)
	if err != nil {
		status, msg := mapTurnError(err)
		if status == http.StatusInternalServerError {
			s.Log.Error("turn failed", zap.String("thread_id", turn.ThreadID), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	msgs := res.Messages
	if msgs == nil {
		msgs = []assistant.Message{}
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Status:    envelope.StatusSuccess,
		ThreadID:  res.ThreadID,
		RunStatus: string(res.RunStatus),
		Messages:  msgs,
	})
}

// decodeTurn requires both "message" and "thread_id" keys to be present.
// thread_id may be null or "" to start a new thread; customer is optional.
func decodeTurn(w http.ResponseWriter, r *http.Request) (assistant.Turn, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		return assistant.Turn{}, false
	}
	rawMsg, okMsg := body["message"]
	rawThread, okThread := body["thread_id"]
	if !okMsg || !okThread {
		return assistant.Turn{}, false
	}

	var turn assistant.Turn
	if err := json.Unmarshal(rawMsg, &turn.Message); err != nil {
		return assistant.Turn{}, false
	}
	if !isNull(rawThread) {
		if err := json.Unmarshal(rawThread, &turn.ThreadID); err != nil {
			return assistant.Turn{}, false
		}
	}
	if raw, ok := body["customer"]; ok && !isNull(raw) {
		var c tools.Customer
		if err := json.Unmarshal(raw, &c); err != nil {
			return assistant.Turn{}, false
		}
		turn.Customer = c
	}
	return turn, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func mapTurnError(err error) (int, string) {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return http.StatusBadRequest, msgEmptyMessage
	case errors.Is(err, assistant.ErrThreadBusy):
		return http.StatusConflict, msgThreadBusy
	case errors.Is(err, assistant.ErrRunTimedOut):
		return http.StatusGatewayTimeout, msgRunTimedOut
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Error inesperado: %v", err)
	}
}

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// sendMessage proxies to WhatsApp and mirrors the vendor's status and body.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var in sendRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.PhoneNumber == "" || in.Message == "" {
		writeError(w, http.StatusBadRequest, msgSendFieldsRequired)
		return
	}
	if s.Messenger == nil {
		writeError(w, http.StatusServiceUnavailable, msgWhatsAppDisabled)
		return
	}

	res, err := s.Messenger.SendText(r.Context(), in.PhoneNumber, in.Message)
	if err != nil {
		s.Metrics.ObserveWhatsApp("error")
		s.Log.Error("whatsapp send failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error inesperado: %v", err))
		return
	}
	s.Metrics.ObserveWhatsApp(statusClass(res.StatusCode))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.VerifyToken)
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(challenge))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope.WithStatus(envelope.StatusError, msg))
}
