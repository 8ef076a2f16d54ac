// Package httpapi is the webhook's HTTP boundary.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/assistant"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/metrics"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/whatsapp"
)

const maxBodyBytes = 1 << 20

type turnHandler interface {
	HandleTurn(ctx context.Context, turn assistant.Turn) (*assistant.Result, error)
}

type messenger interface {
	SendText(ctx context.Context, phone, text string) (*whatsapp.SendResult, error)
}

// Server holds the handlers' collaborators. Messenger may be nil when
// WhatsApp is not configured.
type Server struct {
	Turns       turnHandler
	Messenger   messenger
	VerifyToken string
	Metrics     *metrics.Metrics
	Log         *zap.Logger
}

// Router mounts every route with the shared middleware stack.
func (s *Server) Router() http.Handler {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))
	r.Use(middleware.Recoverer)

	r.Get("/", s.home)
	r.Post("/asistente_bellachik", s.handleTurn)
	r.Post("/send_message", s.sendMessage)
	r.Get("/webhook", s.verifyWebhook)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	return r
}

// NewHTTPServer wraps h with the timeouts used in production. The write
// timeout has to outlast a full run poll.
// writeSlack covers the tail of a turn after its deadline: the final message
// listing and the response write.
const writeSlack = 15 * time.Second

// NewHTTPServer sizes WriteTimeout past turnBudget so a turn cut off by its
// own deadline still gets its 504 written.
func NewHTTPServer(addr string, h http.Handler, turnBudget time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      turnBudget + writeSlack,
		IdleTimeout:       60 * time.Second,
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
