// server runs the Bellachik assistant webhook.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/assistant"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/bootstrap"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/config"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/httpapi"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/logger"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/metrics"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/scheduler"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/storage"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/telemetry"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	zl := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = zl.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  cfg.OTelServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		zl.Error("otel setup failed", zap.Error(err))
	} else {
		defer func() { _ = otelShutdown(context.Background()) }()
	}

	m := metrics.New()
	svc := bootstrap.Build(ctx, &cfg.Services, zl)
	table := tools.NewTable(svc.Adapters())
	zl.Info("tools registered", zap.Strings("tools", table.Names()))

	locker, closeLocker, err := bootstrap.NewLocker(ctx, cfg)
	if err != nil {
		zl.Fatal("thread locker", zap.Error(err))
	}
	defer closeLocker()

	var journal storage.Journal = storage.Discard{}
	if cfg.TurnLogPath != "" {
		fj, err := storage.NewFileJournal(cfg.TurnLogPath)
		if err != nil {
			zl.Warn("turn journal disabled", zap.String("path", cfg.TurnLogPath), zap.Error(err))
		} else {
			journal = fj
		}
	}

	poll := assistant.PollConfig{
		InitialInterval: cfg.RunPollInitial,
		MaxInterval:     cfg.RunPollMax,
		Multiplier:      cfg.RunPollMultiplier,
		MaxWait:         cfg.RunPollTimeout,
	}
	driver := assistant.New(
		assistant.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIOrganization),
		cfg.AssistantID,
		table,
		assistant.WithLocker(locker, cfg.ThreadLockWait),
		assistant.WithPolling(poll),
		assistant.WithMaxToolRounds(cfg.MaxToolRounds),
		assistant.WithTurnTimeout(cfg.TurnTimeout),
		assistant.WithLogger(zl.Named("assistant")),
		assistant.WithMetrics(m),
		assistant.WithJournal(journal),
	)

	if svc.Calendar != nil {
		sched := scheduler.New(cfg.AgendaDigestCron, cfg.Location(), svc.Calendar, zl.Named("scheduler"), svc.DigestNotifiers(&cfg.Services, zl)...)
		if err := sched.Start(); err != nil {
			zl.Error("agenda digest not scheduled", zap.Error(err))
		}
		defer sched.Stop()
	}

	api := &httpapi.Server{
		Turns:       driver,
		VerifyToken: cfg.VerifyToken,
		Metrics:     m,
		Log:         zl.Named("http"),
	}
	if svc.WhatsApp != nil {
		api.Messenger = svc.WhatsApp
	}

	srv := httpapi.NewHTTPServer(":"+cfg.Port, api.Router(), cfg.TurnTimeout)
	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		zl.Error("server shutdown error", zap.Error(err))
	}
}
