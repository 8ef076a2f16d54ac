// Package bootstrap builds the configured service adapters shared by the
// webhook server and the MCP tools server.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/airtable"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/calendar"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/config"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/docs"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/gmail"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/scheduler"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/telegram"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/threadlock"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/whatsapp"
)

// Services are the adapters that could be configured. Unconfigured ones
// stay nil and their tools are left out.
type Services struct {
	Airtable *airtable.Client
	Calendar *calendar.Client
	Gmail    *gmail.Client
	Docs     *docs.Client
	WhatsApp *whatsapp.Client
}

func Build(ctx context.Context, cfg *config.Services, log *zap.Logger) *Services {
	s := &Services{}

	if cfg.AirtableEnabled() {
		s.Airtable = airtable.NewClient(cfg.AirtableBaseID, cfg.AirtableTable, cfg.AirtableToken,
			airtable.WithRateLimit(cfg.AirtableRateLimit))
	} else {
		log.Info("airtable not configured")
	}

	if raw, err := ReadCredentials(cfg.CalendarCredentials); err != nil {
		log.Warn("calendar credentials", zap.Error(err))
	} else if raw != nil {
		c, err := calendar.FromServiceAccount(ctx, raw, cfg.CalendarID, cfg.Location())
		if err != nil {
			log.Error("calendar client", zap.Error(err))
		} else {
			s.Calendar = c
		}
	}

	if raw, err := ReadCredentials(cfg.GmailCredentials); err != nil {
		log.Warn("gmail credentials", zap.Error(err))
	} else if raw != nil {
		c, err := gmail.FromOAuth(ctx, raw, cfg.GmailRefreshToken, cfg.GmailTokenPath)
		if err != nil {
			log.Error("gmail client", zap.Error(err))
		} else {
			s.Gmail = c
		}
	}

	if raw, err := ReadCredentials(cfg.DocsCredentials); err != nil {
		log.Warn("docs credentials", zap.Error(err))
	} else if raw != nil {
		c, err := docs.FromServiceAccount(ctx, raw)
		if err != nil {
			log.Error("docs client", zap.Error(err))
		} else {
			s.Docs = c
		}
	}

	if cfg.WhatsAppEnabled() {
		s.WhatsApp = whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID, cfg.WhatsAppAPIVersion)
	} else {
		log.Info("whatsapp not configured")
	}
	return s
}

// Adapters converts to tools.Adapters without turning nil pointers into
// non-nil interfaces.
func (s *Services) Adapters() tools.Adapters {
	var a tools.Adapters
	if s.Airtable != nil {
		a.Tabular = s.Airtable
	}
	if s.Calendar != nil {
		a.Calendar = s.Calendar
	}
	if s.Gmail != nil {
		a.Mailer = s.Gmail
	}
	if s.WhatsApp != nil {
		a.Messenger = s.WhatsApp
	}
	if s.Docs != nil {
		a.Documents = s.Docs
	}
	return a
}

// DigestNotifiers are the agenda digest targets: the configured WhatsApp
// phone and the Telegram chat.
func (s *Services) DigestNotifiers(cfg *config.Services, log *zap.Logger) []scheduler.Notifier {
	var out []scheduler.Notifier
	if s.WhatsApp != nil && cfg.AgendaDigestPhone != "" {
		out = append(out, whatsapp.NewPhoneNotifier(s.WhatsApp, cfg.AgendaDigestPhone))
	}
	if cfg.TelegramEnabled() {
		n, err := telegram.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Error("telegram notifier", zap.Error(err))
		} else {
			out = append(out, n)
		}
	}
	return out
}

// ReadCredentials accepts inline JSON or a path to a JSON file. Empty
// means not configured.
func ReadCredentials(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "{") {
		return []byte(v), nil
	}
	b, err := os.ReadFile(v)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", v, err)
	}
	return b, nil
}

// NewLocker picks Redis when REDIS_URL is set, the in-process locker otherwise.
func NewLocker(ctx context.Context, cfg *config.Config) (threadlock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return threadlock.NewMemory(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return threadlock.NewRedis(client, cfg.ThreadLockTTL), func() { _ = client.Close() }, nil
}
