package config

import (
	"log"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Port string `env:"PORT" envDefault:"5000"`

	// Assistant (OpenAI threads/runs)
	OpenAIAPIKey       string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL"`
	OpenAIOrganization string `env:"OPENAI_ORGANIZATION"`
	AssistantID        string `env:"ASSISTANT_ID,required"`

	// Run polling
	RunPollInitial    time.Duration `env:"RUN_POLL_INITIAL" envDefault:"250ms"`
	RunPollMax        time.Duration `env:"RUN_POLL_MAX_INTERVAL" envDefault:"2s"`
	RunPollMultiplier float64       `env:"RUN_POLL_MULTIPLIER" envDefault:"1.5"`
	RunPollTimeout    time.Duration `env:"RUN_POLL_TIMEOUT" envDefault:"90s"`
	MaxToolRounds     int           `env:"MAX_TOOL_ROUNDS" envDefault:"10"`
	TurnTimeout       time.Duration `env:"TURN_TIMEOUT" envDefault:"150s"`

	Services

	// Thread locking
	RedisURL       string        `env:"REDIS_URL"`
	ThreadLockWait time.Duration `env:"THREAD_LOCK_WAIT" envDefault:"30s"`
	ThreadLockTTL  time.Duration `env:"THREAD_LOCK_TTL" envDefault:"30s"`

	// Agenda digest
	AgendaDigestCron string `env:"AGENDA_DIGEST_CRON" envDefault:"0 7 * * *"`

	// Storage
	TurnLogPath string `env:"TURN_LOG_PATH"`

	// Observability
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string `env:"LOG_FORMAT" envDefault:"json"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"asistente-bellachik"`
}

// Services holds the credentials of the external integrations. It is all
// the MCP tools server needs.
type Services struct {
	// Airtable
	AirtableBaseID    string  `env:"BASE_ID"`
	AirtableToken     string  `env:"ACCESS_TOKEN"`
	AirtableTable     string  `env:"AIRTABLE_TABLE_NAME" envDefault:"Clientes"`
	AirtableRateLimit float64 `env:"AIRTABLE_RATE_LIMIT" envDefault:"5"`

	// WhatsApp Cloud API
	WhatsAppToken      string `env:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneID    string `env:"PHONE_NUMBER_ID"`
	WhatsAppAPIVersion string `env:"WHATSAPP_API_VERSION" envDefault:"v21.0"`
	VerifyToken        string `env:"VERIFY_TOKEN"`

	// Google Calendar (service account)
	CalendarCredentials string `env:"CALENDAR_CREDENTIALS"`
	CalendarID          string `env:"CALENDAR_ID" envDefault:"primary"`
	CalendarTimezone    string `env:"CALENDAR_TIMEZONE" envDefault:"America/Mexico_City"`

	// Gmail (OAuth2 installed/web client)
	GmailCredentials  string `env:"GMAIL_CREDENTIALS_JSON"`
	GmailRefreshToken string `env:"GMAIL_REFRESH_TOKEN"`
	GmailTokenPath    string `env:"GMAIL_TOKEN_PATH" envDefault:"data/gmail-token.json"`

	// Google Docs (service account)
	DocsCredentials string `env:"DOCS_CREDENTIALS"`

	AgendaDigestPhone string `env:"AGENDA_DIGEST_PHONE"`
	TelegramBotToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    int64  `env:"TELEGRAM_CHAT_ID"`
}

// Load parses the environment without exiting on failure.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServices parses only the integration settings.
func LoadServices() (*Services, error) {
	s := &Services{}
	if err := env.Parse(s); err != nil {
		return nil, err
	}
	return s, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func (c *Services) AirtableEnabled() bool {
	return c.AirtableBaseID != "" && c.AirtableToken != ""
}

func (c *Services) WhatsAppEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneID != ""
}

func (c *Services) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// Location resolves CalendarTimezone, falling back to UTC.
func (c *Services) Location() *time.Location {
	loc, err := time.LoadLocation(c.CalendarTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
