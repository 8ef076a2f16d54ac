package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/config"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/threadlock"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
)

func TestReadCredentials(t *testing.T) {
	raw, err := ReadCredentials("")
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = ReadCredentials(`  {"type":"service_account"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, string(raw))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))
	raw, err = ReadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	_, err = ReadCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBuildServices_NothingConfigured(t *testing.T) {
	svc := Build(context.Background(), &config.Services{CalendarTimezone: "UTC"}, zap.NewNop())
	a := svc.Adapters()
	assert.Nil(t, a.Tabular)
	assert.Nil(t, a.Calendar)
	assert.Nil(t, a.Mailer)
	assert.Nil(t, a.Messenger)
	assert.Nil(t, a.Documents)
	assert.Equal(t, []string{"consultar_cliente"}, tools.NewTable(a).Names())
	assert.Empty(t, svc.DigestNotifiers(&config.Services{AgendaDigestPhone: "5215550001"}, zap.NewNop()))
}

func TestBuildServices_AirtableAndWhatsApp(t *testing.T) {
	cfg := &config.Services{
		AirtableBaseID:     "appX",
		AirtableToken:      "pat",
		AirtableTable:      "Clientes",
		AirtableRateLimit:  5,
		WhatsAppToken:      "tok",
		WhatsAppPhoneID:    "123",
		WhatsAppAPIVersion: "v21.0",
		AgendaDigestPhone:  "5215550001",
	}
	svc := Build(context.Background(), cfg, zap.NewNop())
	a := svc.Adapters()
	assert.NotNil(t, a.Tabular)
	assert.NotNil(t, a.Messenger)
	assert.Nil(t, a.Calendar)

	names := tools.NewTable(a).Names()
	assert.Contains(t, names, "actualizar_cliente")
	assert.Contains(t, names, "enviar_whatsapp")
	assert.NotContains(t, names, "agendar_cita")
	assert.Len(t, svc.DigestNotifiers(cfg, zap.NewNop()), 1)
}

func TestNewLocker(t *testing.T) {
	l, closeFn, err := NewLocker(context.Background(), &config.Config{})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &threadlock.Memory{}, l)

	mr := miniredis.RunT(t)
	l, closeRedis, err := NewLocker(context.Background(), &config.Config{RedisURL: "redis://" + mr.Addr(), ThreadLockTTL: 0})
	require.NoError(t, err)
	defer closeRedis()
	assert.IsType(t, &threadlock.Redis{}, l)

	_, _, err = NewLocker(context.Background(), &config.Config{RedisURL: "::not a url"})
	assert.Error(t, err)
}
