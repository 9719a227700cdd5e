package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/linemk/tolo-delivery/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
env: "local"
http_server:
  address: "localhost:8080"
  timeout: "4s"
  idle_timeout: "60s"
database:
  host: "localhost"
  port: 5432
  user: "postgres"
  name: "tolodelivery"
jwt:
  token_ttl: 60
telegram:
  max_age: "24h"
gateway:
  base_url: "https://gateway.test"
  currency: "ETB"
  callback_url: "https://api.test/api/pay/callback"
pricing:
  base_fee: 40
  per_km: 12
redis:
  addr: "localhost:6379"
  quote_ttl: "5m"
migrations:
  path: "./migrations"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "config_test_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

func setSecrets(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:bot-token")
	t.Setenv("GATEWAY_SECRET_KEY", "CHASECK_TEST-xyz")
}

func TestMustLoadByPath_Success(t *testing.T) {
	setSecrets(t)

	cfg := config.MustLoadByPath(writeConfig(t, sampleConfig))

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "localhost:8080", cfg.HTTPServer.Address)
	assert.Equal(t, 4*time.Second, cfg.HTTPServer.Timeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPServer.IdleTimeout)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "tolodelivery", cfg.Database.Name)
	assert.Equal(t, "mypassword", cfg.Database.Password)
	assert.Equal(t, "mysecret", cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.TokenTTL())
	assert.Equal(t, "12345:bot-token", cfg.Telegram.BotToken)
	assert.Equal(t, 24*time.Hour, cfg.Telegram.MaxAge)
	assert.Equal(t, "https://gateway.test", cfg.Gateway.BaseURL)
	assert.Equal(t, "CHASECK_TEST-xyz", cfg.Gateway.SecretKey)
	assert.Equal(t, 15*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 40.0, cfg.Pricing.BaseFee)
	assert.Equal(t, 12.0, cfg.Pricing.PerKm)
	assert.Equal(t, 5*time.Minute, cfg.Redis.QuoteTTL)
	assert.Equal(t, "tolo", cfg.Metrics.Namespace)
	assert.Equal(t, "./migrations", cfg.Migrations.Path)
}

func TestMustLoadByPath_DefaultTokenTTL(t *testing.T) {
	setSecrets(t)

	cfg := config.MustLoadByPath(writeConfig(t, `
database:
  user: "postgres"
  name: "tolodelivery"
`))

	// сессия живёт 7 дней, если не задано иное
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, time.Duration(0), cfg.Telegram.MaxAge)
}

func TestMustLoadByPath_MissingBotToken(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")
	t.Setenv("GATEWAY_SECRET_KEY", "key")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")

	path := writeConfig(t, sampleConfig)
	assert.Panics(t, func() {
		config.MustLoadByPath(path)
	})
}

func TestMustLoadByPath_FileNotFound(t *testing.T) {
	// Ожидаем панику, если файла не существует
	assert.Panics(t, func() {
		config.MustLoadByPath("non_existent_config.yaml")
	})
}
