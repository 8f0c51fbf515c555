package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEWAN_USER", " ops ")
	t.Setenv("NOTIFY_EMAIL", "a@example.com, b@example.com,")
	t.Setenv("SEWAN_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Carrier.Username)
	assert.Equal(t, 2.5, cfg.Carrier.RateLimit)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Email.NotifyTo)
	assert.Equal(t, "./.invoices", cfg.Invoice.OutputDir)
	assert.Equal(t, "1.00", cfg.Invoice.DefaultDDIPrice)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DDI_PRICE_DEFAULT", "one euro")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadTelemetry(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "GRPC")
	t.Setenv("METRICS_PUSH_EXPORTER", "prometheus_pushgateway")
	t.Setenv("METRICS_PUSH_ENDPOINT", "http://pushgateway:9091")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Telemetry.LogLevel)
	assert.Equal(t, "grpc", cfg.Telemetry.OtelProtocol)
	assert.False(t, cfg.Telemetry.OtelEnabled)
	assert.Equal(t, "prometheus_pushgateway", cfg.Telemetry.PushExporter)

	t.Setenv("ENVIRONMENT", "production")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.OtelEnabled)

	t.Setenv("METRICS_PUSH_EXPORTER", "statsd")
	_, err = Load()
	assert.Error(t, err)
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_FLOAT", "0.5")
	assert.True(t, getenvBool("X_BOOL", false))
	assert.Equal(t, 7, getenvInt("X_INT", 7))
	assert.Equal(t, 0.5, getenvFloat("X_FLOAT", 1))
	assert.Equal(t, "fallback", getenv("X_MISSING", "fallback"))
}

func TestPipelineDefaults(t *testing.T) {
	v := viper.New()
	setPipelineDefaults(v)
	cfg, err := decodePipeline(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultPipelineConfig(), cfg)
	assert.Equal(t, "Europe/Brussels", cfg.Location().String())
}

func TestPipelineFileOverrides(t *testing.T) {
	dir := t.TempDir()
	body := "pipeline:\n  timezone: UTC\n  pollStep: 2s\n  pollMaxWait: 20s\n  invoiceConcurrency: 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yml"), []byte(body), 0o600))

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "pipeline.yml"))
	setPipelineDefaults(v)
	require.NoError(t, v.ReadInConfig())

	cfg, err := decodePipeline(v)
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 2*time.Second, cfg.PollStep)
	assert.Equal(t, 20*time.Second, cfg.PollMaxWait)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 8, cfg.InvoiceConcurrency)
}

func TestPipelineValidation(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, validatePipelineConfig(cfg))

	cfg = DefaultPipelineConfig()
	cfg.PollMaxWait = time.Millisecond
	assert.Error(t, validatePipelineConfig(cfg))

	cfg = DefaultPipelineConfig()
	cfg.RunDay = 31
	assert.Error(t, validatePipelineConfig(cfg))
}
