package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPipelineHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool
	DBLogLevel        string
	DBSlowQueryMs     int

	InternalAPIToken string

	Telemetry TelemetryConfig
	Carrier   CarrierConfig
	Redis     RedisConfig
	Invoice   InvoiceConfig
	Storage   StorageConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
}

// TelemetryConfig covers logging, tracing and metrics push.
type TelemetryConfig struct {
	LogLevel      string `validate:"omitempty,oneof=debug info warn error"`
	LogFormat     string `validate:"omitempty,oneof=json console"`
	OtelEnabled   bool
	OtelProtocol  string  `validate:"omitempty,oneof=grpc http http/protobuf"`
	SamplingRatio float64 `validate:"gte=0,lte=1"`
	PushExporter  string  `validate:"omitempty,oneof=prometheus_remote_write prometheus_pushgateway"`
	PushEndpoint  string  `validate:"omitempty,url"`
	PushToken     string
}

type CarrierConfig struct {
	Username  string
	Password  string
	LoginURL  string  `validate:"omitempty,url"`
	CDRURL    string  `validate:"omitempty,url"`
	DIDURL    string  `validate:"omitempty,url"`
	BaseURL   string  `validate:"omitempty,url"`
	RateLimit float64 `validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

type InvoiceConfig struct {
	OutputDir       string `validate:"required"`
	LogoPath        string
	DefaultDDIPrice string `validate:"required,numeric"`
	IssuerName      string
	IssuerAddress   string
}

type StorageConfig struct {
	GCSBucket       string
	GCSPrefix       string
	CredentialsJSON string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int `validate:"gte=0,lte=65535"`
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	NotifyTo     []string `validate:"dive,email"`
}

type SchedulerConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "cdrbill"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cdrbill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQueryMs:     getenvInt("DATABASE_SLOW_QUERY_MS", 500),
		InternalAPIToken:  strings.TrimSpace(getenv("INTERNAL_API_TOKEN", "")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			PushExporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			PushEndpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			PushToken:     strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
		},
		Carrier: CarrierConfig{
			Username:  strings.TrimSpace(getenv("SEWAN_USER", "")),
			Password:  os.Getenv("SEWAN_PASSWORD"),
			LoginURL:  getenv("SEWAN_LOGIN_URL", ""),
			CDRURL:    getenv("SEWAN_CDR_URL", ""),
			DIDURL:    getenv("SEWAN_DDI_URL", ""),
			BaseURL:   getenv("SEWAN_BASE_URL", ""),
			RateLimit: getenvFloat("SEWAN_RATE_LIMIT", 5),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Invoice: InvoiceConfig{
			OutputDir:       getenv("PATH_TO_PDF", "./.invoices"),
			LogoPath:        strings.TrimSpace(getenv("INVOICE_LOGO_PATH", "")),
			DefaultDDIPrice: getenv("DDI_PRICE_DEFAULT", "1.00"),
			IssuerName:      getenv("INVOICE_ISSUER_NAME", ""),
			IssuerAddress:   getenv("INVOICE_ISSUER_ADDRESS", ""),
		},
		Storage: StorageConfig{
			GCSBucket:       strings.TrimSpace(getenv("GCS_BUCKET", "")),
			GCSPrefix:       strings.Trim(getenv("GCS_PREFIX", "invoices"), "/"),
			CredentialsJSON: strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", ""),
			NotifyTo:     splitList(getenv("NOTIFY_EMAIL", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled: getenvBool("SCHEDULER_ENABLED", true),
		},
	}

	cfg.OTLPEndpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.Telemetry.OtelEnabled = getenvBool("OTEL_ENABLED", cfg.IsProduction())

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// otlpProtocol prefers the traces-specific variable over the generic one.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

// Validate checks value formats. Missing carrier credentials are reported
// when a run starts, not here.
func (c Config) Validate() error {
	v := validator.New()
	for name, section := range map[string]any{
		"telemetry": c.Telemetry,
		"carrier":   c.Carrier,
		"redis":     c.Redis,
		"invoice":   c.Invoice,
		"email":     c.Email,
	} {
		if err := v.Struct(section); err != nil {
			return fmt.Errorf("invalid %s config: %w", name, err)
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
