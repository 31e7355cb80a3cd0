// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend drivers.
const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// Re-application policies.
const (
	PolicySinglePending       = "single_pending"
	PolicyAllowAfterRejection = "allow_after_rejection"
	PolicyAllowMultiple       = "allow_multiple"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// BackendDriver selects the data backend: postgres, supabase or memory.
	BackendDriver string `mapstructure:"BACKEND_DRIVER"`
	// DatabaseURL is the Postgres DSN; required for the postgres driver.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SupabaseURL is the project URL (e.g. https://xyz.supabase.co).
	SupabaseURL string `mapstructure:"SUPABASE_URL"`
	// SupabaseAnonKey is the public anon key.
	SupabaseAnonKey string `mapstructure:"SUPABASE_ANON_KEY"`
	// SupabaseServiceKey is the service role key used for table and storage calls.
	SupabaseServiceKey string `mapstructure:"SUPABASE_SERVICE_KEY"`
	// SupabaseJWTSecret verifies access tokens locally (HS256). When empty with the supabase
	// driver, tokens are resolved through the auth service instead.
	SupabaseJWTSecret string `mapstructure:"SUPABASE_JWT_SECRET"`
	// JWTAudience is the expected aud claim of access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// StorageBucket is the bucket for gym photos.
	StorageBucket string `mapstructure:"STORAGE_BUCKET"`
	// BackendTimeoutRaw bounds each backend call (e.g. "10s").
	BackendTimeoutRaw string `mapstructure:"BACKEND_TIMEOUT"`

	// ReapplyPolicy controls whether a user may submit another owner application.
	ReapplyPolicy string `mapstructure:"REAPPLY_POLICY"`
	// PromotionRetrySchedule is the cron spec for draining the promotion retry queue.
	PromotionRetrySchedule string `mapstructure:"PROMOTION_RETRY_SCHEDULE"`
	// RedisURL (optional) backs the promotion retry queue; the backend table when empty.
	RedisURL string `mapstructure:"REDIS_URL"`
	// AccessPolicyFile (optional) is a Rego file replacing the built-in gym access policy.
	AccessPolicyFile string `mapstructure:"ACCESS_POLICY_FILE"`

	// Events (optional). When Kafka brokers are set, application events are published to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for application events (default gymhub-events).
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTelEndpoint is the OTLP gRPC endpoint; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	// OTelSampleRatio is the fraction of new traces sampled (0 < r <= 1).
	OTelSampleRatio float64 `mapstructure:"OTEL_TRACES_SAMPLE_RATIO"`

	// RateLimitRPS is the per-client request rate; 0 disables rate limiting.
	RateLimitRPS float64 `mapstructure:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int `mapstructure:"RATE_LIMIT_BURST"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For
	// is honoured. Empty trusts none and uses the socket peer address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("BACKEND_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("SUPABASE_SERVICE_KEY", "")
	v.SetDefault("SUPABASE_JWT_SECRET", "")
	v.SetDefault("JWT_AUDIENCE", "authenticated")
	v.SetDefault("STORAGE_BUCKET", "gym-photos")
	v.SetDefault("BACKEND_TIMEOUT", "10s")
	v.SetDefault("REAPPLY_POLICY", PolicySinglePending)
	v.SetDefault("PROMOTION_RETRY_SCHEDULE", "@every 30s")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ACCESS_POLICY_FILE", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "gymhub-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "gymhub-event-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "gymhub-backend")
	v.SetDefault("OTEL_TRACES_SAMPLE_RATIO", 1.0)
	v.SetDefault("RATE_LIMIT_RPS", 0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("TRUSTED_PROXIES", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	switch cfg.BackendDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when BACKEND_DRIVER=postgres")
		}
		if cfg.SupabaseJWTSecret == "" {
			return nil, errors.New("config: SUPABASE_JWT_SECRET must be set when BACKEND_DRIVER=postgres")
		}
	case DriverSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, errors.New("config: SUPABASE_URL and SUPABASE_SERVICE_KEY must be set when BACKEND_DRIVER=supabase")
		}
	case DriverMemory:
		if cfg.Env == "production" {
			return nil, errors.New("config: BACKEND_DRIVER=memory must not be used when APP_ENV=production")
		}
		if cfg.SupabaseJWTSecret == "" {
			return nil, errors.New("config: SUPABASE_JWT_SECRET must be set when BACKEND_DRIVER=memory")
		}
	default:
		return nil, errors.New("config: BACKEND_DRIVER must be one of postgres, supabase, memory")
	}

	switch cfg.ReapplyPolicy {
	case PolicySinglePending, PolicyAllowAfterRejection, PolicyAllowMultiple:
	default:
		return nil, errors.New("config: REAPPLY_POLICY must be one of single_pending, allow_after_rejection, allow_multiple")
	}

	if cfg.OTelSampleRatio <= 0 || cfg.OTelSampleRatio > 1 {
		return nil, errors.New("config: OTEL_TRACES_SAMPLE_RATIO must be in (0, 1]")
	}

	if cfg.RateLimitRPS < 0 {
		return nil, errors.New("config: RATE_LIMIT_RPS must not be negative")
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	for _, p := range cfg.TrustedProxyList() {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
			}
		}
	}

	return &cfg, nil
}

// BackendTimeout parses BackendTimeoutRaw as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) BackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.BackendTimeoutRaw)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxyList returns the trusted proxy IPs and CIDRs, or nil to trust none.
func (c *Config) TrustedProxyList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
