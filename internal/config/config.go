package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront-shipping/pkg/config"
)

// Config holds all configuration for the shipping service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SHIPPING_HTTP_PORT" envDefault:"8014"`

	// Shipping sessions
	SessionTTL       time.Duration `env:"SHIPPING_SESSION_TTL" envDefault:"30m"`
	DefaultLatitude  float64       `env:"SHIPPING_DEFAULT_LATITUDE" envDefault:"23.0225"`
	DefaultLongitude float64       `env:"SHIPPING_DEFAULT_LONGITUDE" envDefault:"72.5714"`
	DeviceTimeout    time.Duration `env:"SHIPPING_DEVICE_TIMEOUT" envDefault:"10s"`
	ConfirmedTTL     time.Duration `env:"SHIPPING_CONFIRMED_TTL" envDefault:"2160h"`

	// IP geolocation. The client address comes from True-Client-IP, X-Real-IP
	// or X-Forwarded-For, so the gateway in front of the service must forward
	// one of them. Without it every caller arrives from a private address and
	// shares the single "self" cache entry.
	IPAPIBaseURL    string        `env:"IPAPI_BASE_URL" envDefault:"https://ipapi.co"`
	IPLookupTimeout time.Duration `env:"IP_LOOKUP_TIMEOUT" envDefault:"5s"`
	IPCacheTTL      time.Duration `env:"IP_CACHE_TTL" envDefault:"1h"`

	// Circuit breaker settings for the IP lookup
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"SHIPPING_DB_NAME" envDefault:"shipping_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"SHIPPING_REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Authentication. Requests are identified by the gateway's X-User-ID
	// header unless a JWT secret is configured.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load shipping config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.DefaultLatitude < -90 || c.DefaultLatitude > 90 {
		return fmt.Errorf("SHIPPING_DEFAULT_LATITUDE out of range: %f", c.DefaultLatitude)
	}
	if c.DefaultLongitude < -180 || c.DefaultLongitude > 180 {
		return fmt.Errorf("SHIPPING_DEFAULT_LONGITUDE out of range: %f", c.DefaultLongitude)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SHIPPING_SESSION_TTL must be positive")
	}
	if c.DeviceTimeout <= 0 || c.IPLookupTimeout <= 0 {
		return fmt.Errorf("location timeouts must be positive")
	}
	if _, err := url.ParseRequestURI(c.IPAPIBaseURL); err != nil {
		return fmt.Errorf("invalid IPAPI_BASE_URL %q: %w", c.IPAPIBaseURL, err)
	}
	if c.Environment == "production" && c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}
