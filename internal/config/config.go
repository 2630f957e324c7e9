package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Raffle    RaffleConfig
	Telemetry TelemetryConfig
	LogLevel  string `env:"LOG_LEVEL" envDefault:"debug"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type DatabaseConfig struct {
	Host         string        `env:"DB_HOST" envDefault:"localhost"`
	Port         string        `env:"DB_PORT" envDefault:"5432"`
	Username     string        `env:"DB_USERNAME" envDefault:"raffle_user"`
	Password     string        `env:"DB_PASSWORD"`
	Database     string        `env:"DB_NAME" envDefault:"raffle"`
	SSLMode      string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	MaxLifetime  time.Duration `env:"DB_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`
	MigrationDir string        `env:"DB_MIGRATIONS_DIR" envDefault:"migrations"`
}

// DSN builds the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	LimitsTTL   time.Duration `env:"LIMITS_CACHE_TTL" envDefault:"30s"`
	InFlightTTL time.Duration `env:"TICKET_INFLIGHT_TTL" envDefault:"30s"`
}

type KafkaConfig struct {
	Brokers     []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	TicketTopic string   `env:"KAFKA_TICKET_TOPIC" envDefault:"raffle-ticket-events"`
	Enabled     bool     `env:"KAFKA_ENABLED" envDefault:"true"`
}

type AuthConfig struct {
	OIDCIssuer   string `env:"OIDC_ISSUER"`
	OIDCClientID string `env:"OIDC_CLIENT_ID" envDefault:"raffle-api"`
	JWTSecret    string `env:"JWT_SECRET"`
	EmailClaim   string `env:"AUTH_EMAIL_CLAIM" envDefault:"email"`
}

type RaffleConfig struct {
	PricePerTime float64 `env:"PRICE_PER_TIME" envDefault:"0.20"`
	QRSecret     string  `env:"TICKET_QR_SECRET"`
}

type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_EXPORTER_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ms-raffle"`
}

// Load parses the process environment into a Config
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Raffle.PricePerTime <= 0 {
		return nil, fmt.Errorf("PRICE_PER_TIME must be positive, got %v", cfg.Raffle.PricePerTime)
	}
	return &cfg, nil
}
