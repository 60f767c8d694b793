// Package config builds runtime configuration from environment variables so
// main stays lean. Every section has a FromEnv constructor with development
// defaults; production deployments override via the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "enroll/pkg/platform/strings"
)

// Config aggregates all sections.
type Config struct {
	Server       Server
	Redis        Redis
	Postgres     Postgres
	Provider     Provider
	Session      Session
	Registration Registration
	Kafka        Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Redis captures connection settings for the durable flow-state store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres captures the account database connection.
type Postgres struct {
	DSN string
}

// Provider captures the external identity-provider endpoints. The return URL
// is where magic links land; the identifier is appended to it as a query
// parameter so verification works on a device with no local state.
type Provider struct {
	BaseURL       string
	APIKey        string
	LinkReturnURL string
	Timeout       time.Duration
}

// Session captures the application session token settings.
type Session struct {
	SigningKey string
	TTL        time.Duration
}

// Registration captures flow-level timings.
type Registration struct {
	SendCooldown   time.Duration
	DraftTTL       time.Duration
	OTPCodeTTL     time.Duration
	OTPMaxAttempts int
}

// Kafka captures the audit event pipeline settings. Empty brokers disable
// publishing; audit events then go to the in-process sink only.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv assembles the full configuration.
func FromEnv() Config {
	return Config{
		Server:       ServerFromEnv(),
		Redis:        RedisFromEnv(),
		Postgres:     PostgresFromEnv(),
		Provider:     ProviderFromEnv(),
		Session:      SessionFromEnv(),
		Registration: RegistrationFromEnv(),
		Kafka:        KafkaFromEnv(),
	}
}

// ServerFromEnv builds a Server config from environment variables.
func ServerFromEnv() Server {
	return Server{
		Addr:            envStr("ENROLL_ADDR", ":8080"),
		ShutdownTimeout: envDuration("ENROLL_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// RedisFromEnv builds Redis config. An empty URL means Redis is not
// configured and in-memory stores are used (dev/test only).
func RedisFromEnv() Redis {
	return Redis{
		URL:          os.Getenv("ENROLL_REDIS_URL"),
		PoolSize:     envInt("ENROLL_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("ENROLL_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDuration("ENROLL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("ENROLL_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("ENROLL_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

// PostgresFromEnv builds the account database config. An empty DSN means the
// in-memory account store is used (dev/test only).
func PostgresFromEnv() Postgres {
	return Postgres{DSN: os.Getenv("ENROLL_POSTGRES_DSN")}
}

// ProviderFromEnv builds the identity-provider client config.
func ProviderFromEnv() Provider {
	return Provider{
		BaseURL:       envStr("ENROLL_PROVIDER_URL", "http://localhost:9090"),
		APIKey:        os.Getenv("ENROLL_PROVIDER_API_KEY"),
		LinkReturnURL: envStr("ENROLL_LINK_RETURN_URL", "http://localhost:3000/register/verify"),
		Timeout:       envDuration("ENROLL_PROVIDER_TIMEOUT", 15*time.Second),
	}
}

// SessionFromEnv builds session token config.
func SessionFromEnv() Session {
	key := os.Getenv("ENROLL_SESSION_SIGNING_KEY")
	if key == "" {
		// Use a default for development - should be overridden in production
		key = "dev-secret-key-change-in-production"
	}
	return Session{
		SigningKey: key,
		TTL:        envDuration("ENROLL_SESSION_TTL", 24*time.Hour),
	}
}

// RegistrationFromEnv builds flow timing config. The send cooldown is
// advisory on this side; the provider enforces the real limit.
func RegistrationFromEnv() Registration {
	return Registration{
		SendCooldown:   envDuration("ENROLL_SEND_COOLDOWN", 60*time.Second),
		DraftTTL:       envDuration("ENROLL_DRAFT_TTL", 24*time.Hour),
		OTPCodeTTL:     envDuration("ENROLL_OTP_TTL", 10*time.Minute),
		OTPMaxAttempts: envInt("ENROLL_OTP_MAX_ATTEMPTS", 5),
	}
}

// KafkaFromEnv builds audit pipeline config. Broker hostnames are
// case-insensitive, so repeated entries in the env var collapse to one.
func KafkaFromEnv() Kafka {
	var list []string
	if brokers := os.Getenv("ENROLL_KAFKA_BROKERS"); brokers != "" {
		list = pstrings.DedupeAndTrimLower(strings.Split(brokers, ","))
	}
	return Kafka{
		Brokers:    list,
		AuditTopic: envStr("ENROLL_KAFKA_AUDIT_TOPIC", "enroll.audit"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
