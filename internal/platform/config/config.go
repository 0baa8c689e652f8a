package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server binary needs from its environment.
type Config struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig holds the rule-snapshot cache settings. An empty URL disables
// the cache and rule lookups go straight to the store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the audit-stream settings. Empty brokers disable the
// stream; the ledger itself is unaffected.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("COURIER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("COURIER_KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "courier.audit"
	}

	return Config{
		Addr:          addr,
		DatabaseURL:   os.Getenv("COURIER_DATABASE_URL"),
		JWTSigningKey: jwtSigningKey,
		Redis: RedisConfig{
			URL:          os.Getenv("COURIER_REDIS_URL"),
			PoolSize:     envInt("COURIER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("COURIER_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("COURIER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("COURIER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("COURIER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("COURIER_KAFKA_BROKERS"),
			Topic:   topic,
		},
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
