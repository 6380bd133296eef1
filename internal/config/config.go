package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	WorkerChannel  string // NSQ channel name for workers
}

type Redis struct {
	Addr     string // e.g. redis:6379
	Password string
	DB       int
}

type Keys struct {
	Internal  string // HMAC secret for broker envelopes
	Authority string // HMAC secret for confirmation signatures
	Cipher    string // AES key material for stored delivery fields
	JWT       string // HS256 secret shared with the authority
	APIKey    string // i-api-key value for service-to-service calls
}

type Retry struct {
	MaxRetries  int           // retry budget per delivery
	HTTPTimeout time.Duration // per-attempt resubmission timeout
}

type Authority struct {
	URL     string // base URL of the signature authority
	Timeout time.Duration
}

// Availability selects the downstream-availability check. Mode is one of
// "always", "flaky" or "probe".
type Availability struct {
	Mode        string
	Probability float64 // used by flaky
	ProbeURL    string  // used by probe
}

type Worker struct {
	Name        string // worker identity in the in-flight registry
	Concurrency int    // handlers per NSQ consumer
	HTTPPort    string // worker metrics/health port
}

type Config struct {
	AppName        string
	HTTPPort       string // :8080 logistics API
	AuthorityPort  string // :8090 signature authority
	LogisticaURL   string // base URL for self-resubmission and monitor pings
	TokenTTL       time.Duration
	DB             DB
	NSQ            NSQ
	Redis          Redis
	Keys           Keys
	Retry          Retry
	Authority      Authority
	Availability   Availability
	Worker         Worker
	TracingEnabled bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:       getenv("APP_NAME", "entregahub"),
		HTTPPort:      getenv("HTTP_PORT", ":8080"),
		AuthorityPort: getenv("AUTHORITY_PORT", ":8090"),
		LogisticaURL:  getenv("LOGISTICA_URL", "http://logistica:8080"),
		TokenTTL:      getenvDuration("TOKEN_TTL", time.Hour),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "entregahub"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			WorkerChannel:  getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "redis:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Keys: Keys{
			Internal:  getenv("INTERNAL_SIGNING_KEY", "clave-interna-dev"),
			Authority: getenv("AUTHORITY_SIGNING_KEY", "clave-autoridad-dev"),
			Cipher:    getenv("CIPHER_KEY", "clave-cifrado-dev"),
			JWT:       getenv("JWT_SECRET", "secreto-jwt-dev"),
			APIKey:    getenv("INTERNAL_API_KEY", "clave-api-dev"),
		},
		Retry: Retry{
			MaxRetries:  getenvInt("MAX_RETRIES", 3),
			HTTPTimeout: getenvDuration("RETRY_HTTP_TIMEOUT", 10*time.Second),
		},
		Authority: Authority{
			URL:     getenv("AUTHORITY_URL", "http://autorizador:8090"),
			Timeout: getenvDuration("AUTHORITY_TIMEOUT", 10*time.Second),
		},
		Availability: Availability{
			Mode:        getenv("AVAILABILITY_MODE", "flaky"),
			Probability: getenvFloat("AVAILABILITY_PROBABILITY", 0.5),
			ProbeURL:    getenv("AVAILABILITY_PROBE_URL", ""),
		},
		Worker: Worker{
			Name:        getenv("WORKER_NAME", hostnameOr("worker-1")),
			Concurrency: getenvInt("WORKER_CONCURRENCY", 4),
			HTTPPort:    ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		TracingEnabled: getenvBool("TRACING_ENABLED", false),
	}
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
