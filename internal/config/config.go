package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Redis struct {
	Host string
	Port string
	DB   int
	URL  string // overrides Host/Port/DB when set, e.g. redis://redis:6379/0
}

type Queue struct {
	Name            string        // Redis list key holding task events
	BlockingTimeout time.Duration // BLPOP timeout; an elapsed timeout is a normal idle tick
}

type SMTP struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string // defaults to User when empty
	UseTLS    bool   // STARTTLS on port 587
}

type Worker struct {
	ReconnectBackoff time.Duration // sleep between reconnect attempts on connection errors
	SendTimeout      time.Duration // bound on one per-recipient transport send
	HTTPPort         string        // health/metrics/status port
}

type Directory struct {
	BaseURL      string // organization service base URL
	Timeout      time.Duration
	ServiceToken string // bearer token for collaborator lookups
}

type Config struct {
	AppName   string
	Redis     Redis
	Queue     Queue
	SMTP      SMTP
	Worker    Worker
	Directory Directory
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
		AppName: getenv("APP_NAME", "taskmail"),
		Redis: Redis{
			Host: getenv("REDIS_HOST", "localhost"),
			Port: getenv("REDIS_PORT", "6379"),
			DB:   getenvInt("REDIS_DB", 0),
			URL:  getenv("REDIS_URL", ""),
		},
		Queue: Queue{
			Name:            getenv("QUEUE_NAME", "task-events-queue"),
			BlockingTimeout: getenvDuration("QUEUE_BLOCKING_TIMEOUT", 5*time.Second),
		},
		SMTP: SMTP{
			Host:      getenv("SMTP_HOST", ""),
			Port:      getenvInt("SMTP_PORT", 587),
			User:      getenv("SMTP_USER", ""),
			Password:  getenv("SMTP_PASSWORD", ""),
			FromEmail: getenv("SMTP_FROM_EMAIL", ""),
			UseTLS:    getenvBool("SMTP_USE_TLS", true),
		},
		Worker: Worker{
			ReconnectBackoff: getenvDuration("QUEUE_RECONNECT_BACKOFF", 5*time.Second),
			SendTimeout:      getenvDuration("SEND_TIMEOUT", 15*time.Second),
			HTTPPort:         ":" + getenv("WORKER_HTTP_PORT", "8082"),
		},
		Directory: Directory{
			BaseURL:      getenv("ORGANIZATION_SERVICE_URL", "http://localhost:8002"),
			Timeout:      getenvDuration("ORGANIZATION_SERVICE_TIMEOUT", 10*time.Second),
			ServiceToken: getenv("ORGANIZATION_SERVICE_TOKEN", ""),
		},
	}
}

// RedisURL returns the connection URL for the event queue
func (c Config) RedisURL() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	return fmt.Sprintf("redis://%s:%s/%d", c.Redis.Host, c.Redis.Port, c.Redis.DB)
}

// Sender returns the From address for outbound mail (SMTP_FROM_EMAIL or SMTP_USER)
func (c Config) Sender() string {
	if c.SMTP.FromEmail != "" {
		return c.SMTP.FromEmail
	}
	return c.SMTP.User
}
