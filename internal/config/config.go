package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-portal/internal/feeds"
)

// Feed sources.
const (
	FeedSourceMock  = "mock"
	FeedSourceMongo = "mongo"
)

// Config holds the portal's runtime settings.
type Config struct {
	Port        string
	FeedSource  string
	FeedLatency time.Duration

	MongoURI string
	MongoDB  string

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	TrustProxyHeaders      bool

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		FeedSource:             getEnv("FEED_SOURCE", FeedSourceMock),
		FeedLatency:            feeds.DefaultLatency,
		MongoURI:               os.Getenv("MONGO_URI"),
		MongoDB:                getEnv("MONGO_DB", "fleet"),
		MQTTBroker:             os.Getenv("MQTT_BROKER"),
		MQTTClientID:           getEnv("MQTT_CLIENT_ID", "fleet-portal"),
		MQTTTopic:              getEnv("MQTT_TOPIC", "fleet/portal"),
		RateLimitRequests:      120,
		RateLimitWindowSeconds: 60,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
	}

	if v := os.Getenv("FEED_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_LATENCY %q: %w", v, err)
		}
		cfg.FeedLatency = d
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_REQUESTS %q: %w", v, err)
		}
		cfg.RateLimitRequests = n
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW_SECONDS %q: %w", v, err)
		}
		cfg.RateLimitWindowSeconds = n
	}

	if v := os.Getenv("TRUST_PROXY_HEADERS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUST_PROXY_HEADERS %q: %w", v, err)
		}
		cfg.TrustProxyHeaders = b
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.FeedSource != FeedSourceMock && c.FeedSource != FeedSourceMongo {
		return fmt.Errorf("unknown FEED_SOURCE %q", c.FeedSource)
	}
	if c.FeedLatency < 0 {
		return fmt.Errorf("FEED_LATENCY must not be negative")
	}
	if c.RateLimitRequests < 1 || c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("log_level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
