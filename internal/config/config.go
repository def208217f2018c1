package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8090"`
	BackendBaseURL     string `env:"BACKEND_BASE_URL,required"`
	RecognizerURL      string `env:"RECOGNIZER_WS_URL" envDefault:"ws://127.0.0.1:7700/listen"`
	RecognizerLanguage string `env:"RECOGNIZER_LANGUAGE" envDefault:"en-US"`
	SynthesizerCommand string `env:"SYNTHESIZER_COMMAND" envDefault:"espeak-ng"`
	StorePath          string `env:"STORE_PATH" envDefault:"kiosk.db"`
	PollIntervalMs     int    `env:"POLL_INTERVAL_MS" envDefault:"2000"`
	HandoffGraceMs     int    `env:"HANDOFF_GRACE_MS" envDefault:"1500"`
	QueryTimeoutSecs   int    `env:"QUERY_TIMEOUT_SECONDS" envDefault:"15"`
	IdleTimeoutMins    int    `env:"IDLE_TIMEOUT_MINUTES" envDefault:"5"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) HandoffGrace() time.Duration {
	return time.Duration(c.HandoffGraceMs) * time.Millisecond
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMins) * time.Minute
}

func (c *Config) Validate() error {
	parsed, err := url.Parse(c.BackendBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", c.BackendBaseURL)
	}
	if c.RecognizerURL != "" {
		ws, err := url.Parse(c.RecognizerURL)
		if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") {
			return fmt.Errorf("RECOGNIZER_WS_URL must use ws:// or wss://, got %q", c.RecognizerURL)
		}
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
