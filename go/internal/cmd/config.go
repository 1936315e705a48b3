package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mcdev12/kenoboard/go/internal/game/display"
	"github.com/mcdev12/kenoboard/go/internal/game/mirror"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
	"github.com/mcdev12/kenoboard/go/internal/logging"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every envconfig key, e.g. KENO_STREAM_URL.
const envPrefix = "KENO"

type Config struct {
	LogLevel      string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogStructured bool   `yaml:"log_structured" envconfig:"LOG_STRUCTURED"`

	// Upstream stream
	StreamURL        string        `yaml:"stream_url" envconfig:"STREAM_URL"`
	RetryEnabled     bool          `yaml:"retry_enabled" envconfig:"RETRY_ENABLED"`
	MaxRetries       int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff       time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" envconfig:"HANDSHAKE_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	MaxMessageSize   int64         `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`

	// Game state
	HistorySize int `yaml:"history_size" envconfig:"HISTORY_SIZE"`

	// Display gateway
	DisplayEnabled  bool          `yaml:"display_enabled" envconfig:"DISPLAY_ENABLED"`
	Port            string        `yaml:"port" envconfig:"PORT"`
	HighlightWindow time.Duration `yaml:"highlight_window" envconfig:"HIGHLIGHT_WINDOW"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`

	// NATS mirror, disabled when NATSURL is empty
	NATSURL           string `yaml:"nats_url" envconfig:"NATS_URL"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix" envconfig:"NATS_SUBJECT_PREFIX"`
}

// DefaultConfig returns the settings used when neither file nor environment set a key
func DefaultConfig() *Config {
	conn := stream.DefaultConnectionConfig()
	disp := display.DefaultConfig()
	mir := mirror.DefaultConfig()

	return &Config{
		LogLevel:      "INFO",
		LogStructured: false,

		StreamURL:        conn.URL,
		RetryEnabled:     conn.RetryEnabled,
		MaxRetries:       conn.MaxRetries,
		InitialBackoff:   conn.InitialBackoff,
		MaxBackoff:       conn.MaxBackoff,
		HandshakeTimeout: conn.HandshakeTimeout,
		WriteTimeout:     conn.WriteTimeout,
		ReadTimeout:      conn.ReadTimeout,
		MaxMessageSize:   conn.MaxMessageSize,

		HistorySize: 20,

		DisplayEnabled:  true,
		Port:            "8081",
		HighlightWindow: disp.HighlightWindow,
		ShutdownTimeout: 10 * time.Second,

		NATSURL:           mir.URL,
		NATSSubjectPrefix: mir.SubjectPrefix,
	}
}

// loadConfig layers defaults, the optional YAML file at path and KENO_* environment
// variables, in that order.
func loadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, config); err != nil {
		return nil, fmt.Errorf("processing the config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.StreamURL == "" {
		return fmt.Errorf("stream url is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %s", c.InitialBackoff)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history size must not be negative, got %d", c.HistorySize)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) loggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Structured = c.LogStructured
	return cfg
}

func (c *Config) connectionConfig() stream.ConnectionConfig {
	cfg := stream.DefaultConnectionConfig()
	cfg.URL = c.StreamURL
	cfg.RetryEnabled = c.RetryEnabled
	cfg.MaxRetries = c.MaxRetries
	cfg.InitialBackoff = c.InitialBackoff
	cfg.MaxBackoff = c.MaxBackoff
	cfg.HandshakeTimeout = c.HandshakeTimeout
	cfg.WriteTimeout = c.WriteTimeout
	cfg.ReadTimeout = c.ReadTimeout
	cfg.MaxMessageSize = c.MaxMessageSize
	return cfg
}

func (c *Config) displayConfig() display.Config {
	cfg := display.DefaultConfig()
	cfg.HighlightWindow = c.HighlightWindow
	return cfg
}

func (c *Config) mirrorConfig() mirror.Config {
	cfg := mirror.DefaultConfig()
	cfg.URL = c.NATSURL
	cfg.SubjectPrefix = c.NATSSubjectPrefix
	return cfg
}
