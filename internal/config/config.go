// Package config provides configuration loading from environment
// variables, validated with go-playground/validator.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the capture daemon.
type Config struct {
	// Server settings
	Port int `env:"VOICECAP_PORT, default=8089" json:"port" validate:"gte=1,lte=65535"`

	// External tool settings. Empty paths fall back to the system PATH.
	CaptureToolPath string `env:"VOICECAP_CAPTURE_TOOL" json:"capture_tool_path"`
	EnumToolPath    string `env:"VOICECAP_ENUM_TOOL" json:"enum_tool_path"`

	// Audio format settings
	SampleRate int `env:"VOICECAP_SAMPLE_RATE, default=16000" json:"sample_rate" validate:"gte=8000,lte=48000"`
	Channels   int `env:"VOICECAP_CHANNELS, default=1" json:"channels" validate:"oneof=1 2"`

	// Endpointing settings. The RMS threshold is deliberately without a
	// default: it is signal-dependent and must be chosen per deployment.
	SilenceThresholdRMS    float64 `env:"VOICECAP_SILENCE_THRESHOLD" json:"silence_threshold_rms" validate:"omitempty,gt=0,lte=1"`
	SilenceDurationMs      int64   `env:"VOICECAP_SILENCE_DURATION_MS, default=5000" json:"silence_duration_ms" validate:"gte=500,lte=300000"`
	MinRecordingDurationMs int64   `env:"VOICECAP_MIN_RECORDING_MS, default=3000" json:"min_recording_duration_ms" validate:"gte=0,lte=60000"`

	// Observability settings
	EventLogPath       string `env:"VOICECAP_EVENT_LOG" json:"event_log_path"`
	AutoStopWebhookURL string `env:"VOICECAP_AUTOSTOP_WEBHOOK" json:"auto_stop_webhook_url" validate:"omitempty,url"`

	// Logging settings
	LogFormat string `env:"VOICECAP_LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"VOICECAP_LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn error"`
}

// Load reads configuration from environment variables and validates it.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all configuration fields.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SilenceDuration returns the silence duration as a time.Duration.
func (c *Config) SilenceDuration() time.Duration {
	return time.Duration(c.SilenceDurationMs) * time.Millisecond
}

// MinRecordingDuration returns the minimum recording duration as a
// time.Duration.
func (c *Config) MinRecordingDuration() time.Duration {
	return time.Duration(c.MinRecordingDurationMs) * time.Millisecond
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", output suits production log pipelines;
// otherwise it is human-readable text.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
