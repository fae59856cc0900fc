// Package logging wraps zap with context-aware methods for clarity.
//
// Every method takes a context and prepends the correlation fields found in
// it: session id, pipeline phase, HTTP request id and, when a span is
// active, the trace and span ids. Output goes to stdout, to an
// OpenTelemetry log provider through otelzap, or both. Sensitive keys are
// masked and string values pass through the secrets redactor before they
// reach any output.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), tel.LoggerProvider())
//	ctx = logging.WithSessionID(ctx, st.ID)
//	logger.Info(ctx, "skill completed", zap.String("skill", "research"))
package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/andresmedinaorbidi/clarity/internal/config"
)

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"` // "json" or "console"

	// Stdout and OTEL select outputs. At least one must be available.
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`

	Sampling SamplingConfig    `koanf:"sampling"`
	Fields   map[string]string `koanf:"fields"`
	Redact   RedactConfig      `koanf:"redact"`
}

// SamplingConfig caps repeated messages. Within each tick the first
// Initial entries with the same level and message are kept, then every
// Thereafter-th one.
type SamplingConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Tick       config.Duration `koanf:"tick"`
	Initial    int             `koanf:"initial"`
	Thereafter int             `koanf:"thereafter"`
}

// RedactConfig controls masking of sensitive values.
type RedactConfig struct {
	Enabled bool `koanf:"enabled"`

	// Keys are field names whose values are always masked. Matching is
	// case-insensitive on the last dot-separated segment of the key.
	Keys []string `koanf:"keys"`
}

// NewDefaultConfig returns JSON logs at info level on stdout.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stdout: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Fields: map[string]string{
			"service": "clarity",
		},
		Redact: RedactConfig{
			Enabled: true,
			Keys:    []string{"api_key", "apikey", "password", "secret", "token", "authorization"},
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	if !c.Stdout && !c.OTEL {
		return fmt.Errorf("at least one output must be enabled")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return fmt.Errorf("sampling tick must be positive")
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 1 {
			return fmt.Errorf("sampling initial and thereafter must be at least 1")
		}
	}
	return nil
}
