// Package config provides configuration loading for clarity.
//
// Configuration is read from an optional YAML file and overridden by
// CLARITY_-prefixed environment variables. Sections owned by this package
// (server, session, pipeline, model) are decoded into Config; the logging
// and telemetry sections are decoded by their packages through
// Config.Unmarshal so that those packages keep their own defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// Config holds the complete clarity configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Model    ModelConfig    `koanf:"model"`

	k *koanf.Koanf
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig controls session creation and persistence.
type SessionConfig struct {
	// RequiredFields must be resolved before a session may leave intake.
	RequiredFields []string `koanf:"required_fields"`
	StoreDriver    string   `koanf:"store_driver"` // "memory" or "sqlite"
	StoreDSN       string   `koanf:"store_dsn"`
}

// RequiredKeys returns RequiredFields as canonical keys. Validate must have
// passed for the result to be meaningful.
func (s SessionConfig) RequiredKeys() []provenance.Key {
	keys := make([]provenance.Key, 0, len(s.RequiredFields))
	for _, f := range s.RequiredFields {
		keys = append(keys, provenance.Key(strings.TrimSpace(f)))
	}
	return keys
}

// PipelineConfig tunes turn handling.
type PipelineConfig struct {
	// Classifier is "model" (generative routing with keyword fallback) or
	// "keyword" (trigger phrases only).
	Classifier string `koanf:"classifier"`
	// Responder enables conversational replies on turns where no skill ran.
	Responder bool `koanf:"responder"`
	// History is how many transcript messages the responder sees.
	History int `koanf:"history"`
}

// ModelConfig selects the generative model provider.
type ModelConfig struct {
	Provider    string   `koanf:"provider"` // "openai", "ollama" or "scripted"
	Name        string   `koanf:"name"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit"` // requests per second
	Burst       int      `koanf:"burst"`
}

// Generate converts m into the adapter configuration.
func (m ModelConfig) Generate() generate.Config {
	return generate.Config{
		Provider:    m.Provider,
		Model:       m.Name,
		BaseURL:     m.BaseURL,
		APIKey:      m.APIKey.Value(),
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Timeout:     m.Timeout.Duration(),
		RateLimit:   m.RateLimit,
		Burst:       m.Burst,
	}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8700,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(5 * time.Minute),
		},
		Session: SessionConfig{
			RequiredFields: []string{
				string(provenance.KeyProjectName),
				string(provenance.KeyIndustry),
			},
			StoreDriver: "memory",
		},
		Pipeline: PipelineConfig{
			Classifier: "model",
			Responder:  true,
			History:    8,
		},
		Model: ModelConfig{
			Provider: "scripted",
			Timeout:  Duration(2 * time.Minute),
		},
	}
}

// Unmarshal decodes the section at path into out. Fields of out that are
// absent from the loaded sources keep their current values, so callers
// pass a struct pre-filled with their defaults.
func (c *Config) Unmarshal(path string, out any) error {
	if c.k == nil {
		return nil
	}
	if err := c.k.Unmarshal(path, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", path, err)
	}
	return nil
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - A required field is not a known project field
//   - The store driver is unknown, or sqlite is selected without a DSN
//   - The classifier mode is unknown
//   - The model provider is unknown, or its base URL is not http(s)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	for _, f := range c.Session.RequiredFields {
		if !provenance.IsField(provenance.Key(strings.TrimSpace(f))) {
			return fmt.Errorf("unknown required field: %q", f)
		}
	}
	switch c.Session.StoreDriver {
	case "memory":
	case "sqlite":
		if c.Session.StoreDSN == "" {
			return errors.New("store_dsn required for sqlite store")
		}
		if strings.Contains(c.Session.StoreDSN, "..") {
			return fmt.Errorf("store_dsn must not contain path traversal: %q", c.Session.StoreDSN)
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Session.StoreDriver)
	}

	switch c.Pipeline.Classifier {
	case "model", "keyword":
	default:
		return fmt.Errorf("unknown classifier: %q (must be model or keyword)", c.Pipeline.Classifier)
	}
	if c.Pipeline.History < 0 {
		return errors.New("pipeline history cannot be negative")
	}

	return c.Model.validate()
}

func (m ModelConfig) validate() error {
	switch m.Provider {
	case "scripted":
		return nil
	case "openai":
		if !m.APIKey.IsSet() {
			return errors.New("model api_key required for openai provider")
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported model provider: %q", m.Provider)
	}

	if m.BaseURL != "" {
		u, err := url.Parse(m.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid model base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("model base_url must use http or https: %q", m.BaseURL)
		}
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("model temperature must be within [0, 2]: %v", m.Temperature)
	}
	return nil
}
