// Package secrets redacts credentials that users paste into chat messages.
//
// Messages are redacted before they are classified, stored in the
// transcript, or sent to a model, so a pasted API key never leaves the
// process that received it.
package secrets

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultReplacement is substituted for each redacted span.
const DefaultReplacement = "[REDACTED]"

// Config configures a Redactor.
type Config struct {
	Enabled     bool     `koanf:"enabled"`
	Replacement string   `koanf:"replacement"`
	Rules       []Rule   `koanf:"rules"`
	AllowList   []string `koanf:"allow_list"`
}

// Rule detects one kind of secret.
type Rule struct {
	ID      string `koanf:"id"`
	Pattern string `koanf:"pattern"`

	// Keywords gate the rule: when set, the pattern only runs on text that
	// contains one of them, case-insensitively.
	Keywords []string `koanf:"keywords"`
}

// DefaultConfig returns an enabled config with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Replacement: DefaultReplacement,
		Rules:       DefaultRules(),
	}
}

// Validate checks that every rule has an id and compiles.
func (c *Config) Validate() error {
	if c.Replacement == "" {
		return errors.New("replacement cannot be empty")
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if r.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
	}
	for _, p := range c.AllowList {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("allow list pattern %q: %w", p, err)
		}
	}
	return nil
}
