package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as text ("30s", "2m") in YAML,
// JSON and environment variables.
type Duration time.Duration

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText parses a Go duration string. Negative values are rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(v)
	return nil
}

const redactedSecret = "[REDACTED]"

// Secret is a string that never prints. fmt verbs, JSON and YAML all see
// a placeholder; only Value returns the real content.
type Secret string

// Value returns the secret itself.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether s is non-empty.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedSecret
}

func (s Secret) GoString() string { return "Secret(" + redactedSecret + ")" }

// MarshalText also covers encoding/json and yaml.v3.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the raw value. The placeholder decodes to an
// empty secret so a dumped config never loads a fake key.
func (s *Secret) UnmarshalText(text []byte) error {
	if string(text) == redactedSecret {
		*s = ""
		return nil
	}
	*s = Secret(text)
	return nil
}
