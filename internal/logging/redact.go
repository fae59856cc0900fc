package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/andresmedinaorbidi/clarity/internal/secrets"
)

// redactCore masks sensitive fields before entries reach the wrapped core.
// Values under a sensitive key are replaced outright; other strings,
// errors and the message are scrubbed by the secrets redactor.
type redactCore struct {
	zapcore.Core
	keys     map[string]bool
	redactor *secrets.Redactor
}

// newRedaction returns a function that wraps a core with redaction, or
// leaves it unchanged when redaction is disabled.
func newRedaction(cfg RedactConfig) (func(zapcore.Core) zapcore.Core, error) {
	if !cfg.Enabled {
		return func(core zapcore.Core) zapcore.Core { return core }, nil
	}
	redactor, err := secrets.New(nil)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[strings.ToLower(k)] = true
	}
	return func(core zapcore.Core) zapcore.Core {
		return &redactCore{Core: core, keys: keys, redactor: redactor}
	}, nil
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{
		Core:     c.Core.With(c.redact(fields)),
		keys:     c.keys,
		redactor: c.redactor,
	}
}

func (c *redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.redactor.Redact(ent.Message).Text
	return c.Core.Write(ent, c.redact(fields))
}

func (c *redactCore) redact(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.redactField(f)
	}
	return out
}

func (c *redactCore) redactField(f zapcore.Field) zapcore.Field {
	if c.sensitiveKey(f.Key) {
		return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: secrets.DefaultReplacement}
	}
	switch f.Type {
	case zapcore.StringType:
		f.String = c.redactor.Redact(f.String).Text
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			if res := c.redactor.Redact(err.Error()); res.Redacted() {
				return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: res.Text}
			}
		}
	}
	return f
}

func (c *redactCore) sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return c.keys[key]
}
