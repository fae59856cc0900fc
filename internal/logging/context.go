package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	phaseKey
	requestKey
)

// Field names for the correlation values carried in a context.
const (
	FieldSessionID = "session.id"
	FieldPhase     = "phase"
	FieldRequestID = "request.id"
)

// Ids are restricted so they can be logged and used in headers verbatim.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidID reports whether id is accepted by the With* helpers.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func withID(ctx context.Context, key ctxKey, name, id string) context.Context {
	if !ValidID(id) {
		panic(fmt.Sprintf("logging: invalid %s %q", name, id))
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key ctxKey) string {
	id, _ := ctx.Value(key).(string)
	return id
}

// WithSessionID returns ctx carrying the session id. It panics on an id
// that is empty, longer than 128 bytes, or not [a-zA-Z0-9_-].
func WithSessionID(ctx context.Context, id string) context.Context {
	return withID(ctx, sessionKey, "session id", id)
}

// WithPhase returns ctx carrying the pipeline phase. It panics like
// WithSessionID.
func WithPhase(ctx context.Context, phase string) context.Context {
	return withID(ctx, phaseKey, "phase", phase)
}

// WithRequestID returns ctx carrying the HTTP request id. Check untrusted
// ids with ValidID first.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestKey, "request id", id)
}

// SessionID returns the session id in ctx, or "".
func SessionID(ctx context.Context) string { return idFrom(ctx, sessionKey) }

// Phase returns the pipeline phase in ctx, or "".
func Phase(ctx context.Context) string { return idFrom(ctx, phaseKey) }

// RequestID returns the request id in ctx, or "".
func RequestID(ctx context.Context) string { return idFrom(ctx, requestKey) }

// contextFields returns the correlation fields present in ctx.
func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := SessionID(ctx); id != "" {
		fields = append(fields, zap.String(FieldSessionID, id))
	}
	if p := Phase(ctx); p != "" {
		fields = append(fields, zap.String(FieldPhase, p))
	}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String(FieldRequestID, id))
	}
	return fields
}
