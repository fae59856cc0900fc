package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/andresmedinaorbidi/clarity/internal/http"

// unmatchedRoute labels requests that matched no route, so scanners
// hitting random paths cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// RequestMetrics records OpenTelemetry metrics per route.
type RequestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewRequestMetrics creates the instruments on meter, or on the global
// provider when meter is nil.
func NewRequestMetrics(meter metric.Meter) (*RequestMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	var (
		m   RequestMetrics
		err error
	)
	m.requests, err = meter.Int64Counter("clarity.http.requests",
		metric.WithDescription("HTTP requests by method, route and status."),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	// Chat turns stream for as long as the chain runs, hence the long tail.
	m.duration, err = meter.Float64Histogram("clarity.http.request.duration",
		metric.WithDescription("HTTP request duration, including streamed chat turns."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.25, 1, 5, 15, 30, 60, 120, 300))
	if err != nil {
		return nil, err
	}
	m.inflight, err = meter.Int64UpDownCounter("clarity.http.inflight",
		metric.WithDescription("Requests currently being served."),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Middleware records one observation per request.
func (m *RequestMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			m.inflight.Add(ctx, 1)
			defer m.inflight.Add(ctx, -1)

			start := time.Now()
			err := next(c)

			opt := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", responseStatus(c, err)),
			)
			m.requests.Add(ctx, 1, opt)
			m.duration.Record(ctx, time.Since(start).Seconds(), opt)
			return err
		}
	}
}

func routeLabel(path string) string {
	if path == "" {
		return unmatchedRoute
	}
	return path
}

// responseStatus reports the status that will be sent. Errors returned
// by handlers have not been written yet.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 500
}
