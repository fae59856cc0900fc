package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectRequests(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "clarity.http.requests" {
				continue
			}
			sum, ok := mt.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value("route")
				status, _ := dp.Attributes.Value("status")
				counts[route.AsString()+" "+status.Emit()] += dp.Value
			}
		}
	}
	return counts
}

func TestRequestMetrics_Middleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewRequestMetrics(mp.Meter(meterName))
	require.NoError(t, err)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/sessions/:id", func(c echo.Context) error {
		if c.Param("id") == "gone" {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	})

	for _, path := range []string{"/health", "/api/v1/sessions/a", "/api/v1/sessions/b", "/api/v1/sessions/gone", "/wp-admin"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	counts := collectRequests(t, reader)
	assert.Equal(t, int64(1), counts["/health 200"])
	assert.Equal(t, int64(2), counts["/api/v1/sessions/:id 200"], "path parameters collapse into the route")
	assert.Equal(t, int64(1), counts["/api/v1/sessions/:id 404"])

	var notFound int64
	for key, n := range counts {
		if strings.HasSuffix(key, " 404") {
			notFound += n
		}
	}
	assert.Equal(t, int64(2), notFound, "unmatched paths are still counted")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, unmatchedRoute, routeLabel(""))
	assert.Equal(t, "/api/v1/sessions/:id/chat", routeLabel("/api/v1/sessions/:id/chat"))
}
