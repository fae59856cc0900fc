// Package http provides the HTTP API for clarity sessions.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/orchestrator"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
	"github.com/andresmedinaorbidi/clarity/internal/store"
)

const ndjsonContentType = "application/x-ndjson"

// Server provides HTTP endpoints for clarity.
type Server struct {
	echo     *echo.Echo
	engine   *orchestrator.Engine
	store    store.Store
	logger   *logging.Logger
	config   *Config
	locks    *sessionLocks
	gatherer prometheus.Gatherer
	metrics  *RequestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RequestTimeout bounds one chat turn. Zero means no limit.
	RequestTimeout time.Duration

	// RequiredFields gate leaving intake in sessions created by the server.
	RequiredFields []provenance.Key

	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves the gatherer's metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRequestMetrics records OpenTelemetry request metrics.
func WithRequestMetrics(m *RequestMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(engine *orchestrator.Engine, sessions store.Store, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8700,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		engine: engine,
		store:  sessions,
		logger: logger,
		config: cfg,
		locks:  newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	e.Use(s.requestLogger)

	s.registerRoutes()

	return s, nil
}

// requestLogger logs each request and puts its id into the request
// context. Errors are handed to echo's error handler here so the logged
// status is the one sent.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := req.Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidID(id) {
			ctx = logging.WithRequestID(ctx, id)
			c.SetRequest(req.WithContext(ctx))
		}

		if err := next(c); err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/skills", s.handleListSkills)
	v1.GET("/sessions", s.handleListSessions)
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.PATCH("/sessions/:id/fields", s.handleUpdateFields)
	v1.DELETE("/sessions/:id/fields/:field", s.handleResetField)
	v1.POST("/sessions/:id/chat", s.handleChat)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleListSkills(c echo.Context) error {
	return c.JSON(http.StatusOK, SkillListResponse{Skills: s.engine.Catalog().List()})
}

func (s *Server) handleListSessions(c echo.Context) error {
	list, err := s.store.List(c.Request().Context())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if list == nil {
		list = []store.Summary{}
	}
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: list})
}

func (s *Server) handleCreateSession(c echo.Context) error {
	ctx := c.Request().Context()
	st := orchestrator.NewState(s.config.RequiredFields...)
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	s.logger.Info(logging.WithSessionID(ctx, st.ID), "session created")
	return c.JSON(http.StatusCreated, st)
}

func (s *Server) handleGetSession(c echo.Context) error {
	st, err := s.load(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleUpdateFields writes user-sourced values. Nothing is saved unless
// every key resolves to a project field.
func (s *Server) handleUpdateFields(c echo.Context) error {
	var req FieldsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "fields is required")
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(req.Fields))
	for name := range req.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.engine.UpdateField(ctx, st, name, req.Fields[name]); err != nil {
			return fieldError(err)
		}
	}

	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleResetField(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	reset, err := s.engine.ResetField(ctx, st, c.Param("field"))
	if err != nil {
		return fieldError(err)
	}
	if !reset {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no user value for %s", c.Param("field")))
	}

	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return c.JSON(http.StatusOK, st)
}

// handleChat runs one message turn and streams its fragments. The default
// stream is plain text with inline checkpoint and state markers; clients
// that accept application/x-ndjson get one JSON fragment per line.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	ctx := c.Request().Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	id := c.Param("id")
	unlock := s.locks.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	ndjson := strings.Contains(c.Request().Header.Get(echo.HeaderAccept), ndjsonContentType)
	res := c.Response()
	if ndjson {
		res.Header().Set(echo.HeaderContentType, ndjsonContentType)
	} else {
		res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	}
	res.Header().Set("X-Content-Type-Options", "nosniff")
	res.WriteHeader(http.StatusOK)

	var writeErr error
	sink := func(f orchestrator.Fragment) {
		if writeErr != nil {
			return
		}
		if ndjson {
			writeErr = json.NewEncoder(res).Encode(f)
		} else {
			_, writeErr = res.Write([]byte(f.String()))
		}
		if writeErr == nil {
			res.Flush()
		}
	}

	_, turnErr := s.engine.HandleMessage(ctx, st, req.Message, sink)

	// The client may be gone; the turn's state is kept regardless.
	if err := s.store.Save(context.WithoutCancel(ctx), st); err != nil {
		s.logger.Error(ctx, "saving session after turn", zap.String("session_id", st.ID), zap.Error(err))
	}
	if turnErr != nil {
		s.logger.Warn(ctx, "turn ended with error", zap.String("session_id", st.ID), zap.Error(turnErr))
	}
	if writeErr != nil {
		s.logger.Debug(ctx, "chat stream write failed", zap.Error(writeErr))
	}
	return nil
}

func (s *Server) load(ctx context.Context, id string) (*orchestrator.State, error) {
	st, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return st, nil
}

func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return err
}

func fieldError(err error) error {
	if errors.Is(err, provenance.ErrUnknownField) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
