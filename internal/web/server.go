// Package web serves a record store over JSON so boards on other machines
// can share one database. Every mutating call is authorized server-side
// with the same rules the board applies locally.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"caseboard/internal/board"
	"caseboard/internal/perm"
)

const (
	tracerName      = "caseboard/web"
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 4 << 20
	maxPageLimit    = 200
)

type ServerConfig struct {
	Addr string

	// FilesDir, when set, is served under /files so local attachment URLs
	// resolve through this server.
	FilesDir string

	// Anonymous is the identity given to every request when no verifier is
	// configured. Leave nil to reject unauthenticated requests.
	Anonymous *perm.Identity
}

type Server struct {
	cfg      ServerConfig
	records  board.RecordStore
	verifier *perm.Verifier
	log      log.FieldLogger
	tracer   trace.Tracer
	events   *hub
	echo     *echo.Echo
}

func NewServer(cfg ServerConfig, records board.RecordStore, verifier *perm.Verifier, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{
		cfg:      cfg,
		records:  records,
		verifier: verifier,
		log:      logger,
		tracer:   otel.Tracer(tracerName),
		events:   newHub(),
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.requestLog)

	e.GET("/healthz", s.healthz)

	api := e.Group("/api", s.authenticate)
	api.GET("/tasks", s.listTasks)
	api.GET("/tasks/counts", s.countTasks)
	api.GET("/tasks/:id", s.getTask)
	api.POST("/tasks", s.createTask)
	api.PUT("/tasks/:id", s.updateTask)
	api.PUT("/tasks/:id/status", s.updateStatus)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.PUT("/tasks/:id/notes", s.replaceNotes)
	api.PUT("/tasks/:id/attachments", s.setAttachments)
	api.GET("/events", s.streamEvents)

	e.GET("/tasks/:id", s.taskPage, s.authenticate)
	if dir := strings.TrimSpace(s.cfg.FilesDir); dir != "" {
		e.Static("/files", dir)
	}
	return e
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("record server listening")
		errCh <- s.echo.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.events.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("record server stopped")
	return nil
}

func (s *Server) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// requestLog traces and logs each request once it completes.
func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx, span := s.tracer.Start(req.Context(), req.Method+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		status := c.Response().Status
		span.SetAttributes(
			attribute.String("http.route", c.Path()),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		fields := log.Fields{
			"method":   req.Method,
			"route":    c.Path(),
			"status":   status,
			"total_ms": time.Since(start).Milliseconds(),
		}
		if id := identityFrom(c); id.Subject != "" {
			fields["subject"] = id.Subject
		}
		entry := s.log.WithFields(fields)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request")
		}
		return nil
	}
}
