// Package server exposes the robot over a small admin HTTP API: joint and
// state inspection, single-joint commands, canned moves and the walk loop.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/willothy/khacks-0.3/pkg/kos"
	"github.com/willothy/khacks-0.3/pkg/robot"
	"github.com/willothy/khacks-0.3/pkg/walk"
)

// Robot is the controller surface the server drives.
type Robot interface {
	CommandJoint(ctx context.Context, joint robot.Joint, axis robot.Axis, cmd robot.Command) error
	CommandMany(ctx context.Context, targets []robot.JointTarget) error
	ReadStates(ctx context.Context, ids []robot.ActuatorID) ([]kos.ActuatorState, error)
}

var _ Robot = (*robot.Robot)(nil)

// Server is the admin API.
type Server struct {
	robot   Robot
	walker  *walk.Runner
	walkCfg walk.Config
	logger  *slog.Logger
}

// New creates a server. walkCfg is the base configuration for
// POST /walk/start; the request body may override parts of it.
func New(r Robot, walker *walk.Runner, walkCfg walk.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		robot:   r,
		walker:  walker,
		walkCfg: walkCfg,
		logger:  logger.With("component", "server"),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", s.healthz)
	r.Get("/joints", s.listJoints)
	r.Get("/states", s.readStates)
	r.Post("/joints/{joint}", s.commandJoint)

	r.Get("/moves", s.listMoves)
	r.Post("/moves/{name}", s.playMove)
	// Routes the web front-end posts to
	r.Post("/muscles", s.playNamed("muscles"))
	r.Post("/dab", s.playNamed("dab"))

	r.Route("/walk", func(r chi.Router) {
		r.Get("/", s.walkStatus)
		r.Post("/start", s.walkStart)
		r.Post("/stop", s.walkStop)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
