package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eargollo/taxsheet/internal/api/handlers"
	"github.com/eargollo/taxsheet/internal/channel"
	"github.com/eargollo/taxsheet/internal/config"
	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
	"github.com/eargollo/taxsheet/internal/scheduler"
	"github.com/eargollo/taxsheet/internal/store"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Cfg     *config.Config
	Ctl     *engine.Controller
	Hub     *channel.Hub
	Router  *channel.Router
	Store   *store.Store
	Sched   *scheduler.Scheduler
	Version string
	// RunBase bounds runs started over HTTP.
	RunBase context.Context
	// StaticFS holds the presentation client; nil disables it.
	StaticFS fs.FS
}

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr    string
	srv     *http.Server
	handler http.Handler
}

// New wires all routes and returns a Server ready to Run.
func New(addr string, d Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	statusH := &handlers.StatusHandler{Ctl: d.Ctl, Sched: d.Sched, Version: d.Version}
	logsH := &handlers.LogsHandler{Ctl: d.Ctl}
	runsH := &handlers.RunsHandler{Ctl: d.Ctl, Store: d.Store, Base: d.RunBase}
	if d.Cfg != nil {
		runsH.Defaults = protocol.StartRequest{Input: d.Cfg.SourceDir, Output: d.Cfg.DestinationDir}
	}
	eventsH := &handlers.EventsHandler{Ctl: d.Ctl, Hub: d.Hub, Router: d.Router}
	configH := &handlers.ConfigHandler{Cfg: d.Cfg}

	r.Route("/api", func(r chi.Router) {
		// The websocket stays open for the whole session; keep it out of
		// the request logger and timeout.
		r.Get("/ws", eventsH.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Logger)
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/status", statusH.ServeHTTP)
			r.Get("/logs", logsH.ServeHTTP)
			r.Get("/config", configH.Get)

			r.Post("/runs", runsH.Create)
			r.Get("/runs", runsH.List)
			r.Delete("/runs/current", runsH.Cancel)
			r.Get("/runs/{id}", runsH.Get)
			r.Get("/runs/{id}/records", runsH.Records)
		})
	})

	if d.StaticFS != nil {
		r.Handle("/*", http.FileServer(http.FS(d.StaticFS)))
	}

	return &Server{
		addr:    addr,
		handler: r,
		srv:     &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second},
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
