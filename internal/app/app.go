// Package app wires configuration, storage, the game service and the HTTP
// surface into a runnable backend, and assembles the visitor and operator
// clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"valentine/internal/config"
	"valentine/internal/game"
	"valentine/internal/httpapi"
	"valentine/internal/media"
	"valentine/internal/puzzles"
	"valentine/internal/state"
	"valentine/internal/telemetry"
)

// NewLogger returns the console logger shared by every command.
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "valentine",
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}), nil
}

// Server is the assembled backend.
type Server struct {
	cfg     config.Config
	logger  *log.Logger
	journal *telemetry.Journal
	store   *state.SQLiteStore
	catalog *puzzles.Catalog
	http    *http.Server
}

func NewServer(ctx context.Context, cfg config.Config, logger *log.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	journal, err := telemetry.NewJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	store, err := state.NewSQLite(cfg.DatabasePath())
	if err != nil {
		_ = journal.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		_ = journal.Close()
		return nil, err
	}

	catalog, err := puzzles.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		_ = store.Close()
		_ = journal.Close()
		return nil, err
	}
	if catalog.Len() == 0 {
		_ = store.Close()
		_ = journal.Close()
		return nil, fmt.Errorf("no puzzles in %s", cfg.CatalogPath)
	}

	signer, err := media.New(ctx, cfg.Media)
	if err != nil {
		_ = store.Close()
		_ = journal.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := httpapi.NewHub()
	svc := game.NewService(game.Options{
		Store:           store,
		Catalog:         catalog,
		Media:           signer,
		SessionDuration: cfg.SessionDuration,
		Journal:         journal,
		Logger:          logger,
		Metrics:         game.NewMetrics(reg),
		Notifier:        hub,
	})
	api, err := httpapi.New(svc, hub, httpapi.Config{
		AdminPassword: cfg.AdminPassword,
		CORSOrigins:   cfg.CORSOrigins,
		MediaDir:      cfg.Media.Dir,
		Gatherer:      reg,
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		_ = journal.Close()
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		journal: journal,
		store:   store,
		catalog: catalog,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the HTTP surface, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("serving", "addr", ln.Addr().String(), "puzzles", s.catalog.Len(), "db", s.cfg.DatabasePath())
	s.journal.Record("server.start", "", map[string]any{"addr": ln.Addr().String(), "puzzles": s.catalog.Len()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) Close() {
	_ = s.store.Close()
	_ = s.journal.Close()
}
