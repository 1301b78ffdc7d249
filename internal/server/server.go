package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/opensyncbox/syncbox/internal/db"
)

const shutdownTimeout = 10 * time.Second

// Server is the sync server's process: an HTTP listener in front of the
// sync API, its sqlite metadata index, and supporting services.
type Server struct {
	config *Config
	server *http.Server
	db     *sqlx.DB
	svc    *Services
}

// New creates a new server instance with the provided configuration.
func New(config *Config) (*Server, error) {
	dbPath := filepath.Join(config.DataDir, "file.db")
	sqliteDb, err := db.NewSqliteDb(
		db.WithPath(dbPath),
		db.WithMaxOpenConns(runtime.NumCPU()),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	services, err := NewServices(config, sqliteDb)
	if err != nil {
		sqliteDb.Close()
		return nil, fmt.Errorf("initialize services: %w", err)
	}

	httpHandler := SetupRoutes(config, services)

	return &Server{
		config: config,
		db:     sqliteDb,
		svc:    services,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           httpHandler,
			ReadTimeout:       config.HTTP.ReadTimeout,
			WriteTimeout:      config.HTTP.WriteTimeout,
			IdleTimeout:       config.HTTP.IdleTimeout,
			ReadHeaderTimeout: config.HTTP.ReadHeaderTimeout,
			MaxHeaderBytes:    1 << 20, // 1 MB
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("sync server start")

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.runHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		slog.Info("http server stopped")
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("context cancelled, starting shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Stop(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("sync server failure", "error", err)
		return err
	}

	slog.Info("sync server stop")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs error

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	slog.Info("http server stopped")

	if err := s.svc.Shutdown(shutdownCtx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("stop services: %w", err))
	}
	slog.Info("services stopped")

	if err := s.db.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("database close: %w", err))
	}
	slog.Info("database closed")

	if errs != nil {
		return fmt.Errorf("shutdown errors: %w", errs)
	}
	return nil
}

func (s *Server) runHTTPServer() error {
	if s.config.HTTP.HTTPSEnabled() {
		slog.Info("server start https",
			"addr", fmt.Sprintf("https://%s", s.config.HTTP.Addr),
			"cert", s.config.HTTP.CertFile,
			"key", s.config.HTTP.KeyFile,
		)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", fmt.Sprintf("http://%s", s.config.HTTP.Addr))
	return s.server.ListenAndServe()
}
