package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/opensyncbox/syncbox/internal/server/accesslog"
	"github.com/opensyncbox/syncbox/internal/server/auth"
	"github.com/opensyncbox/syncbox/internal/server/syncapi"
)

// Services bundles the server's long-lived dependencies: the sync metadata
// index and snapshot store behind the sync REST endpoints, the bearer-token
// auth service, and the per-user access logger.
type Services struct {
	Auth      *auth.Service
	Sync      *syncapi.Handler
	AccessLog *accesslog.AccessLogger
}

func NewServices(config *Config, db *sqlx.DB) (*Services, error) {
	index, err := syncapi.NewIndex(db)
	if err != nil {
		return nil, fmt.Errorf("initialize sync index: %w", err)
	}

	store, err := newSnapshotStore(config)
	if err != nil {
		return nil, fmt.Errorf("initialize snapshot store: %w", err)
	}

	authSvc := auth.New(&config.Auth)
	syncHandler := syncapi.New(index, store, config.MaxFileSizeMB)

	accessLogDir := filepath.Join(config.DataDir, "logs", "access")
	accessLogger, err := accesslog.New(accessLogDir, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create access logger: %w", err)
	}

	return &Services{
		Auth:      authSvc,
		Sync:      syncHandler,
		AccessLog: accessLogger,
	}, nil
}

func newSnapshotStore(config *Config) (syncapi.SnapshotStore, error) {
	switch config.Snapshot.Backend {
	case "s3":
		return syncapi.NewS3Store(context.Background(), syncapi.S3Config{
			Bucket:    config.Snapshot.Bucket,
			Region:    config.Snapshot.Region,
			Endpoint:  config.Snapshot.Endpoint,
			AccessKey: config.Snapshot.AccessKey,
			SecretKey: config.Snapshot.SecretKey,
		})
	default:
		return syncapi.NewFSStore(filepath.Join(config.DataDir, "snapshot"))
	}
}

func (s *Services) Shutdown(ctx context.Context) error {
	if err := s.AccessLog.Close(); err != nil {
		return fmt.Errorf("close access logger: %w", err)
	}
	return nil
}
