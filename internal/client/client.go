package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensyncbox/syncbox/internal/client/config"
	"github.com/opensyncbox/syncbox/internal/client/workspace"
	"github.com/opensyncbox/syncbox/internal/syncmanager"
	"github.com/opensyncbox/syncbox/internal/syncsdk"
	"github.com/opensyncbox/syncbox/internal/syncstate"
)

// Client wires a workspace, its durable sync state, a server SDK client,
// and the sync Manager that ties them together into one tick loop.
type Client struct {
	ws      *workspace.Workspace
	manager *syncmanager.Manager
}

func New(cfg *config.Config) (*Client, error) {
	ws, err := workspace.NewWorkspace(cfg.DataDir, cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	if err := ws.Setup(); err != nil {
		return nil, fmt.Errorf("setup workspace: %w", err)
	}

	state, err := syncstate.Load(ws.LocalStateDb)
	if err != nil {
		ws.Unlock()
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	sdkClient, err := syncsdk.New(&syncsdk.Config{
		BaseURL:      cfg.ServerURL,
		Email:        cfg.Email,
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	})
	if err != nil {
		ws.Unlock()
		return nil, fmt.Errorf("create sync client: %w", err)
	}

	manager := syncmanager.New(ws, state, sdkClient, cfg.MaxFileSizeMB)
	if err := manager.Setup(); err != nil {
		ws.Unlock()
		return nil, fmt.Errorf("setup sync manager: %w", err)
	}

	return &Client{ws: ws, manager: manager}, nil
}

func (c *Client) Start(ctx context.Context) error {
	c.manager.Start(ctx)

	<-ctx.Done()
	slog.Info("received interrupt signal, stopping client")
	c.manager.Stop(true)
	return c.ws.Unlock()
}
