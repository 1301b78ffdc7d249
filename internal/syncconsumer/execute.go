package syncconsumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/rsyncdiff"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
	"github.com/opensyncbox/syncbox/internal/utils"
)

// execute maps one side's Decision onto a wire call or filesystem write.
func (c *Consumer) execute(ctx context.Context, path datasite.RelativePath, d syncdecision.Decision, current, remote *hashsign.FileMetadata) error {
	switch d.ActionType() {
	case syncdecision.ActionCreateRemote:
		return c.createRemote(ctx, path)
	case syncdecision.ActionModifyRemote:
		return c.modifyRemote(ctx, path, remote)
	case syncdecision.ActionDeleteRemote:
		return c.client.Delete(ctx, path)
	case syncdecision.ActionCreateLocal:
		return c.createLocal(ctx, path)
	case syncdecision.ActionModifyLocal:
		return c.modifyLocal(ctx, path, current, remote)
	case syncdecision.ActionDeleteLocal:
		return os.Remove(c.ws.DatasiteAbsPath(path.String()))
	default:
		return nil
	}
}

func (c *Consumer) createRemote(ctx context.Context, path datasite.RelativePath) error {
	data, err := os.ReadFile(c.ws.DatasiteAbsPath(path.String()))
	if err != nil {
		return fmt.Errorf("read local file for upload: %w", err)
	}
	return c.client.Create(ctx, path, data)
}

func (c *Consumer) modifyRemote(ctx context.Context, path datasite.RelativePath, remote *hashsign.FileMetadata) error {
	data, err := os.ReadFile(c.ws.DatasiteAbsPath(path.String()))
	if err != nil {
		return fmt.Errorf("read local file for diff: %w", err)
	}

	diff, err := rsyncdiff.Diff(remote.Signature, data)
	if err != nil {
		return fmt.Errorf("compute diff against remote signature: %w", err)
	}

	_, _, err = c.client.ApplyDiff(ctx, path, diff, remote.Hash)
	return err
}

func (c *Consumer) createLocal(ctx context.Context, path datasite.RelativePath) error {
	data, err := c.client.Download(ctx, path)
	if err != nil {
		return fmt.Errorf("download new file: %w", err)
	}
	return writeLocalFile(c.ws.DatasiteAbsPath(path.String()), data)
}

func (c *Consumer) modifyLocal(ctx context.Context, path datasite.RelativePath, current, remote *hashsign.FileMetadata) error {
	diff, serverHash, err := c.client.GetDiff(ctx, path, current.Signature)
	if err != nil {
		return fmt.Errorf("get diff: %w", err)
	}

	localData, err := os.ReadFile(c.ws.DatasiteAbsPath(path.String()))
	if err != nil {
		return fmt.Errorf("read local file for patch: %w", err)
	}

	patched, err := rsyncdiff.Apply(localData, diff)
	if err != nil {
		return fmt.Errorf("apply diff: %w", err)
	}

	result, err := hashsign.HashBytes(patched, path.String(), remote.LastModified)
	if err != nil {
		return fmt.Errorf("hash patched result: %w", err)
	}
	if result.Hash != serverHash {
		return fmt.Errorf("patched result hash %s does not match server hash %s", result.Hash, serverHash)
	}

	return writeLocalFile(c.ws.DatasiteAbsPath(path.String()), patched)
}

// writeLocalFile replaces a local file atomically: write to a temp file in
// the same directory, then rename over the real path.
func writeLocalFile(absPath string, data []byte) error {
	dir := filepath.Dir(absPath)
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sync-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
