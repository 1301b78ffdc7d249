// Package syncconsumer implements the Consumer: the state machine
// that drains queue items, computes a DecisionPair, validates it against
// the execution gates, executes the non-NOOP side, and records the
// outcome in the Local State store.
package syncconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opensyncbox/syncbox/internal/client/workspace"
	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/permission"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
	"github.com/opensyncbox/syncbox/internal/syncqueue"
	"github.com/opensyncbox/syncbox/internal/syncsdk"
	"github.com/opensyncbox/syncbox/internal/syncstate"
)

const defaultQueueGetTimeout = 100 * time.Millisecond

// Consumer executes decisions for one workspace against one server.
type Consumer struct {
	ws          *workspace.Workspace
	state       *syncstate.Store
	client      *syncsdk.Client
	maxFileSize int64
}

// New builds a Consumer. maxFileSizeMB is the configured size cap,
// nominal 10.
func New(ws *workspace.Workspace, state *syncstate.Store, client *syncsdk.Client, maxFileSizeMB int) *Consumer {
	return &Consumer{
		ws:          ws,
		state:       state,
		client:      client,
		maxFileSize: int64(maxFileSizeMB) * 1024 * 1024,
	}
}

// ValidateEnvironment checks the two preconditions the Consumer's outer
// loop must hold on every iteration: the datasites root must be a
// directory, and the local state file must still exist. Either
// failure is fatal — a missing state file after a successful Load implies
// external deletion, not a fresh start.
func (c *Consumer) ValidateEnvironment() error {
	info, err := os.Stat(c.ws.DatasitesDir)
	if err != nil || !info.IsDir() {
		return fatal(fmt.Sprintf("datasites root %s is not a directory", c.ws.DatasitesDir))
	}
	if !syncstate.Exists(c.ws.LocalStateDb) {
		return fatal(fmt.Sprintf("local state file %s is missing", c.ws.LocalStateDb))
	}
	return nil
}

// ConsumeAll drains queue until Get times out (a short 100ms timeout
// keeps the loop responsive), processing items serially since the sync
// thread is single-threaded. It stops and returns immediately on a
// FatalSyncError; any other per-item failure has already been recorded
// against that path and does not abort the drain.
func (c *Consumer) ConsumeAll(ctx context.Context, queue *syncqueue.Queue) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := queue.Get(defaultQueueGetTimeout)
		if err != nil {
			if errors.Is(err, syncqueue.ErrEmpty) {
				return nil
			}
			return err
		}

		if err := c.consumeOne(ctx, item); err != nil {
			var fatalErr *FatalSyncError
			if errors.As(err, &fatalErr) {
				return err
			}
			slog.Error("syncconsumer: unexpected item failure", "path", item.Path, "error", err)
		}
	}
}

// consumeOne runs one path through DEQUEUED -> DECIDED -> (VALIDATED ->
// EXECUTED -> RECORDED) | SKIPPED | FAILED.
func (c *Consumer) consumeOne(ctx context.Context, item syncqueue.Item) error {
	if err := c.ValidateEnvironment(); err != nil {
		return err
	}

	previous := c.previousMetadata(item.Path)
	current, err := c.currentLocalMetadata(item.Path)
	if err != nil {
		slog.Error("syncconsumer: hash local file", "path", item.Path, "error", err)
		return c.state.InsertStatus(item.Path, syncstate.StatusError, syncdecision.ActionNoop, err.Error())
	}

	pair := syncdecision.Decide(current, previous, item.RemoteMeta)

	localExecuted, localSkip, localErr := c.runSide(ctx, item.Path, pair.Local, current, item.RemoteMeta)
	remoteExecuted, remoteSkip, remoteErr := c.runSide(ctx, item.Path, pair.Remote, current, item.RemoteMeta)

	return c.record(item.Path, pair, current, item.RemoteMeta, localExecuted, remoteExecuted, localErr, remoteErr, localSkip, remoteSkip)
}

func (c *Consumer) previousMetadata(path datasite.RelativePath) *hashsign.FileMetadata {
	entry := c.state.Get(path)
	if entry == nil {
		return nil
	}
	return entry.LastSyncedMetadata
}

func (c *Consumer) currentLocalMetadata(path datasite.RelativePath) (*hashsign.FileMetadata, error) {
	absPath := c.ws.DatasiteAbsPath(path.String())
	meta, err := hashsign.HashFile(absPath, c.ws.DatasitesDir)
	if err != nil {
		if errors.Is(err, hashsign.ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return meta, nil
}

// runSide validates and, if valid, executes a single Decision. It returns
// executed=true only when execute() actually ran — a skipped (invalid)
// decision is logged and its gate reason returned so record() can persist
// it as a Local State error rather than claim success or silently drop it.
func (c *Consumer) runSide(ctx context.Context, path datasite.RelativePath, d syncdecision.Decision, current, remote *hashsign.FileMetadata) (executed bool, skipReason string, err error) {
	if d.Operation == syncdecision.OpNoop {
		return false, "", nil
	}

	if reason, ok := c.validate(path, d, current, remote); !ok {
		slog.Info("syncconsumer: skipped invalid decision", "path", path, "side", d.Side, "op", d.Operation, "reason", reason)
		return false, reason, nil
	}

	if err := c.execute(ctx, path, d, current, remote); err != nil {
		return false, "", err
	}
	return true, "", nil
}

// validate applies the pre-execution validation gates.
func (c *Consumer) validate(path datasite.RelativePath, d syncdecision.Decision, current, remote *hashsign.FileMetadata) (string, bool) {
	switch d.Side {
	case syncdecision.SideRemote:
		// Pushing to the remote side: CREATE/MODIFY require local data in
		// hand and under the size cap; permission files additionally need
		// to be syntactically valid before they can overwrite the server's
		// copy. DELETE never needs the local bytes.
		if d.Operation == syncdecision.OpDelete {
			return "", true
		}
		if current == nil {
			return "local file data must exist", false
		}
		if current.Size > uint64(c.maxFileSize) {
			return fmt.Sprintf("local size %s exceeds cap", humanize.Bytes(current.Size)), false
		}
		if permission.IsPermissionFile(path.String()) {
			data, err := os.ReadFile(c.ws.DatasiteAbsPath(path.String()))
			if err != nil {
				return fmt.Sprintf("read permission file: %v", err), false
			}
			if err := permission.Validate(data); err != nil {
				return fmt.Sprintf("invalid permission file: %v", err), false
			}
		}
		return "", true

	case syncdecision.SideLocal:
		if d.Operation == syncdecision.OpDelete {
			return "", true
		}
		if remote == nil {
			return "remote metadata must be present", false
		}
		if remote.Size > uint64(c.maxFileSize) {
			return fmt.Sprintf("remote size %s exceeds cap", humanize.Bytes(remote.Size)), false
		}
		return "", true

	default:
		return "unknown side", false
	}
}
