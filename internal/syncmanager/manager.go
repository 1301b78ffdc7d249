// Package syncmanager implements the Manager: the periodic tick loop
// that reconciles every visible datasite against the server's view,
// enqueues out-of-sync paths for the Consumer, and performs the bulk
// download-all-missing pass on its first tick. Adapted from
// original_source's client/plugins/sync/manager.py.
package syncmanager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensyncbox/syncbox/internal/client/workspace"
	"github.com/opensyncbox/syncbox/internal/syncconsumer"
	"github.com/opensyncbox/syncbox/internal/syncqueue"
	"github.com/opensyncbox/syncbox/internal/syncsdk"
	"github.com/opensyncbox/syncbox/internal/syncstate"
)

// priorityPermission/priorityFile order the Consumer's queue: permission
// files land first within a tick so access-rule changes take effect before
// the regular files they gate are pushed or pulled.
const (
	priorityPermission = 0
	priorityFile       = 1

	defaultSyncInterval   = time.Second
	defaultQueueGetPeriod = 100 * time.Millisecond
)

// Manager drives one workspace's sync lifecycle against one server.
type Manager struct {
	ws       *workspace.Workspace
	state    *syncstate.Store
	client   *syncsdk.Client
	queue    *syncqueue.Queue
	consumer *syncconsumer.Consumer

	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	stopped chan struct{}
	ranOnce bool

	watcher *changeWatcher
}

// New builds a Manager; maxFileSizeMB is forwarded to the Consumer's size
// validation gate.
func New(ws *workspace.Workspace, state *syncstate.Store, client *syncsdk.Client, maxFileSizeMB int) *Manager {
	queue := syncqueue.New()
	return &Manager{
		ws:       ws,
		state:    state,
		client:   client,
		queue:    queue,
		consumer: syncconsumer.New(ws, state, client, maxFileSizeMB),
		interval: defaultSyncInterval,
	}
}

// Setup creates the change-log folder the Manager needs before its first
// tick (manager.py's setup() creating self.change_log_folder), and ensures
// the local state file exists on disk so ValidateEnvironment's precondition
// holds even on a brand-new workspace that has never recorded a decision.
func (m *Manager) Setup() error {
	if err := ensureChangeLogFolder(m.ws); err != nil {
		return err
	}
	return m.state.EnsureFile()
}

// IsRunning reports whether the tick loop goroutine is currently active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the tick loop in a background goroutine. It is a no-op if
// already running. A best-effort filesystem watcher is started alongside it
// to shrink the delay before a locally changed path is picked up — the
// engine remains poll-driven; the watcher only wakes the loop early, it
// never replaces a tick.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.stopped = make(chan struct{})
	m.mu.Unlock()

	m.watcher = newChangeWatcher(m.ws.DatasitesDir)
	m.watcher.start(ctx)

	go m.loop(ctx)
}

// Stop requests the tick loop to exit after its current tick; blocking
// waits for it to actually finish.
func (m *Manager) Stop(blocking bool) {
	m.mu.Lock()
	stopCh := m.stopCh
	stopped := m.stopped
	m.running = false
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	if m.watcher != nil {
		m.watcher.stop()
	}
	if blocking && stopped != nil {
		<-stopped
	}
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.stopped)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		traceID := uuid.NewString()
		if err := m.tick(ctx, traceID); err != nil {
			var fatalErr *syncconsumer.FatalSyncError
			if errors.As(err, &fatalErr) {
				slog.Error("syncmanager: fatal sync error, stopping", "trace_id", traceID, "error", err)
				return
			}
			slog.Error("syncmanager: tick failed", "trace_id", traceID, "error", err)
		}

		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-m.wakeOrTimer():
		}
	}
}

// wakeOrTimer returns a channel that fires at the next regular interval, or
// sooner if the filesystem watcher observed a local change in the meantime.
func (m *Manager) wakeOrTimer() <-chan struct{} {
	out := make(chan struct{}, 1)
	timer := time.NewTimer(m.interval)

	var wake <-chan struct{}
	if m.watcher != nil {
		wake = m.watcher.wake
	}

	go func() {
		select {
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}
		out <- struct{}{}
	}()

	return out
}

// tick runs exactly one pass of manager.py's run_single_thread: fetch every
// visible datasite's remote state, download anything entirely missing on
// the very first tick, enqueue every other out-of-sync path (permission
// files first), then drain the queue.
func (m *Manager) tick(ctx context.Context, traceID string) error {
	if err := m.consumer.ValidateEnvironment(); err != nil {
		return err
	}

	states := m.fetchDatasiteStates(ctx)
	slog.Debug("syncmanager: tick", "trace_id", traceID, "datasites", len(states))

	if !m.ranOnce {
		m.downloadAllMissing(ctx, states)
	}

	for email, remoteFiles := range states {
		permChanges, fileChanges, err := m.outOfSyncFiles(email, remoteFiles)
		if err != nil {
			slog.Error("syncmanager: compute out-of-sync files", "datasite", email, "error", err)
			continue
		}
		if total := len(permChanges) + len(fileChanges); total > 0 {
			slog.Debug("syncmanager: enqueuing", "datasite", email, "permissions", len(permChanges), "files", len(fileChanges))
		}

		for _, item := range permChanges {
			m.queue.Enqueue(item.path, priorityPermission, item.meta)
		}
		for _, item := range fileChanges {
			m.queue.Enqueue(item.path, priorityFile, item.meta)
		}
	}

	if err := m.consumer.ConsumeAll(ctx, m.queue); err != nil {
		return err
	}

	m.ranOnce = true
	return nil
}

// fetchDatasiteStates retrieves every datasite visible to this user. A
// server failure degrades to syncing only the caller's own datasite (with
// an empty remote view) rather than aborting the tick.
func (m *Manager) fetchDatasiteStates(ctx context.Context) syncsdk.DatasiteStates {
	states, err := m.client.GetDatasiteStates(ctx)
	if err != nil {
		slog.Error("syncmanager: failed to retrieve datasite states, syncing own datasite only", "error", err)
	}
	if states == nil {
		states = syncsdk.DatasiteStates{}
	}

	if _, ok := states[m.ws.Owner]; !ok {
		states[m.ws.Owner] = nil
	}
	return states
}
