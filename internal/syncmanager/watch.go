package syncmanager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rjeczalik/notify"
)

// changeWatcher is a best-effort early-wake signal for the tick loop. The
// engine stays poll-driven, so there is no debouncing or per-path event
// stream to expose here — any filesystem write just coalesces into a
// single non-blocking nudge of the next tick.
type changeWatcher struct {
	dir string

	mu     sync.Mutex
	events chan notify.EventInfo
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func newChangeWatcher(dir string) *changeWatcher {
	return &changeWatcher{
		dir:  dir,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (w *changeWatcher) start(ctx context.Context) {
	w.events = make(chan notify.EventInfo, 256)

	if err := notify.Watch(w.dir+"/...", w.events, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		slog.Warn("syncmanager: filesystem watcher unavailable, relying on polling interval alone", "dir", w.dir, "error", err)
		close(w.events)
		return
	}

	w.wg.Add(1)
	go w.run(ctx)
}

func (w *changeWatcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case _, ok := <-w.events:
			if !ok {
				return
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (w *changeWatcher) stop() {
	w.mu.Lock()
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.mu.Unlock()

	if w.events != nil {
		notify.Stop(w.events)
	}
	w.wg.Wait()
}
