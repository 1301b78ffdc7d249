// Package syncqueue implements the priority queue of pending path-level
// work items the Manager feeds and the Consumer drains: ascending
// priority, FIFO within equal priority, adapted from the generic
// container/heap priority queue used elsewhere in this codebase.
package syncqueue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
)

// ErrEmpty is returned by Get when no item became available before timeout.
var ErrEmpty = errors.New("queue empty")

// Item is one path-level unit of work. Permission files get Priority 0;
// all other files get Priority 1 (lower values are served first). RemoteMeta
// is the remote metadata the Manager observed for Path in the current
// tick's get_datasite_states snapshot (nil if the path is local-only), so
// the Consumer never has to re-fetch it to compute a DecisionPair.
type Item struct {
	Priority   int
	Path       datasite.RelativePath
	RemoteMeta *hashsign.FileMetadata
}

type entry struct {
	item     Item
	sequence uint64
	index    int
}

type innerHeap []*entry

func (h innerHeap) Len() int { return len(h) }

// Less orders by ascending priority, then by insertion order (FIFO) within
// equal priority — container/heap alone gives no such tie-break.
func (h innerHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority < h[j].item.Priority
	}
	return h[i].sequence < h[j].sequence
}

func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a thread-safe, single-producer/multi-consumer priority queue of
// Items with a blocking, timeout-bounded Get.
type Queue struct {
	mu      sync.Mutex
	heap    innerHeap
	nextSeq uint64
	signal  chan struct{}
}

func New() *Queue {
	q := &Queue{
		heap:   make(innerHeap, 0),
		signal: make(chan struct{}, 1),
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds an item with the given priority and wakes one blocked Get.
func (q *Queue) Enqueue(path datasite.RelativePath, priority int, remoteMeta *hashsign.FileMetadata) {
	q.mu.Lock()
	heap.Push(&q.heap, &entry{item: Item{Priority: priority, Path: path, RemoteMeta: remoteMeta}, sequence: q.nextSeq})
	q.nextSeq++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Get waits up to timeout for an item, returning ErrEmpty if none arrives.
// A timeout of 0 returns immediately (ErrEmpty if the queue is empty).
func (q *Queue) Get(timeout time.Duration) (Item, error) {
	deadline := time.Now().Add(timeout)

	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			e := heap.Pop(&q.heap).(*entry)
			q.mu.Unlock()
			return e.item, nil
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero Item
			return zero, ErrEmpty
		}

		timer := time.NewTimer(remaining)
		select {
		case <-q.signal:
			timer.Stop()
		case <-timer.C:
			var zero Item
			return zero, ErrEmpty
		}
	}
}

// DequeueAll drains every currently-queued item without blocking.
func (q *Queue) DequeueAll() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]Item, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		e := heap.Pop(&q.heap).(*entry)
		items = append(items, e.item)
	}
	return items
}
