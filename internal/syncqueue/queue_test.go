package syncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	q := New()
	q.Enqueue("alice@example.com/b.txt", 1, nil)
	q.Enqueue("alice@example.com/_.syftperm", 0, nil)
	q.Enqueue("alice@example.com/a.txt", 1, nil)

	first, err := q.Get(time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, "alice@example.com/_.syftperm", first.Path)

	second, err := q.Get(time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, "alice@example.com/b.txt", second.Path)

	third, err := q.Get(time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, "alice@example.com/a.txt", third.Path)
}

func TestGetTimesOutWhenEmpty(t *testing.T) {
	q := New()
	_, err := q.Get(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestGetUnblocksOnEnqueue(t *testing.T) {
	q := New()

	done := make(chan Item, 1)
	go func() {
		item, err := q.Get(time.Second)
		require.NoError(t, err)
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue("alice@example.com/c.txt", 1, nil)

	select {
	case item := <-done:
		require.EqualValues(t, "alice@example.com/c.txt", item.Path)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock on Enqueue")
	}
}

func TestDequeueAll(t *testing.T) {
	q := New()
	q.Enqueue("a", 1, nil)
	q.Enqueue("b", 0, nil)

	items := q.DequeueAll()
	require.Len(t, items, 2)
	require.EqualValues(t, "b", items[0].Path)
	require.Equal(t, 0, q.Len())
}
