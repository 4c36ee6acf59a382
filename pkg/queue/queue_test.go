package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/genc-murat/crystalstream/internal/server/servertest"
)

func newTestQueue(t *testing.T) (*Queue, *servertest.Store) {
	t.Helper()
	store := servertest.Start(t)
	q, err := New(store.NewClient(t), Options{Name: "jobs", Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return q, store
}

func TestNew_RequiresName(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	n, err := q.LeftPush(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = q.LeftPush(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"a", "b", "c"} {
		el, err := q.BlockingRightPop(ctx, PopOptions{Timeout: time.Second})
		require.NoError(t, err)
		require.NotNil(t, el)
		assert.Equal(t, Element{Queue: "jobs", Value: want}, *el)
	}

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_RightPushLeftPop(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.RightPush(ctx, 1, 2)
	require.NoError(t, err)

	el, err := q.BlockingLeftPop(ctx, PopOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "1", el.Value)
}

func TestQueue_PopTimesOut(t *testing.T) {
	q, _ := newTestQueue(t)

	start := time.Now()
	el, err := q.BlockingLeftPop(context.Background(), PopOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Nil(t, el)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestQueue_WaitIndefinitely(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	got := make(chan *Element, 1)
	go func() {
		el, err := q.BlockingRightPop(ctx, PopOptions{Timeout: time.Millisecond, WaitIndefinitely: true})
		assert.NoError(t, err)
		got <- el
	}()

	// Give the pop time to block past its ignored one millisecond timeout.
	time.Sleep(50 * time.Millisecond)
	other, err := New(store.NewClient(t), Options{Name: "jobs"})
	require.NoError(t, err)
	_, err = other.LeftPush(ctx, "late")
	require.NoError(t, err)

	select {
	case el := <-got:
		require.NotNil(t, el)
		assert.Equal(t, "late", el.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("pop did not return")
	}
}
