package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingMetrics struct {
	mu        sync.Mutex
	processed int
	acked     int
	failed    int
	claimed   []int
	trimmed   int64
	phases    []State
}

func (m *recordingMetrics) Processed(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
}

func (m *recordingMetrics) Acked(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
}

func (m *recordingMetrics) Failed(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *recordingMetrics) Claimed(_, _ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimed = append(m.claimed, n)
}

func (m *recordingMetrics) Trimmed(_, _ string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmed += n
}

func (m *recordingMetrics) Phase(_, _, _ string, phase int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, State(phase))
}

func (m *recordingMetrics) phaseHistory() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.phases...)
}

type mockConsumer struct {
	mock.Mock
}

func (m *mockConsumer) Process(ctx context.Context, msg Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

// collector accepts every message and remembers the IDs in order.
type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) Process(_ context.Context, msg Message) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, msg.ID)
	return true, nil
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

type failingCodec struct {
	JSONFieldCodec
}

func (failingCodec) Decode([]string) (Record, error) {
	return nil, fmt.Errorf("%w: unreadable", ErrMalformedEntry)
}

func newRuntime(t *testing.T, env *testEnv, consumer Consumer, config ConsumerConfig, opts ...RuntimeOption) *ConsumerRuntime {
	t.Helper()
	if config.Stream == "" {
		config.Stream = "s"
	}
	if config.Group == "" {
		config.Group = "g"
	}
	rt, err := NewConsumerRuntime(env.client, consumer, config, opts...)
	require.NoError(t, err)
	return rt
}

func TestNewConsumerRuntime(t *testing.T) {
	client := NewClient(nil, Options{ID: "worker"})

	_, err := NewConsumerRuntime(client, &collector{}, ConsumerConfig{Group: "g"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = NewConsumerRuntime(client, &collector{}, ConsumerConfig{Stream: "s"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = NewConsumerRuntime(client, &collector{}, ConsumerConfig{
		Stream: "s",
		Group:  "g",
		Trim:   &TrimOptions{MaxLength: 10, CutPoint: CutPointLastAcknowledged},
	})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	rt, err := NewConsumerRuntime(client, &collector{}, ConsumerConfig{Stream: "s", Group: "g"})
	require.NoError(t, err)
	assert.Equal(t, "worker", rt.config.Name)
	assert.Equal(t, RecoveryOptions{Start: "-", End: "+", PageCount: 100}, rt.config.Recovery)
	assert.Equal(t, ReadOptions{Block: DefaultBlock}, rt.config.Read)
	assert.Equal(t, StateIdle, rt.State())

	rt, err = NewConsumerRuntime(client, &collector{}, ConsumerConfig{
		Stream: "s",
		Group:  "g",
		Read:   ReadOptions{Count: 5, BlockForever: true},
	})
	require.NoError(t, err)
	assert.Equal(t, ReadOptions{Count: 5, BlockForever: true}, rt.config.Read)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "recovering", StateRecovering.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestConsumerRuntime_JoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rt := newRuntime(t, env, &collector{}, ConsumerConfig{})

	require.NoError(t, rt.Join(ctx))
	require.NoError(t, rt.Join(ctx))
	assert.Equal(t, StateJoining, rt.State())

	groups, err := env.client.GroupInfo(ctx, "s")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g", groups[0].Name)

	// A second group joins a stream that already exists.
	other := newRuntime(t, env, &collector{}, ConsumerConfig{Group: "g2"})
	require.NoError(t, other.Join(ctx))
	groups, err = env.client.GroupInfo(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestConsumerRuntime_DeliversInOrderAndAcksAfterProcessing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	producer := NewProducer(env.client, nil)

	var (
		got       []Record
		ids       []string
		wasQueued []bool
	)
	consumer := ConsumerFunc(func(ctx context.Context, msg Message) (bool, error) {
		pending, err := env.client.Pending(ctx, "s1", "g1", PendingOptions{})
		if err != nil {
			return false, err
		}
		queued := false
		for _, p := range pending {
			queued = queued || p.ID == msg.ID
		}
		wasQueued = append(wasQueued, queued)
		got = append(got, msg.Record)
		ids = append(ids, msg.ID)
		return true, nil
	})
	rt := newRuntime(t, env, consumer, ConsumerConfig{Stream: "s1", Group: "g1", Read: ReadOptions{Count: 10}})
	require.NoError(t, rt.Join(ctx))

	var produced []string
	for i := 1; i <= 3; i++ {
		id, err := producer.Produce(ctx, "s1", Record{"a": i}, nil)
		require.NoError(t, err)
		produced = append(produced, id)
	}

	n, err := rt.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, produced, ids)
	assert.Equal(t, []Record{{"a": float64(1)}, {"a": float64(2)}, {"a": float64(3)}}, got)
	assert.Equal(t, []bool{true, true, true}, wasQueued)

	last, ok, err := env.client.LastAcknowledgedID(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, produced[2], last)

	pending, err := env.client.Pending(ctx, "s1", "g1", PendingOptions{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConsumerRuntime_RecoversAfterCrash(t *testing.T) {
	ctx := context.Background()

	for _, pageCount := range []int64{1, 2, 3, 10} {
		t.Run(fmt.Sprintf("page %d", pageCount), func(t *testing.T) {
			env := newTestEnv(t)
			require.NoError(t, env.client.GroupCreate(ctx, "s", "g"))
			ids := env.addN(t, "s", 5)

			// A consumer that read everything and died before acknowledging.
			_, err := env.client.ReadGroup(ctx, "s", "g", "dead", ReadOptions{}, "")
			require.NoError(t, err)

			c := &collector{}
			m := &recordingMetrics{}
			rt := newRuntime(t, env, c, ConsumerConfig{
				Name:     "c1",
				Recovery: RecoveryOptions{PageCount: pageCount},
			}, WithMetrics(m))

			claimed, err := rt.Recover(ctx)
			require.NoError(t, err)
			assert.Equal(t, 5, claimed)
			assert.Equal(t, ids, c.seen())
			assert.Equal(t, 5, m.acked)

			pending, err := env.client.Pending(ctx, "s", "g", PendingOptions{})
			require.NoError(t, err)
			assert.Empty(t, pending)

			last, _, err := env.client.LastAcknowledgedID(ctx, "g")
			require.NoError(t, err)
			assert.Equal(t, ids[4], last)
		})
	}
}

func TestConsumerRuntime_RecoveryPagesDoNotReclaim(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.client.GroupCreate(ctx, "s", "g"))
	ids := env.addN(t, "s", 2)
	_, err := env.client.ReadGroup(ctx, "s", "g", "dead", ReadOptions{}, "")
	require.NoError(t, err)

	reject := ConsumerFunc(func(context.Context, Message) (bool, error) { return false, nil })
	m := &recordingMetrics{}
	rt := newRuntime(t, env, reject, ConsumerConfig{
		Name:     "c1",
		Recovery: RecoveryOptions{PageCount: 1},
	}, WithMetrics(m))

	claimed, err := rt.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []int{1, 1}, m.claimed)
	assert.Equal(t, 2, m.failed)

	pending, err := env.client.Pending(ctx, "s", "g", PendingOptions{})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for i, p := range pending {
		assert.Equal(t, ids[i], p.ID)
		assert.Equal(t, "c1", p.Consumer)
		// One read by the dead consumer plus exactly one claim.
		assert.Equal(t, int64(2), p.DeliveryCount)
	}
}

func TestConsumerRuntime_RejectedEntryIsRedelivered(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	m := &mockConsumer{}
	rt := newRuntime(t, env, m, ConsumerConfig{Name: "c1"})
	require.NoError(t, rt.Join(ctx))
	ids := env.addN(t, "s", 1)

	isEntry := mock.MatchedBy(func(msg Message) bool { return msg.ID == ids[0] && msg.Stream == "s" })
	m.On("Process", mock.Anything, isEntry).Return(false, nil).Once()
	m.On("Process", mock.Anything, isEntry).Return(true, nil).Once()

	n, err := rt.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := env.client.Pending(ctx, "s", "g", PendingOptions{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	claimed, err := rt.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)

	pending, err = env.client.Pending(ctx, "s", "g", PendingOptions{})
	require.NoError(t, err)
	assert.Empty(t, pending)
	m.AssertExpectations(t)
}

func TestConsumerRuntime_ProcessingErrorStops(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	boom := errors.New("boom")

	m := &recordingMetrics{}
	fail := ConsumerFunc(func(context.Context, Message) (bool, error) { return false, boom })
	rt := newRuntime(t, env, fail, ConsumerConfig{}, WithMetrics(m))
	require.NoError(t, rt.Join(ctx))
	env.addN(t, "s", 2)

	_, err := rt.Poll(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.failed)
	assert.Zero(t, m.acked)

	pending, err := env.client.Pending(ctx, "s", "g", PendingOptions{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestConsumerRuntime_UndecodableEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestEnv(t).store
	client := NewClient(store.NewClient(t), Options{Prefix: "test", Codec: failingCodec{}, Logger: zaptest.NewLogger(t)})

	rt, err := NewConsumerRuntime(client, &collector{}, ConsumerConfig{Stream: "s", Group: "g"})
	require.NoError(t, err)
	require.NoError(t, rt.Join(ctx))
	_, err = client.Add(ctx, "s", Record{"a": 1}, nil, "")
	require.NoError(t, err)

	_, err = rt.Poll(ctx)
	assert.ErrorIs(t, err, ErrMalformedEntry)
}

func TestConsumerRuntime_TrimsAfterBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var ids []string
	skipFourth := ConsumerFunc(func(_ context.Context, msg Message) (bool, error) {
		return msg.ID != ids[3], nil
	})
	m := &recordingMetrics{}
	rt := newRuntime(t, env, skipFourth, ConsumerConfig{
		Read: ReadOptions{Count: 10},
		Trim: &TrimOptions{MaxLength: 2, CutPoint: CutPointLastAcknowledged, PageCount: 2},
	}, WithMetrics(m))
	require.NoError(t, rt.Join(ctx))
	ids = env.addN(t, "s", 5)

	n, err := rt.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(3), m.trimmed)

	rest, err := env.client.Range(ctx, "s", RangeOptions{})
	require.NoError(t, err)
	assert.Equal(t, ids[3:], entryIDs(rest))
}

func TestConsumerRuntime_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	c := &collector{}
	m := &recordingMetrics{}
	rt := newRuntime(t, env, c, ConsumerConfig{Read: ReadOptions{Block: 20 * time.Millisecond}}, WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	require.Eventually(t, func() bool { return rt.State() == StateListening }, 5*time.Second, 5*time.Millisecond)
	ids := env.addN(t, "s", 1)
	require.Eventually(t, func() bool { return len(c.seen()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, ids, c.seen())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
	assert.Equal(t, StateStopped, rt.State())
	assert.Equal(t, []State{StateJoining, StateRecovering, StateListening, StateStopped}, m.phaseHistory())
}

func TestConsumerRuntime_IdleListenBlocks(t *testing.T) {
	env := newTestEnv(t)
	commands := func() int64 {
		return env.store.Server.GetMetrics()["total_commands_processed"].(int64)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen []string
	stopAfterFirst := ConsumerFunc(func(_ context.Context, msg Message) (bool, error) {
		seen = append(seen, msg.ID)
		cancel()
		return true, nil
	})
	rt := newRuntime(t, env, stopAfterFirst, ConsumerConfig{})

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	require.Eventually(t, func() bool { return rt.State() == StateListening }, 5*time.Second, 5*time.Millisecond)

	before := commands()
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, commands()-before, int64(1))

	// A new entry wakes the blocked read.
	ids := env.addN(t, "s", 1)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, ids, seen)
}
