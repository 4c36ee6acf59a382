package streams

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Consumer processes one message at a time. Returning true acknowledges
// the message; false leaves it pending for a later recovery pass. An error
// stops the runtime. Messages can be delivered more than once.
type Consumer interface {
	Process(ctx context.Context, msg Message) (bool, error)
}

type ConsumerFunc func(ctx context.Context, msg Message) (bool, error)

func (f ConsumerFunc) Process(ctx context.Context, msg Message) (bool, error) {
	return f(ctx, msg)
}

type State int32

const (
	StateIdle State = iota
	StateJoining
	StateRecovering
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateRecovering:
		return "recovering"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Metrics receives consumer runtime events.
type Metrics interface {
	Processed(stream, group string)
	Acked(stream, group string)
	Failed(stream, group string)
	Claimed(stream, group string, n int)
	Trimmed(stream, group string, n int64)
	Phase(stream, group, consumer string, phase int)
}

type nopMetrics struct{}

func (nopMetrics) Processed(string, string) {}
func (nopMetrics) Acked(string, string) {}
func (nopMetrics) Failed(string, string) {}
func (nopMetrics) Claimed(string, string, int) {}
func (nopMetrics) Trimmed(string, string, int64) {}
func (nopMetrics) Phase(string, string, string, int) {}

// DefaultBlock is how long a listening runtime waits for new entries when
// ConsumerConfig.Read sets no block.
const DefaultBlock = 5 * time.Second

type RecoveryOptions struct {
	Start     string
	End       string
	PageCount int64
	// MinIdle leaves entries idle for less than this with their owner.
	MinIdle time.Duration
}

type ConsumerConfig struct {
	Stream string
	Group  string
	// Name is the consumer name within the group. Defaults to the client ID.
	Name     string
	// Read.Block defaults to DefaultBlock; a runtime never polls without
	// blocking.
	Read     ReadOptions
	Recovery RecoveryOptions
	// Trim runs after every batch when set.
	Trim *TrimOptions
}

type RuntimeOption func(*ConsumerRuntime)

func WithMetrics(m Metrics) RuntimeOption {
	return func(r *ConsumerRuntime) { r.metrics = m }
}

func WithLogger(logger *zap.Logger) RuntimeOption {
	return func(r *ConsumerRuntime) { r.logger = logger }
}

// ConsumerRuntime drives one consumer of one group: it joins the group,
// claims and processes entries abandoned by other consumers, then listens
// for new entries. Phases run sequentially; a runtime is not meant to be
// run from several goroutines.
type ConsumerRuntime struct {
	client   *Client
	consumer Consumer
	config   ConsumerConfig
	metrics  Metrics
	logger   *zap.Logger
	state    atomic.Int32
}

func NewConsumerRuntime(client *Client, consumer Consumer, config ConsumerConfig, opts ...RuntimeOption) (*ConsumerRuntime, error) {
	if config.Stream == "" || config.Group == "" {
		return nil, fmt.Errorf("%w: stream and group are required", ErrInvalidOptions)
	}
	if config.Name == "" {
		config.Name = client.ID()
	}
	if !config.Read.BlockForever && config.Read.Block <= 0 {
		config.Read.Block = DefaultBlock
	}
	if config.Recovery.Start == "" {
		config.Recovery.Start = "-"
	}
	if config.Recovery.End == "" {
		config.Recovery.End = "+"
	}
	if config.Recovery.PageCount <= 0 {
		config.Recovery.PageCount = 100
	}
	if config.Trim != nil && config.Trim.PageCount <= 0 {
		return nil, fmt.Errorf("%w: trim page count must be positive", ErrInvalidOptions)
	}

	r := &ConsumerRuntime{
		client:   client,
		consumer: consumer,
		config:   config,
		metrics:  nopMetrics{},
		logger:   client.logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(
		zap.String("stream", config.Stream),
		zap.String("group", config.Group),
		zap.String("consumer", config.Name),
	)
	return r, nil
}

func (r *ConsumerRuntime) State() State {
	return State(r.state.Load())
}

func (r *ConsumerRuntime) setState(s State) {
	r.state.Store(int32(s))
	r.metrics.Phase(r.config.Stream, r.config.Group, r.config.Name, int(s))
}

// Run joins the group, recovers pending entries and listens until ctx is
// cancelled, which is not reported as an error.
func (r *ConsumerRuntime) Run(ctx context.Context) error {
	defer r.setState(StateStopped)

	err := r.run(ctx)
	if err != nil && ctx.Err() != nil {
		r.logger.Info("consumer stopped")
		return nil
	}
	if err != nil {
		r.logger.Error("consumer failed", zap.Stringer("state", r.State()), zap.Error(err))
	}
	return err
}

func (r *ConsumerRuntime) run(ctx context.Context) error {
	if err := r.Join(ctx); err != nil {
		return err
	}
	if _, err := r.Recover(ctx); err != nil {
		return err
	}
	return r.Listen(ctx)
}

// Join creates the group, and the stream with it, unless it already exists.
func (r *ConsumerRuntime) Join(ctx context.Context) error {
	r.setState(StateJoining)
	stream, group := r.config.Stream, r.config.Group

	exists, err := r.client.Exists(ctx, stream)
	if err != nil {
		return err
	}
	if !exists {
		r.logger.Info("stream does not exist, creating group and empty stream")
		return r.client.GroupCreate(ctx, stream, group)
	}

	groups, err := r.client.GroupInfo(ctx, stream)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.Name == group {
			r.logger.Info("joined existing consumer group")
			return nil
		}
	}

	r.logger.Info("consumer group does not exist, creating it")
	return r.client.GroupCreate(ctx, stream, group)
}

// Recover claims the group's pending entries a page at a time and
// processes them. Each page starts after the last ID of the previous page,
// so every pending entry is claimed at most once per call; a short page
// ends recovery. It returns the number of entries claimed.
func (r *ConsumerRuntime) Recover(ctx context.Context) (int, error) {
	r.setState(StateRecovering)
	rec := r.config.Recovery
	stream, group := r.config.Stream, r.config.Group

	opts := PendingOptions{Start: rec.Start, End: rec.End, Count: rec.PageCount}
	claimed := 0
	for {
		if err := ctx.Err(); err != nil {
			return claimed, err
		}

		pending, err := r.client.Pending(ctx, stream, group, opts)
		if err != nil {
			return claimed, err
		}
		if len(pending) == 0 {
			break
		}

		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}
		entries, err := r.client.Claim(ctx, stream, group, r.config.Name, ids, rec.MinIdle)
		if err != nil {
			return claimed, err
		}
		claimed += len(entries)
		r.metrics.Claimed(stream, group, len(entries))

		if err := r.dispatch(ctx, entries); err != nil {
			return claimed, err
		}

		if int64(len(pending)) < rec.PageCount {
			break
		}
		opts.Start = "(" + ids[len(ids)-1]
	}

	if claimed > 0 {
		r.logger.Info("recovered pending entries", zap.Int("claimed", claimed))
	} else {
		r.logger.Info("no pending entries to recover")
	}
	return claimed, nil
}

// Listen polls for new entries until ctx is cancelled or an error occurs.
func (r *ConsumerRuntime) Listen(ctx context.Context) error {
	r.setState(StateListening)
	r.logger.Info("listening for new entries")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.Poll(ctx); err != nil {
			return err
		}
	}
}

// Poll runs one listen iteration: a group read of new entries, processing
// and, when configured, trimming. It returns how many entries were read.
func (r *ConsumerRuntime) Poll(ctx context.Context) (int, error) {
	stream, group := r.config.Stream, r.config.Group

	entries, err := r.client.ReadGroup(ctx, stream, group, r.config.Name, r.config.Read, ">")
	if err != nil {
		return 0, err
	}
	if err := r.dispatch(ctx, entries); err != nil {
		return len(entries), err
	}

	if r.config.Trim != nil {
		n, err := r.client.TrimFromLastID(ctx, stream, group, *r.config.Trim)
		if err != nil {
			return len(entries), err
		}
		if n > 0 {
			r.metrics.Trimmed(stream, group, n)
			r.logger.Debug("trimmed stream", zap.Int64("deleted", n))
		}
	}
	return len(entries), nil
}

// dispatch processes entries in order and acknowledges each one its
// consumer accepted.
func (r *ConsumerRuntime) dispatch(ctx context.Context, entries []Entry) error {
	stream, group := r.config.Stream, r.config.Group

	for _, entry := range entries {
		record, err := r.client.codec.Decode(entry.Fields)
		if err != nil {
			r.logger.Error("cannot decode entry", zap.String("id", entry.ID), zap.Error(err))
			return fmt.Errorf("entry %s: %w", entry.ID, err)
		}

		ok, err := r.consumer.Process(ctx, Message{ID: entry.ID, Stream: stream, Record: record})
		if err != nil {
			r.metrics.Failed(stream, group)
			if !errors.Is(err, context.Canceled) {
				r.logger.Error("processing failed", zap.String("id", entry.ID), zap.Error(err))
			}
			return err
		}
		if !ok {
			r.metrics.Failed(stream, group)
			r.logger.Warn("entry not processed, left pending", zap.String("id", entry.ID))
			continue
		}
		r.metrics.Processed(stream, group)

		if err := r.client.Ack(ctx, stream, group, entry.ID); err != nil {
			r.logger.Error("acknowledge failed", zap.String("id", entry.ID), zap.Error(err))
			return err
		}
		r.metrics.Acked(stream, group)
	}
	return nil
}
