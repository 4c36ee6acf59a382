// Package queue is a FIFO work queue on a store list. Producers push at
// one end and workers pop from the other, blocking until an element
// arrives.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	// Name is the list key.
	Name   string
	Logger *zap.Logger
}

type PopOptions struct {
	// Timeout bounds the wait. The store counts whole seconds, so anything
	// below one second waits one second.
	Timeout time.Duration
	// WaitIndefinitely ignores Timeout and waits until an element arrives.
	WaitIndefinitely bool
}

// Element is a popped value and the queue it came from.
type Element struct {
	Queue string
	Value string
}

type Queue struct {
	rdb    redis.UniversalClient
	name   string
	logger *zap.Logger
}

func New(rdb redis.UniversalClient, opts Options) (*Queue, error) {
	if opts.Name == "" {
		return nil, errors.New("queue: name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{rdb: rdb, name: opts.Name, logger: logger.With(zap.String("queue", opts.Name))}, nil
}

func (q *Queue) Name() string {
	return q.name
}

// LeftPush pushes elements at the head and returns the new length.
func (q *Queue) LeftPush(ctx context.Context, elements ...interface{}) (int64, error) {
	return q.rdb.LPush(ctx, q.name, elements...).Result()
}

// RightPush pushes elements at the tail and returns the new length.
func (q *Queue) RightPush(ctx context.Context, elements ...interface{}) (int64, error) {
	return q.rdb.RPush(ctx, q.name, elements...).Result()
}

// BlockingLeftPop pops the head element. It returns nil when the timeout
// elapses first.
func (q *Queue) BlockingLeftPop(ctx context.Context, opts PopOptions) (*Element, error) {
	return q.pop(ctx, q.rdb.BLPop, opts)
}

// BlockingRightPop pops the tail element. It returns nil when the timeout
// elapses first.
func (q *Queue) BlockingRightPop(ctx context.Context, opts PopOptions) (*Element, error) {
	return q.pop(ctx, q.rdb.BRPop, opts)
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

type popFunc func(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd

func (q *Queue) pop(ctx context.Context, pop popFunc, opts PopOptions) (*Element, error) {
	timeout := opts.Timeout
	if opts.WaitIndefinitely {
		timeout = 0
	} else if timeout < time.Second {
		timeout = time.Second
	}

	reply, err := pop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		q.logger.Debug("pop timed out", zap.Duration("timeout", timeout))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(reply) != 2 {
		return nil, errors.New("queue: unexpected pop reply")
	}
	return &Element{Queue: reply[0], Value: reply[1]}, nil
}
