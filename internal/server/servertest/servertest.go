// Package servertest runs an in-process stream store for tests.
package servertest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/genc-murat/crystalstream/internal/cache"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/metrics"
	"github.com/genc-murat/crystalstream/internal/server"
	"github.com/genc-murat/crystalstream/internal/storage"
)

// Store is a running store listening on a loopback port.
type Store struct {
	Addr     string
	Password string
	Server   *server.Server
	Cache    *cache.MemoryCache
}

type options struct {
	clock    clockwork.Clock
	password string
	storage  ports.Storage
}

type Option func(*options)

// WithClock drives entry IDs and idle times from clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

// WithStorage persists writes to s and replays it on start.
func WithStorage(s ports.Storage) Option {
	return func(o *options) { o.storage = s }
}

// Start runs a store until the test ends.
func Start(t testing.TB, opts ...Option) *Store {
	t.Helper()

	o := options{clock: clockwork.NewRealClock(), storage: storage.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := cache.NewMemoryCache(cache.WithClock(o.clock))
	srv := server.NewServer(c, o.storage, metrics.NewMetrics(nil), server.ServerConfig{
		Password: o.password,
	}, zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))

	go func() { _ = srv.Serve(listener) }()

	s := &Store{
		Addr:     listener.Addr().String(),
		Password: o.password,
		Server:   srv,
		Cache:    c,
	}
	t.Cleanup(s.Close)
	return s
}

// Close shuts the store down. It is safe to call more than once.
func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Server.Shutdown(ctx)
}

// Options returns go-redis options for a client of the store.
func (s *Store) Options() *redis.Options {
	return &redis.Options{
		Addr:            s.Addr,
		Password:        s.Password,
		ReadTimeout:     -1,
		Protocol:        2,
		DisableIdentity: true,
	}
}

// NewClient returns a client closed when the test ends.
func (s *Store) NewClient(t testing.TB) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(s.Options())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
