package cache

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
)

var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

const (
	typeNone   = "none"
	typeStream = "stream"
	typeHash   = "hash"
	typeList   = "list"
)

var _ ports.Cache = (*MemoryCache)(nil)

// MemoryCache is the store keyspace. A single RWMutex guards all key
// families so multi-family commands (DEL, FLUSHALL) stay atomic.
type MemoryCache struct {
	mu          sync.RWMutex
	streams     map[string]*models.Stream
	hsets       map[string]map[string]string
	lists       map[string][]string
	keyVersions map[string]int64
	changed     chan struct{}
	clock       clockwork.Clock
}

type Option func(*MemoryCache)

// WithClock sets the clock used for pending idle times and generated IDs.
func WithClock(clock clockwork.Clock) Option {
	return func(c *MemoryCache) {
		c.clock = clock
	}
}

func NewMemoryCache(opts ...Option) *MemoryCache {
	mc := &MemoryCache{
		streams:     make(map[string]*models.Stream),
		hsets:       make(map[string]map[string]string),
		lists:       make(map[string][]string),
		keyVersions: make(map[string]int64),
		changed:     make(chan struct{}),
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

// touch records a modification of key. Callers hold c.mu.
func (c *MemoryCache) touch(key string) {
	c.keyVersions[key]++
	close(c.changed)
	c.changed = make(chan struct{})
}

// keyType reports the family of key. Callers hold c.mu.
func (c *MemoryCache) keyType(key string) string {
	if _, ok := c.streams[key]; ok {
		return typeStream
	}
	if _, ok := c.hsets[key]; ok {
		return typeHash
	}
	if _, ok := c.lists[key]; ok {
		return typeList
	}
	return typeNone
}

// checkType fails when key exists with a family other than want.
func (c *MemoryCache) checkType(key, want string) error {
	if t := c.keyType(key); t != typeNone && t != want {
		return ErrWrongType
	}
	return nil
}

// Changed returns a channel that is closed on the next keyspace write.
func (c *MemoryCache) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

func (c *MemoryCache) Version(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keyVersions[key]
}

func (c *MemoryCache) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keyType(key) != typeNone
}

func (c *MemoryCache) Type(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keyType(key)
}

func (c *MemoryCache) Del(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keyType(key) == typeNone {
		return false
	}
	delete(c.streams, key)
	delete(c.hsets, key)
	delete(c.lists, key)
	c.touch(key)
	return true
}

func (c *MemoryCache) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.streams {
		c.keyVersions[key]++
	}
	for key := range c.hsets {
		c.keyVersions[key]++
	}
	for key := range c.lists {
		c.keyVersions[key]++
	}

	c.streams = make(map[string]*models.Stream)
	c.hsets = make(map[string]map[string]string)
	c.lists = make(map[string][]string)
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *MemoryCache) DBSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.streams) + len(c.hsets) + len(c.lists)
}
