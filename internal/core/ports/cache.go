package ports

import (
	"time"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

// Cache is the keyspace served by the store: streams with consumer groups,
// hashes and lists. Every mutating call bumps the key version and wakes
// blocked readers.
type Cache interface {
	Exists(key string) bool
	Del(key string) bool
	Type(key string) string
	Version(key string) int64
	Changed() <-chan struct{}
	FlushAll()
	DBSize() int

	HSet(hash string, field string, value string) (bool, error)
	HGet(hash string, field string) (string, bool, error)
	HGetAll(hash string) ([]string, error)
	HDel(hash string, fields ...string) (int, error)

	LPush(key string, values ...string) (int, error)
	RPush(key string, values ...string) (int, error)
	LPop(key string) (string, bool, error)
	RPop(key string) (string, bool, error)
	LLen(key string) (int, error)

	XAdd(key string, id string, fields []string, maxLen int, noMkStream bool) (string, error)
	XLen(key string) (int, error)
	XRange(key string, start, end models.StreamID, count int) ([]models.StreamEntry, error)
	XLastID(key string) (models.StreamID, error)
	XRead(key string, after models.StreamID, count int) ([]models.StreamEntry, error)
	XReadGroup(key, group, consumer, id string, count int, noAck bool) ([]models.StreamEntry, error)
	XAck(key, group string, ids ...models.StreamID) (int, error)
	XClaim(key, group, consumer string, minIdle time.Duration, ids []models.StreamID) ([]models.StreamEntry, error)
	XPendingSummary(key, group string) (models.PendingSummary, error)
	XPending(key, group string, start, end models.StreamID, count int, minIdle time.Duration, consumer string) ([]models.PendingDetail, error)
	XDel(key string, ids ...models.StreamID) (int, error)
	XTrim(key string, maxLen int) (int, error)
	XGroupCreate(key, group, id string, mkStream bool) error
	XGroupDestroy(key, group string) (bool, error)
	XGroupCreateConsumer(key, group, consumer string) (bool, error)
	XGroupDelConsumer(key, group, consumer string) (int, error)
	XInfoStream(key string) (models.StreamInfo, error)
	XInfoGroups(key string) ([]models.StreamGroup, error)
	XInfoConsumers(key, group string) ([]models.StreamConsumerInfo, error)
}
