package cache

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

func newTestCache() (*MemoryCache, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewMemoryCache(WithClock(clock)), clock
}

func id(ms, seq uint64) models.StreamID {
	return models.StreamID{Ms: ms, Seq: seq}
}

func TestXAdd(t *testing.T) {
	c, clock := newTestCache()
	now := uint64(clock.Now().UnixMilli())

	t.Run("GeneratedIDsAreMonotonic", func(t *testing.T) {
		first, err := c.XAdd("s", "*", []string{"a", "1"}, -1, false)
		require.NoError(t, err)
		second, err := c.XAdd("s", "*", []string{"a", "2"}, -1, false)
		require.NoError(t, err)

		assert.Equal(t, id(now, 0).String(), first)
		assert.Equal(t, id(now, 1).String(), second)
	})

	t.Run("ExplicitIDMustGrow", func(t *testing.T) {
		_, err := c.XAdd("s", id(now, 1).String(), []string{"a", "3"}, -1, false)
		assert.ErrorIs(t, err, ErrIDTooSmall)

		_, err = c.XAdd("other", "0-0", []string{"a", "3"}, -1, false)
		assert.ErrorIs(t, err, ErrIDZero)

		_, err = c.XAdd("other", "bogus", []string{"a", "3"}, -1, false)
		assert.ErrorIs(t, err, models.ErrInvalidStreamID)
	})

	t.Run("PartialAutoSequence", func(t *testing.T) {
		got, err := c.XAdd("seq", "5-*", []string{"a", "1"}, -1, false)
		require.NoError(t, err)
		assert.Equal(t, "5-0", got)

		got, err = c.XAdd("seq", "5-*", []string{"a", "1"}, -1, false)
		require.NoError(t, err)
		assert.Equal(t, "5-1", got)
	})

	t.Run("NoMkStream", func(t *testing.T) {
		got, err := c.XAdd("missing", "*", []string{"a", "1"}, -1, true)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.False(t, c.Exists("missing"))
	})

	t.Run("MaxLen", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			_, err := c.XAdd("capped", id(uint64(i), 0).String(), []string{"n", "x"}, 3, false)
			require.NoError(t, err)
		}
		entries, err := c.XRange("capped", models.MinStreamID, models.MaxStreamID, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, id(3, 0), entries[0].ID)
	})

	t.Run("WrongType", func(t *testing.T) {
		_, err := c.HSet("h", "f", "v")
		require.NoError(t, err)
		_, err = c.XAdd("h", "*", []string{"a", "1"}, -1, false)
		assert.ErrorIs(t, err, ErrWrongType)
	})
}

func TestXRangeAndXRead(t *testing.T) {
	c, _ := newTestCache()
	for i := 1; i <= 4; i++ {
		_, err := c.XAdd("s", id(uint64(i), 0).String(), []string{"i", "v"}, -1, false)
		require.NoError(t, err)
	}

	entries, err := c.XRange("s", id(2, 0), id(3, 0), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id(2, 0), entries[0].ID)
	assert.Equal(t, id(3, 0), entries[1].ID)

	entries, err = c.XRange("s", models.MinStreamID, models.MaxStreamID, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = c.XRead("s", id(3, 0), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id(4, 0), entries[0].ID)

	entries, err = c.XRange("missing", models.MinStreamID, models.MaxStreamID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConsumerGroups(t *testing.T) {
	c, clock := newTestCache()

	t.Run("CreateRequiresKeyUnlessMkStream", func(t *testing.T) {
		assert.ErrorIs(t, c.XGroupCreate("s", "g", "$", false), ErrGroupNeedsKey)
		require.NoError(t, c.XGroupCreate("s", "g", "$", true))
		assert.ErrorIs(t, c.XGroupCreate("s", "g", "$", true), ErrBusyGroup)
	})

	for i := 1; i <= 3; i++ {
		_, err := c.XAdd("s", id(uint64(i), 0).String(), []string{"i", "v"}, -1, false)
		require.NoError(t, err)
	}

	t.Run("NewEntriesGoToPending", func(t *testing.T) {
		entries, err := c.XReadGroup("s", "g", "c1", ">", 2, false)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		summary, err := c.XPendingSummary("s", "g")
		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.Count)
		assert.Equal(t, "1-0", summary.Lowest)
		assert.Equal(t, "2-0", summary.Highest)
		assert.Equal(t, int64(2), summary.Consumers["c1"])
	})

	t.Run("HistoryReplaysOwnPending", func(t *testing.T) {
		entries, err := c.XReadGroup("s", "g", "c1", "0", 10, false)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		entries, err = c.XReadGroup("s", "g", "c2", "0", 10, false)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("ClaimHonoursMinIdle", func(t *testing.T) {
		claimed, err := c.XClaim("s", "g", "c2", time.Minute, []models.StreamID{id(1, 0)})
		require.NoError(t, err)
		assert.Empty(t, claimed)

		clock.Advance(2 * time.Minute)
		claimed, err = c.XClaim("s", "g", "c2", time.Minute, []models.StreamID{id(1, 0)})
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		pending, err := c.XPending("s", "g", models.MinStreamID, models.MaxStreamID, 10, 0, "c2")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "1-0", pending[0].ID)
		assert.Equal(t, 3, pending[0].Deliveries)
	})

	t.Run("PendingIdleFilter", func(t *testing.T) {
		clock.Advance(time.Second)
		pending, err := c.XPending("s", "g", models.MinStreamID, models.MaxStreamID, 10, 2*time.Minute, "")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "2-0", pending[0].ID)
	})

	t.Run("ClaimDropsDeletedEntries", func(t *testing.T) {
		deleted, err := c.XDel("s", id(2, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		claimed, err := c.XClaim("s", "g", "c2", 0, []models.StreamID{id(2, 0)})
		require.NoError(t, err)
		assert.Empty(t, claimed)

		summary, err := c.XPendingSummary("s", "g")
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.Count)
	})

	t.Run("Ack", func(t *testing.T) {
		acked, err := c.XAck("s", "g", id(1, 0), id(9, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, acked)

		acked, err = c.XAck("s", "nogroup", id(1, 0))
		require.NoError(t, err)
		assert.Zero(t, acked)
	})

	t.Run("Info", func(t *testing.T) {
		groups, err := c.XInfoGroups("s")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "2-0", groups[0].LastDeliveredID)
		assert.Equal(t, int64(2), groups[0].Consumers)

		info, err := c.XInfoStream("s")
		require.NoError(t, err)
		assert.Equal(t, int64(2), info.Length)
		assert.Equal(t, "3-0", info.LastGeneratedID)
		require.NotNil(t, info.FirstEntry)
		assert.Equal(t, id(1, 0), info.FirstEntry.ID)

		_, err = c.XInfoStream("missing")
		assert.ErrorIs(t, err, ErrNoSuchKey)
	})

	t.Run("MissingGroup", func(t *testing.T) {
		_, err := c.XReadGroup("s", "nope", "c1", ">", 1, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOGROUP")
	})

	t.Run("DelConsumerDropsItsPending", func(t *testing.T) {
		_, err := c.XReadGroup("s", "g", "c3", ">", 10, false)
		require.NoError(t, err)

		owned, err := c.XGroupDelConsumer("s", "g", "c3")
		require.NoError(t, err)
		assert.Equal(t, 1, owned)
	})

	t.Run("Destroy", func(t *testing.T) {
		ok, err := c.XGroupDestroy("s", "g")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.XGroupDestroy("s", "g")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGroupCreateAtZeroSeesHistory(t *testing.T) {
	c, _ := newTestCache()
	_, err := c.XAdd("s", "1-0", []string{"a", "1"}, -1, false)
	require.NoError(t, err)

	require.NoError(t, c.XGroupCreate("s", "late", "$", false))
	require.NoError(t, c.XGroupCreate("s", "early", "0", false))

	entries, err := c.XReadGroup("s", "late", "c", ">", 10, false)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = c.XReadGroup("s", "early", "c", ">", 10, true)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	summary, err := c.XPendingSummary("s", "early")
	require.NoError(t, err)
	assert.Zero(t, summary.Count)
}
