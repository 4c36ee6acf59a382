package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1-0", "1-0", 0},
		{"1-0", "1-1", -1},
		{"2-0", "10-0", -1},
		{"10-0", "9-99", 1},
		{"5", "5-0", 0},
		{"abc", "abd", -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestToStreamInfo(t *testing.T) {
	reply := []interface{}{
		"length", int64(2),
		"radix-tree-keys", int64(1),
		"radix-tree-nodes", int64(2),
		"last-generated-id", "2-0",
		"groups", int64(1),
		"first-entry", []interface{}{"1-0", []interface{}{"a", "1"}},
		"last-entry", nil,
	}

	info, err := toStreamInfo(reply)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Length)
	assert.Equal(t, "2-0", info.LastGeneratedID)
	assert.Equal(t, &Entry{ID: "1-0", Fields: []string{"a", "1"}}, info.FirstEntry)
	assert.Nil(t, info.LastEntry)
}

func TestToPendingEntries(t *testing.T) {
	reply := []interface{}{
		[]interface{}{"1-0", "c1", int64(1500), int64(2)},
	}

	pending, err := toPendingEntries(reply)
	require.NoError(t, err)
	assert.Equal(t, []PendingEntry{{ID: "1-0", Consumer: "c1", Idle: 1500 * time.Millisecond, DeliveryCount: 2}}, pending)

	_, err = toPendingEntries([]interface{}{[]interface{}{"1-0"}})
	assert.Error(t, err)
}

func TestToEntries_SkipsNil(t *testing.T) {
	entries, err := toEntries([]interface{}{
		[]interface{}{"1-0", []interface{}{"a", "1"}},
		nil,
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOldestPending(t *testing.T) {
	id, ok, err := oldestPending([]interface{}{int64(0), nil, nil, nil})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)

	id, ok, err = oldestPending([]interface{}{int64(2), "3-0", "4-0", []interface{}{}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3-0", id)
}
