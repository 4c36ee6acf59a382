package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

func TestKeyAndAdminCommands(t *testing.T) {
	r, _ := newTestRegistry()

	tests := []struct {
		name string
		args []string
		want models.Value
	}{
		{"ping", []string{"PING"}, models.Status("PONG")},
		{"ping message", []string{"PING", "hi"}, models.Bulk("hi")},
		{"select 0", []string{"SELECT", "0"}, models.OK()},
		{"select 1", []string{"SELECT", "1"}, models.Error("ERR DB index is out of range")},
		{"hset", []string{"HSET", "h", "f1", "v1", "f2", "v2"}, models.Integer(2)},
		{"hset existing", []string{"HSET", "h", "f1", "v3"}, models.Integer(0)},
		{"hget", []string{"HGET", "h", "f1"}, models.Bulk("v3")},
		{"hget missing", []string{"HGET", "h", "nope"}, models.Null()},
		{"hgetall", []string{"HGETALL", "h"}, models.BulkArray([]string{"f1", "v3", "f2", "v2"})},
		{"type hash", []string{"TYPE", "h"}, models.Status("hash")},
		{"wrong type", []string{"XLEN", "h"}, models.Error("WRONGTYPE Operation against a key holding the wrong kind of value")},
		{"rpush", []string{"RPUSH", "l", "a", "b"}, models.Integer(2)},
		{"lpop", []string{"LPOP", "l"}, models.Bulk("a")},
		{"llen", []string{"LLEN", "l"}, models.Integer(1)},
		{"exists", []string{"EXISTS", "h", "l", "missing"}, models.Integer(2)},
		{"hdel", []string{"HDEL", "h", "f1"}, models.Integer(1)},
		{"dbsize", []string{"DBSIZE"}, models.Integer(2)},
		{"del", []string{"DEL", "h", "missing"}, models.Integer(1)},
		{"flushall", []string{"FLUSHALL"}, models.OK()},
		{"empty", []string{"DBSIZE"}, models.Integer(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, r, tt.args...))
		})
	}
}
