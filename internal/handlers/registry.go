package handlers

import (
	"time"

	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
)

type CommandHandler func(args []models.Value) models.Value

// Block is returned by a blocking handler that found no data. The server
// waits for the next keyspace change and runs the handler again with Args
// until data arrives or Timeout (0 waits forever) elapses.
type Block struct {
	Timeout time.Duration
	Args    []models.Value
}

// BlockingHandler returns the reply to send when the command does not wait,
// and a non-nil Block when it should.
type BlockingHandler func(args []models.Value) (models.Value, *Block)

type Registry struct {
	handlers       map[string]CommandHandler
	blocking       map[string]BlockingHandler
	streamHandlers *StreamHandlers
	hashHandlers   *HashHandlers
	listHandlers   *ListHandlers
	adminHandlers  *AdminHandlers
}

func NewRegistry(cache ports.Cache) *Registry {
	r := &Registry{
		handlers:       make(map[string]CommandHandler),
		blocking:       make(map[string]BlockingHandler),
		streamHandlers: NewStreamHandlers(cache),
		hashHandlers:   NewHashHandlers(cache),
		listHandlers:   NewListHandlers(cache),
		adminHandlers:  NewAdminHandlers(cache),
	}

	r.registerHandlers()
	return r
}

func (r *Registry) registerHandlers() {
	// Key Commands
	r.handlers["EXISTS"] = r.adminHandlers.HandleExists
	r.handlers["DEL"] = r.adminHandlers.HandleDel
	r.handlers["TYPE"] = r.adminHandlers.HandleType

	// Stream Commands
	r.handlers["XADD"] = r.streamHandlers.HandleXAdd
	r.handlers["XLEN"] = r.streamHandlers.HandleXLen
	r.handlers["XRANGE"] = r.streamHandlers.HandleXRange
	r.handlers["XACK"] = r.streamHandlers.HandleXAck
	r.handlers["XCLAIM"] = r.streamHandlers.HandleXClaim
	r.handlers["XPENDING"] = r.streamHandlers.HandleXPending
	r.handlers["XDEL"] = r.streamHandlers.HandleXDel
	r.handlers["XTRIM"] = r.streamHandlers.HandleXTrim
	r.handlers["XGROUP"] = r.streamHandlers.HandleXGroup
	r.handlers["XINFO"] = r.streamHandlers.HandleXInfo
	r.blocking["XREAD"] = r.streamHandlers.HandleXRead
	r.blocking["XREADGROUP"] = r.streamHandlers.HandleXReadGroup

	// Hash Commands
	r.handlers["HSET"] = r.hashHandlers.HandleHSet
	r.handlers["HGET"] = r.hashHandlers.HandleHGet
	r.handlers["HGETALL"] = r.hashHandlers.HandleHGetAll
	r.handlers["HDEL"] = r.hashHandlers.HandleHDel

	// List Commands
	r.handlers["LPUSH"] = r.listHandlers.HandleLPush
	r.handlers["RPUSH"] = r.listHandlers.HandleRPush
	r.handlers["LPOP"] = r.listHandlers.HandleLPop
	r.handlers["RPOP"] = r.listHandlers.HandleRPop
	r.handlers["LLEN"] = r.listHandlers.HandleLLen
	r.blocking["BLPOP"] = r.listHandlers.HandleBLPop
	r.blocking["BRPOP"] = r.listHandlers.HandleBRPop

	// Admin Commands
	r.handlers["PING"] = r.adminHandlers.HandlePing
	r.handlers["ECHO"] = r.adminHandlers.HandleEcho
	r.handlers["SELECT"] = r.adminHandlers.HandleSelect
	r.handlers["FLUSHALL"] = r.adminHandlers.HandleFlushAll
	r.handlers["DBSIZE"] = r.adminHandlers.HandleDBSize
}

func (r *Registry) GetHandler(cmd string) (CommandHandler, bool) {
	handler, exists := r.handlers[cmd]
	return handler, exists
}

func (r *Registry) GetBlockingHandler(cmd string) (BlockingHandler, bool) {
	handler, exists := r.blocking[cmd]
	return handler, exists
}

// Has reports whether cmd is served by the registry.
func (r *Registry) Has(cmd string) bool {
	_, blocking := r.blocking[cmd]
	_, plain := r.handlers[cmd]
	return blocking || plain
}

// Execute runs cmd without ever waiting. Blocking commands reply as if
// their timeout had already elapsed, which is how they behave inside
// MULTI.
func (r *Registry) Execute(cmd string, args []models.Value) (models.Value, bool) {
	if handler, ok := r.blocking[cmd]; ok {
		reply, _ := handler(args)
		return reply, true
	}
	if handler, ok := r.handlers[cmd]; ok {
		return handler(args), true
	}
	return models.Value{}, false
}
