package server

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/handlers"
	"github.com/genc-murat/crystalstream/internal/metrics"
	"github.com/genc-murat/crystalstream/internal/types"
)

// CommandExecutor runs a single command against the registry, records its
// metrics and appends successful writes to storage. Callers serialize
// access; the executor itself holds no lock.
type CommandExecutor struct {
	registry *handlers.Registry
	storage  ports.Storage
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewCommandExecutor(registry *handlers.Registry, storage ports.Storage, metrics *metrics.Metrics, logger *zap.Logger) *CommandExecutor {
	return &CommandExecutor{
		registry: registry,
		storage:  storage,
		metrics:  metrics,
		logger:   logger,
	}
}

// Execute runs command without waiting, even when it is a blocking command.
func (e *CommandExecutor) Execute(cmd string, command models.Value) (result models.Value) {
	startTime := time.Now()
	defer func() {
		e.metrics.AddCommandExecution(cmd, time.Since(startTime), result.IsError())
	}()
	defer e.recover(cmd, &result)

	result, ok := e.registry.Execute(cmd, command.Array[1:])
	if !ok {
		return unknownCommand(cmd, command.Array[1:])
	}

	e.persist(cmd, command, result)
	return result
}

// ExecuteBlocking runs handler once. A non-nil Block means nothing was
// available and the caller should wait before trying again.
func (e *CommandExecutor) ExecuteBlocking(cmd string, command models.Value, handler handlers.BlockingHandler) (result models.Value, block *handlers.Block) {
	startTime := time.Now()
	defer func() {
		if block == nil {
			e.metrics.AddCommandExecution(cmd, time.Since(startTime), result.IsError())
		}
	}()
	defer e.recover(cmd, &result)

	result, block = handler(command.Array[1:])
	if block == nil {
		e.persist(cmd, command, result)
	}
	return result, block
}

// Replay applies a command read back from storage.
func (e *CommandExecutor) Replay(command models.Value) {
	if command.Type != "array" || len(command.Array) == 0 {
		return
	}
	cmd := strings.ToUpper(command.Array[0].Bulk)

	var result models.Value
	defer e.recover(cmd, &result)

	result, ok := e.registry.Execute(cmd, command.Array[1:])
	if !ok {
		e.logger.Warn("unknown command in AOF", zap.String("command", cmd))
		return
	}
	if result.IsError() {
		e.logger.Warn("AOF command failed on replay", zap.String("command", cmd), zap.String("error", result.Str))
	}
}

func (e *CommandExecutor) recover(cmd string, result *models.Value) {
	if r := recover(); r != nil {
		e.logger.Error("recovered from panic in command execution",
			zap.String("command", cmd), zap.Any("panic", r))
		*result = models.Error("ERR internal error")
	}
}

func (e *CommandExecutor) persist(cmd string, command models.Value, result models.Value) {
	if !types.IsWriteCommand(cmd) || result.IsError() {
		return
	}
	// Pops and group reads that found nothing left the keyspace as is.
	if result.Type == "nullarray" || result.Type == "null" {
		return
	}
	if cmd == "XADD" {
		command = pinEntryID(command, result.Bulk)
	}

	if err := e.storage.Write(command); err != nil {
		e.logger.Error("failed to write to AOF", zap.String("command", cmd), zap.Error(err))
	}
}

// pinEntryID replaces the ID argument of an XADD with the ID the store
// generated, so replay rebuilds the same entry.
func pinEntryID(command models.Value, id string) models.Value {
	args := command.Array
	i := 2
options:
	for i < len(args) {
		switch strings.ToUpper(args[i].Bulk) {
		case "NOMKSTREAM":
			i++
		case "MAXLEN":
			i++
			if i < len(args) && (args[i].Bulk == "~" || args[i].Bulk == "=") {
				i++
			}
			i++
		default:
			break options
		}
	}
	if i >= len(args) {
		return command
	}

	pinned := make([]models.Value, len(args))
	copy(pinned, args)
	pinned[i] = models.Bulk(id)
	return models.Array(pinned...)
}

func unknownCommand(cmd string, args []models.Value) models.Value {
	var sb strings.Builder
	for _, arg := range args {
		sb.WriteString("'")
		sb.WriteString(arg.Bulk)
		sb.WriteString("' ")
	}
	return models.Errorf("ERR unknown command '%s', with args beginning with: %s", strings.ToLower(cmd), sb.String())
}
