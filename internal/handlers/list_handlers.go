package handlers

import (
	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/util"
)

type ListHandlers struct {
	cache ports.Cache
}

func NewListHandlers(cache ports.Cache) *ListHandlers {
	return &ListHandlers{cache: cache}
}

func (h *ListHandlers) HandleLPush(args []models.Value) models.Value {
	if len(args) < 2 {
		return util.WrongArgs("LPUSH")
	}

	length, err := h.cache.LPush(args[0].Bulk, bulks(args[1:])...)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(length)
}

func (h *ListHandlers) HandleRPush(args []models.Value) models.Value {
	if len(args) < 2 {
		return util.WrongArgs("RPUSH")
	}

	length, err := h.cache.RPush(args[0].Bulk, bulks(args[1:])...)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(length)
}

func (h *ListHandlers) HandleLPop(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("LPOP")
	}
	return popValue(h.cache.LPop(args[0].Bulk))
}

func (h *ListHandlers) HandleRPop(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("RPOP")
	}
	return popValue(h.cache.RPop(args[0].Bulk))
}

func popValue(value string, ok bool, err error) models.Value {
	if err != nil {
		return util.ToValue(err)
	}
	if !ok {
		return models.Null()
	}
	return models.Bulk(value)
}

func (h *ListHandlers) HandleLLen(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("LLEN")
	}

	length, err := h.cache.LLen(args[0].Bulk)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(length)
}

// HandleBLPop handles BLPOP key [key ...] timeout.
func (h *ListHandlers) HandleBLPop(args []models.Value) (models.Value, *Block) {
	return h.blockingPop("BLPOP", args, h.cache.LPop)
}

// HandleBRPop handles BRPOP key [key ...] timeout.
func (h *ListHandlers) HandleBRPop(args []models.Value) (models.Value, *Block) {
	return h.blockingPop("BRPOP", args, h.cache.RPop)
}

// blockingPop pops from the first non-empty key, in argument order, and
// replies with the key and the value.
func (h *ListHandlers) blockingPop(cmd string, args []models.Value, pop func(string) (string, bool, error)) (models.Value, *Block) {
	if len(args) < 2 {
		return util.WrongArgs(cmd), nil
	}

	timeout, err := util.ParseSeconds(args[len(args)-1])
	if err != nil {
		return util.ToValue(err), nil
	}

	for _, key := range args[:len(args)-1] {
		value, ok, err := pop(key.Bulk)
		if err != nil {
			return util.ToValue(err), nil
		}
		if ok {
			return models.Array(models.Bulk(key.Bulk), models.Bulk(value)), nil
		}
	}

	return models.NullArray(), &Block{Timeout: timeout, Args: args}
}
