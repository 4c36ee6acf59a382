package handlers

import (
	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/util"
)

// HashHandlers serves the hash commands. Stream clients keep their
// per-group last acknowledged marker in a hash.
type HashHandlers struct {
	cache ports.Cache
}

func NewHashHandlers(cache ports.Cache) *HashHandlers {
	return &HashHandlers{cache: cache}
}

// HandleHSet handles HSET key field value [field value ...] and replies
// with the number of fields that did not exist before.
func (h *HashHandlers) HandleHSet(args []models.Value) models.Value {
	if len(args) < 3 || len(args)%2 != 1 {
		return util.WrongArgs("HSET")
	}

	key := args[0].Bulk
	added := 0
	for i := 1; i < len(args); i += 2 {
		created, err := h.cache.HSet(key, args[i].Bulk, args[i+1].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		if created {
			added++
		}
	}
	return models.Integer(added)
}

func (h *HashHandlers) HandleHGet(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 2); err != nil {
		return util.WrongArgs("HGET")
	}

	value, ok, err := h.cache.HGet(args[0].Bulk, args[1].Bulk)
	switch {
	case err != nil:
		return util.ToValue(err)
	case !ok:
		return models.Null()
	}
	return models.Bulk(value)
}

// HandleHGetAll replies with alternating fields and values.
func (h *HashHandlers) HandleHGetAll(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("HGETALL")
	}

	pairs, err := h.cache.HGetAll(args[0].Bulk)
	if err != nil {
		return util.ToValue(err)
	}
	return models.BulkArray(pairs)
}

func (h *HashHandlers) HandleHDel(args []models.Value) models.Value {
	if err := util.ValidateMinArgs(args, 2); err != nil {
		return util.WrongArgs("HDEL")
	}

	deleted, err := h.cache.HDel(args[0].Bulk, bulks(args[1:])...)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(deleted)
}
