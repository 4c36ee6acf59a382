package handlers

import (
	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/util"
)

type AdminHandlers struct {
	cache ports.Cache
}

func NewAdminHandlers(cache ports.Cache) *AdminHandlers {
	return &AdminHandlers{cache: cache}
}

func (h *AdminHandlers) HandlePing(args []models.Value) models.Value {
	switch len(args) {
	case 0:
		return models.Status("PONG")
	case 1:
		return models.Bulk(args[0].Bulk)
	}
	return util.WrongArgs("PING")
}

func (h *AdminHandlers) HandleEcho(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("ECHO")
	}
	return models.Bulk(args[0].Bulk)
}

// HandleSelect accepts only database 0; the store has a single keyspace.
func (h *AdminHandlers) HandleSelect(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("SELECT")
	}
	if args[0].Bulk != "0" {
		return models.Error("ERR DB index is out of range")
	}
	return models.OK()
}

func (h *AdminHandlers) HandleExists(args []models.Value) models.Value {
	if err := util.ValidateKeyArg(args); err != nil {
		return util.WrongArgs("EXISTS")
	}

	count := 0
	for _, key := range args {
		if h.cache.Exists(key.Bulk) {
			count++
		}
	}
	return models.Integer(count)
}

func (h *AdminHandlers) HandleDel(args []models.Value) models.Value {
	if err := util.ValidateKeyArg(args); err != nil {
		return util.WrongArgs("DEL")
	}

	deleted := 0
	for _, key := range args {
		if h.cache.Del(key.Bulk) {
			deleted++
		}
	}
	return models.Integer(deleted)
}

func (h *AdminHandlers) HandleType(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 1); err != nil {
		return util.WrongArgs("TYPE")
	}
	return models.Status(h.cache.Type(args[0].Bulk))
}

func (h *AdminHandlers) HandleFlushAll(args []models.Value) models.Value {
	if len(args) > 1 {
		return util.WrongArgs("FLUSHALL")
	}

	h.cache.FlushAll()
	return models.OK()
}

func (h *AdminHandlers) HandleDBSize(args []models.Value) models.Value {
	if err := util.ValidateArgs(args, 0); err != nil {
		return util.ToValue(err)
	}

	return models.Integer(h.cache.DBSize())
}
