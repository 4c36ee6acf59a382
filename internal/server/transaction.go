package server

import "github.com/genc-murat/crystalstream/internal/core/models"

func (s *Server) handleMulti(sess *session) models.Value {
	if sess.tx.InMulti {
		return models.Error("ERR MULTI calls can not be nested")
	}
	sess.tx.InMulti = true
	return models.OK()
}

func (s *Server) handleDiscard(sess *session) models.Value {
	if !sess.tx.InMulti {
		return models.Error("ERR DISCARD without MULTI")
	}
	sess.tx.Reset()
	return models.OK()
}

// handleWatch records the current version of each key. EXEC fails if any
// of them changes before it runs.
func (s *Server) handleWatch(sess *session, args []models.Value) models.Value {
	if sess.tx.InMulti {
		return models.Error("ERR WATCH inside MULTI is not allowed")
	}
	if len(args) == 0 {
		return models.Error("ERR wrong number of arguments for 'watch' command")
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()
	for _, arg := range args {
		if _, watched := sess.tx.Watches[arg.Bulk]; !watched {
			sess.tx.Watches[arg.Bulk] = s.cache.Version(arg.Bulk)
		}
	}
	return models.OK()
}

func (s *Server) queue(sess *session, cmd string, value models.Value) models.Value {
	if !s.registry.Has(cmd) {
		sess.tx.Aborted = true
		return unknownCommand(cmd, value.Array[1:])
	}

	sess.tx.Commands = append(sess.tx.Commands, models.QueuedCommand{
		Name:  cmd,
		Args:  value.Array[1:],
		Value: value,
	})
	return models.Status("QUEUED")
}

// handleExec runs the queued commands atomically. A changed watched key
// aborts the transaction with a null reply.
func (s *Server) handleExec(sess *session) models.Value {
	if !sess.tx.InMulti {
		return models.Error("ERR EXEC without MULTI")
	}
	defer sess.tx.Reset()

	if sess.tx.Aborted {
		return models.Error("EXECABORT Transaction discarded because of previous errors.")
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	for key, version := range sess.tx.Watches {
		if s.cache.Version(key) != version {
			return models.NullArray()
		}
	}

	results := make([]models.Value, len(sess.tx.Commands))
	for i, command := range sess.tx.Commands {
		results[i] = s.executor.Execute(command.Name, command.Value)
	}
	return models.Array(results...)
}
