package models

// Transaction is the MULTI/WATCH state of a single connection.
type Transaction struct {
	Commands []QueuedCommand
	InMulti  bool
	// Watches maps a watched key to its version at WATCH time.
	Watches map[string]int64
	// Aborted is set when a command failed to queue; EXEC then discards.
	Aborted bool
}

// QueuedCommand is a command held between MULTI and EXEC.
type QueuedCommand struct {
	Name  string
	Args  []Value
	Value Value
}

func NewTransaction() *Transaction {
	return &Transaction{Watches: make(map[string]int64)}
}

// Reset clears queued commands and watches, as EXEC and DISCARD do.
func (t *Transaction) Reset() {
	t.Commands = nil
	t.InMulti = false
	t.Aborted = false
	t.Watches = make(map[string]int64)
}
