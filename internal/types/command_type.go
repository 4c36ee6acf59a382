package types

type CommandType int

const (
	ReadCommand CommandType = iota
	WriteCommand
	AdminCommand
)

var CommandTypes = map[string]CommandType{
	// Read Commands
	"HGET":     ReadCommand,
	"HGETALL":  ReadCommand,
	"LLEN":     ReadCommand,
	"TYPE":     ReadCommand,
	"EXISTS":   ReadCommand,
	"DBSIZE":   ReadCommand,
	"PING":     ReadCommand,
	"ECHO":     ReadCommand,
	"XLEN":     ReadCommand,
	"XRANGE":   ReadCommand,
	"XREAD":    ReadCommand,
	"XPENDING": ReadCommand,
	"XINFO":    ReadCommand,

	// Write Commands
	"HSET":       WriteCommand,
	"HDEL":       WriteCommand,
	"LPUSH":      WriteCommand,
	"RPUSH":      WriteCommand,
	"LPOP":       WriteCommand,
	"RPOP":       WriteCommand,
	"BLPOP":      WriteCommand,
	"BRPOP":      WriteCommand,
	"DEL":        WriteCommand,
	"XADD":       WriteCommand,
	"XREADGROUP": WriteCommand,
	"XACK":       WriteCommand,
	"XCLAIM":     WriteCommand,
	"XDEL":       WriteCommand,
	"XTRIM":      WriteCommand,
	"XGROUP":     WriteCommand,

	// Admin Commands
	"FLUSHALL": AdminCommand,
	"MULTI":    AdminCommand,
	"EXEC":     AdminCommand,
	"DISCARD":  AdminCommand,
	"WATCH":    AdminCommand,
	"UNWATCH":  AdminCommand,
	"AUTH":     AdminCommand,
	"CLIENT":   AdminCommand,
	"SELECT":   AdminCommand,
	"HELLO":    AdminCommand,
}

// blockingCommands may park the connection until data arrives.
var blockingCommands = map[string]bool{
	"BLPOP":      true,
	"BRPOP":      true,
	"XREAD":      true,
	"XREADGROUP": true,
}

func GetCommandType(cmd string) CommandType {
	if cmdType, exists := CommandTypes[cmd]; exists {
		return cmdType
	}
	return ReadCommand // default to read command for safety
}

// IsWriteCommand reports whether cmd mutates the keyspace and must be
// appended to the AOF.
func IsWriteCommand(cmd string) bool {
	t := GetCommandType(cmd)
	return t == WriteCommand || cmd == "FLUSHALL"
}

// IsBlocking reports whether cmd can block. XREAD and XREADGROUP only
// block when given the BLOCK option.
func IsBlocking(cmd string) bool {
	return blockingCommands[cmd]
}
