package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCommandType(t *testing.T) {
	tests := []struct {
		cmd  string
		want CommandType
	}{
		{"XADD", WriteCommand},
		{"XREADGROUP", WriteCommand},
		{"XRANGE", ReadCommand},
		{"EXEC", AdminCommand},
		{"UNKNOWN", ReadCommand},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCommandType(tt.cmd))
		})
	}
}

func TestIsWriteCommand(t *testing.T) {
	assert.True(t, IsWriteCommand("XACK"))
	assert.True(t, IsWriteCommand("FLUSHALL"))
	assert.False(t, IsWriteCommand("XPENDING"))
	assert.False(t, IsWriteCommand("MULTI"))
}

func TestIsBlocking(t *testing.T) {
	assert.True(t, IsBlocking("BRPOP"))
	assert.True(t, IsBlocking("XREADGROUP"))
	assert.False(t, IsBlocking("XADD"))
}
