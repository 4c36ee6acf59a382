package client

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	m := NewManager(nil)
	server, peer := net.Pipe()
	defer peer.Close()

	client := m.AddClient(server)
	assert.Equal(t, int64(1), client.ID)
	assert.Equal(t, 1, m.Count())

	t.Run("Name", func(t *testing.T) {
		require.NoError(t, m.SetClientName(server, "consumer-1"))
		name, err := m.ClientName(server)
		require.NoError(t, err)
		assert.Equal(t, "consumer-1", name)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, m.UpdateLastCommand(server, "XREADGROUP"))
		list := m.List()
		assert.True(t, strings.HasPrefix(list, "id=1 "))
		assert.Contains(t, list, "name=consumer-1")
		assert.Contains(t, list, "cmd=xreadgroup")
	})

	t.Run("Remove", func(t *testing.T) {
		m.RemoveClient(server)
		assert.Zero(t, m.Count())
		_, err := m.ClientName(server)
		assert.ErrorIs(t, err, ErrClientNotFound)
	})
}

func TestManager_CloseAllClients(t *testing.T) {
	m := NewManager(nil)
	server, peer := net.Pipe()
	m.AddClient(server)

	m.CloseAllClients()

	_, err := peer.Read(make([]byte, 1))
	assert.Error(t, err)
}
