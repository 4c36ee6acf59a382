package client

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrClientNotFound = errors.New("client not found")

// Client represents a connected client.
type Client struct {
	ID          int64     // Unique client ID.
	Addr        string    // Client's network address.
	CreateTime  time.Time // Time when the client connected.
	LastCmd     time.Time // Time of the last command received from the client.
	LastCmdName string    // Name of the last command, reported by CLIENT LIST.
	Name        string    // Client name (set by CLIENT SETNAME).
	conn        net.Conn
	mu          sync.RWMutex
}

// Manager manages connected clients.
type Manager struct {
	clients map[int64]*Client
	byConn  sync.Map // net.Conn -> *Client
	nextID  int64
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a new client manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		clients: make(map[int64]*Client),
		logger:  logger,
	}
}

// AddClient creates a new client, registers it with the manager, and returns it.
func (cm *Manager) AddClient(conn net.Conn) *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	client := &Client{
		ID:         atomic.AddInt64(&cm.nextID, 1),
		Addr:       conn.RemoteAddr().String(),
		CreateTime: now,
		LastCmd:    now,
		conn:       conn,
	}

	cm.clients[client.ID] = client
	cm.byConn.Store(conn, client)
	cm.logger.Debug("client connected", zap.Int64("id", client.ID), zap.String("addr", client.Addr))
	return client
}

// GetClient retrieves a client based on its network connection.
func (cm *Manager) GetClient(conn net.Conn) (*Client, bool) {
	value, ok := cm.byConn.Load(conn)
	if !ok {
		return nil, false
	}
	client, ok := value.(*Client)
	return client, ok
}

// RemoveClient removes a client from the manager.
// It does not close the network connection. The caller is responsible for that.
func (cm *Manager) RemoveClient(conn net.Conn) {
	value, ok := cm.byConn.LoadAndDelete(conn)
	if !ok {
		return
	}
	client := value.(*Client)

	cm.mu.Lock()
	delete(cm.clients, client.ID)
	cm.mu.Unlock()

	cm.logger.Debug("client disconnected", zap.Int64("id", client.ID), zap.String("addr", client.Addr))
}

// Count returns the number of registered clients.
func (cm *Manager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CloseAllClients closes every client connection. Connection goroutines
// observe the closed socket and unregister themselves.
func (cm *Manager) CloseAllClients() {
	cm.mu.RLock()
	conns := make([]net.Conn, 0, len(cm.clients))
	for _, client := range cm.clients {
		conns = append(conns, client.conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			cm.logger.Debug("closing client connection", zap.Error(err))
		}
	}
	cm.logger.Info("closed all client connections", zap.Int("count", len(conns)))
}

// SetClientName sets the name of a client.
func (cm *Manager) SetClientName(conn net.Conn, name string) error {
	client, ok := cm.GetClient(conn)
	if !ok {
		return ErrClientNotFound
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	client.Name = name
	return nil
}

// ClientName returns the name set with CLIENT SETNAME.
func (cm *Manager) ClientName(conn net.Conn) (string, error) {
	client, ok := cm.GetClient(conn)
	if !ok {
		return "", ErrClientNotFound
	}
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.Name, nil
}

// UpdateLastCommand records cmd as the last command run by the client.
func (cm *Manager) UpdateLastCommand(conn net.Conn, cmd string) error {
	client, ok := cm.GetClient(conn)
	if !ok {
		return ErrClientNotFound
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	client.LastCmd = time.Now()
	client.LastCmdName = strings.ToLower(cmd)
	return nil
}

// List renders the CLIENT LIST reply, one line per client ordered by ID.
func (cm *Manager) List() string {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	cm.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })

	var b strings.Builder
	now := time.Now()
	for _, client := range clients {
		client.mu.RLock()
		fmt.Fprintf(&b, "id=%d addr=%s name=%s age=%d idle=%d cmd=%s\n",
			client.ID,
			client.Addr,
			client.Name,
			int(now.Sub(client.CreateTime).Seconds()),
			int(now.Sub(client.LastCmd).Seconds()),
			client.LastCmdName,
		)
		client.mu.RUnlock()
	}
	return b.String()
}
