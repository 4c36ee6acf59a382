package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/genc-murat/crystalstream/internal/client"
	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/handlers"
	"github.com/genc-murat/crystalstream/internal/metrics"
	"github.com/genc-murat/crystalstream/pkg/resp"
)

type Server struct {
	cache    ports.Cache
	storage  ports.Storage
	metrics  *metrics.Metrics
	registry *handlers.Registry
	executor *CommandExecutor
	config   ServerConfig
	logger   *zap.Logger

	// execMu serializes command execution across connections. EXEC holds
	// it for the whole transaction.
	execMu sync.Mutex

	listener  net.Listener
	listenMu  sync.Mutex
	shutdown  chan struct{}
	closeOnce sync.Once
	storeOnce sync.Once
	wg        sync.WaitGroup

	clientManager *client.Manager
}

type ServerConfig struct {
	Password       string
	MaxConnections int
	// ReadTimeout closes connections idle between commands for longer
	// than this. Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// session is the per-connection state.
type session struct {
	conn          net.Conn
	client        *client.Client
	tx            *models.Transaction
	authenticated bool
}

func NewServer(cache ports.Cache, storage ports.Storage, metrics *metrics.Metrics, config ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := handlers.NewRegistry(cache)

	return &Server{
		cache:         cache,
		storage:       storage,
		metrics:       metrics,
		registry:      registry,
		executor:      NewCommandExecutor(registry, storage, metrics, logger),
		config:        config,
		logger:        logger,
		shutdown:      make(chan struct{}),
		clientManager: client.NewManager(logger),
	}
}

// Start replays storage, listens on address and serves until Shutdown.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve replays storage and accepts connections on listener until
// Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.listenMu.Lock()
	s.listener = listener
	s.listenMu.Unlock()

	select {
	case <-s.shutdown:
		return listener.Close()
	default:
	}

	if err := s.loadData(); err != nil {
		listener.Close()
		return err
	}

	s.logger.Info("server listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("error accepting connection", zap.Error(err))
			continue
		}

		if s.config.MaxConnections > 0 && s.clientManager.Count() >= s.config.MaxConnections {
			_ = resp.NewWriter(conn).Write(models.Error("ERR max number of clients reached"))
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Addr returns the listener address once Serve has been called.
func (s *Server) Addr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) loadData() error {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.storage.Read(s.executor.Replay)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sess := &session{
		conn:          conn,
		client:        s.clientManager.AddClient(conn),
		tx:            models.NewTransaction(),
		authenticated: s.config.Password == "",
	}
	defer s.clientManager.RemoveClient(conn)

	select {
	case <-s.shutdown:
		return
	default:
	}

	s.metrics.ClientConnected()
	defer s.metrics.ClientDisconnected()

	reader := resp.NewReader(conn)
	writer := resp.NewWriter(conn)

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		value, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read failed", zap.Int64("client", sess.client.ID), zap.Error(err))
			}
			return
		}

		if value.Type != "array" || len(value.Array) == 0 {
			continue
		}

		cmd := strings.ToUpper(value.Array[0].Bulk)
		_ = s.clientManager.UpdateLastCommand(conn, cmd)

		result := s.handleCommand(sess, cmd, value)

		if s.config.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		}
		if err := writer.Write(result); err != nil {
			return
		}
	}
}

func (s *Server) handleCommand(sess *session, cmd string, value models.Value) models.Value {
	args := value.Array[1:]

	switch cmd {
	case "AUTH":
		return s.handleAuth(sess, args)
	case "HELLO":
		// RESP2 only; clients fall back to AUTH and plain RESP2.
		return unknownCommand(cmd, args)
	}

	if !sess.authenticated {
		return models.Error("NOAUTH Authentication required.")
	}

	switch cmd {
	case "MULTI":
		return s.handleMulti(sess)
	case "EXEC":
		return s.handleExec(sess)
	case "DISCARD":
		return s.handleDiscard(sess)
	case "WATCH":
		return s.handleWatch(sess, args)
	case "UNWATCH":
		sess.tx.Watches = make(map[string]int64)
		return models.OK()
	case "CLIENT":
		return s.handleClient(sess, args)
	case "INFO":
		return s.handleInfo(args)
	}

	if sess.tx.InMulti {
		return s.queue(sess, cmd, value)
	}

	if handler, ok := s.registry.GetBlockingHandler(cmd); ok {
		return s.executeBlocking(cmd, value, handler)
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.executor.Execute(cmd, value)
}

// executeBlocking retries a blocking command on every keyspace change
// until it yields data, its timeout elapses or the server shuts down.
func (s *Server) executeBlocking(cmd string, value models.Value, handler handlers.BlockingHandler) models.Value {
	var timeout <-chan time.Time
	first := true

	for {
		s.execMu.Lock()
		result, block := s.executor.ExecuteBlocking(cmd, value, handler)
		var changed <-chan struct{}
		if block != nil {
			// Captured under the lock so no write can slip in between.
			changed = s.cache.Changed()
		}
		s.execMu.Unlock()

		if block == nil {
			return result
		}

		if first {
			first = false
			if block.Timeout > 0 {
				timer := time.NewTimer(block.Timeout)
				defer timer.Stop()
				timeout = timer.C
			}
		}
		value = models.Array(append([]models.Value{value.Array[0]}, block.Args...)...)

		select {
		case <-changed:
		case <-timeout:
			return result
		case <-s.shutdown:
			return result
		}
	}
}

func (s *Server) handleAuth(sess *session, args []models.Value) models.Value {
	var password string
	switch len(args) {
	case 1:
		password = args[0].Bulk
	case 2:
		if args[0].Bulk != "default" {
			sess.authenticated = false
			return models.Error("WRONGPASS invalid username-password pair or user is disabled.")
		}
		password = args[1].Bulk
	default:
		return models.Error("ERR wrong number of arguments for 'auth' command")
	}

	if s.config.Password == "" {
		return models.Error("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}
	if password != s.config.Password {
		sess.authenticated = false
		return models.Error("WRONGPASS invalid username-password pair or user is disabled.")
	}
	sess.authenticated = true
	return models.OK()
}

func (s *Server) handleClient(sess *session, args []models.Value) models.Value {
	if len(args) == 0 {
		return models.Error("ERR wrong number of arguments for 'client' command")
	}

	switch strings.ToUpper(args[0].Bulk) {
	case "SETNAME":
		if len(args) != 2 {
			return models.Error("ERR wrong number of arguments for 'client|setname' command")
		}
		if strings.ContainsAny(args[1].Bulk, " \n") {
			return models.Error("ERR Client names cannot contain spaces, newlines or special characters.")
		}
		if err := s.clientManager.SetClientName(sess.conn, args[1].Bulk); err != nil {
			return models.Errorf("ERR %v", err)
		}
		return models.OK()
	case "GETNAME":
		name, err := s.clientManager.ClientName(sess.conn)
		if err != nil || name == "" {
			return models.Null()
		}
		return models.Bulk(name)
	case "ID":
		return models.Integer(int(sess.client.ID))
	case "LIST":
		return models.Bulk(s.clientManager.List())
	case "SETINFO":
		return models.OK()
	default:
		return models.Errorf("ERR unknown subcommand '%s'. Try CLIENT HELP.", args[0].Bulk)
	}
}

// Shutdown stops accepting connections, disconnects every client, waits
// for connection goroutines and closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdown)

		s.listenMu.Lock()
		if s.listener != nil {
			if closeErr := s.listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
				err = multierr.Append(err, closeErr)
			}
		}
		s.listenMu.Unlock()

		s.clientManager.CloseAllClients()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return multierr.Append(err, ctx.Err())
	}

	s.storeOnce.Do(func() {
		err = multierr.Append(err, s.storage.Close())
		s.logger.Info("server stopped")
	})
	return err
}

func (s *Server) GetMetrics() map[string]interface{} {
	return s.metrics.GetStats()
}
