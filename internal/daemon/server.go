package daemon

import (
	"bufio"
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/storage"
)

// ShutdownDrainTimeout bounds how long Shutdown waits for in-flight turns
// to finish before proceeding anyway (spec §4.10: "allow in-flight turns
// to drain with a deadline").
const ShutdownDrainTimeout = 30 * time.Second

// Server listens on a local stream socket and serves spec §4.10's
// request/response + broadcast protocol. Grounded on haasonsaas-nexus's
// vsock Accept-loop shape (internal/tools/sandbox/firecracker/vsock.go) —
// the teacher has no socket server of its own to generalize from.
type Server struct {
	socketPath string
	cell       *Cell
	hub        *hub

	// Storage is the optional off-site backup client `aigent memory
	// export-vault --remote` mirrors the vault root through; nil when
	// cfg.Storage.Enabled is false or the backend failed to initialize.
	Storage *storage.Client

	// ReloadConfig backs CmdReloadConfig; cmd/aigent's serve() wires it to
	// re-read the config file/.env, since internal/daemon doesn't import
	// internal/config directly. Nil means CmdReloadConfig bare-acks.
	ReloadConfig func(ctx context.Context) (ReloadResult, error)

	listener net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	stopScheduler func()
	wg            sync.WaitGroup

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// New creates a Server bound to socketPath, removing any stale socket
// file left behind by a prior unclean shutdown.
func New(socketPath string, cell *Cell, stopScheduler func()) *Server {
	return &Server{
		socketPath:    socketPath,
		cell:          cell,
		hub:           newHub(),
		conns:         make(map[net.Conn]struct{}),
		stopScheduler: stopScheduler,
		shutdownCh:    make(chan struct{}),
	}
}

// ShutdownRequested is closed the moment a client issues CmdShutdown over
// the socket — the caller running the main loop (cmd/aigent's serve, which
// otherwise only waits on SIGINT/SIGTERM) selects on this alongside its
// signal channel so the documented IPC command actually triggers the same
// graceful sequence a signal does, rather than just acking and closing one
// connection.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

// RequestShutdown signals ShutdownRequested exactly once; safe to call from
// multiple connections or more than once.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Listen opens the socket. Fatal per spec §7 ("socket bind failure at
// startup") — the caller should treat a non-nil error as unrecoverable.
func (s *Server) Listen() error {
	_ = os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Serve runs the accept loop until the listener is closed by Shutdown.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			logger.Debug("daemon listener closed", "err", err)
			return
		}
		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Broadcast publishes ev to every Subscribe connection, and is also the
// hook cmd/aigent's serve routes C6's reflection events and tool approval
// requests through to surface ReflectionInsight/BeliefAdded/ApprovalRequest
// without a direct reference to any one connection.
func (s *Server) Broadcast(ev Event) {
	s.hub.publish(ev)
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		var req Request
		if err := readFrame(reader, &req); err != nil {
			return
		}

		ctx := context.Background()
		if req.Command == CmdDisconnect {
			return
		}
		if req.Command == CmdSubscribe {
			s.serveSubscription(ctx, writer)
			return
		}

		s.dispatch(ctx, req, writer)

		if req.Command == CmdShutdown {
			return
		}
	}
}

// serveSubscription blocks forwarding every broadcast Event to this
// connection until it disconnects (spec §4.10: "Persistent stream of all
// broadcast events until disconnect").
func (s *Server) serveSubscription(ctx context.Context, writer *bufio.Writer) {
	events, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	for ev := range events {
		if err := writeFrame(writer, ev); err != nil {
			return
		}
	}
}

// Shutdown runs spec §4.10's graceful sequence: abort scheduler tasks,
// stop accepting new connections, drain in-flight turns with a deadline,
// flush memory, run a final agentic sleep pass, remove the socket file.
func (s *Server) Shutdown(ctx context.Context, finalSleepModel finalSleepFunc) error {
	if s.stopScheduler != nil {
		s.stopScheduler()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(ShutdownDrainTimeout):
		logger.Warn("shutdown drain deadline exceeded, proceeding anyway")
	}

	if err := s.cell.TakeTimeout(5 * time.Second); err == nil {
		if finalSleepModel != nil {
			if _, err := finalSleepModel(ctx); err != nil {
				logger.Warn("final agentic sleep pass failed", "err", err)
			}
		}
		s.cell.Put()
	}

	_ = os.Remove(s.socketPath)
	return nil
}

// finalSleepFunc runs the shutdown sequence's final agentic sleep pass.
type finalSleepFunc func(ctx context.Context) (any, error)
