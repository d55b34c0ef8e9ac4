// Package daemon implements DaemonSupervisor: the process-lifetime
// machinery around RequestHandler — single-instance locking, the Unix
// socket listener, the idle-timeout/signal/activity event loop, graceful
// drain, and cleanup. Orchestrating the earlier startup steps (hardware
// detection, model selection, model download, model load) is left to
// cmd/tsuku-llm, using InstallSignalHandler/Interruptible from this
// package to keep those steps interruptible too.
package daemon

import (
	"log/slog"
	"net"
	"net/rpc"
	"os"
	"time"

	"github.com/tsukumogami/tsuku/pkg/handler"
	"github.com/tsukumogami/tsuku/pkg/rpcapi"
)

// DefaultGraceTimeout is how long Run waits for in-flight requests to
// drain after a shutdown trigger before abandoning them.
const DefaultGraceTimeout = 10 * time.Second

// DefaultDrainPoll is how often Run polls RequestHandler.InFlight during
// drain.
const DefaultDrainPoll = 100 * time.Millisecond

// Supervisor owns the daemon's socket listener and event loop once
// RequestHandler is ready to serve. It also implements rpcapi.Handler,
// delegating Complete to RequestHandler and handling Shutdown/GetStatus
// itself — those two RPCs are daemon-lifecycle concerns RequestHandler
// has no reason to know about.
type Supervisor struct {
	listener       net.Listener
	lock           *InstanceLock
	socketPath     string
	requestHandler *handler.RequestHandler
	status         rpcapi.StatusResponse
	idleTimeout    time.Duration
	activity       chan struct{}
	shutdownCh     chan struct{}
	sigCh          <-chan os.Signal

	graceTimeout time.Duration
	drainPoll    time.Duration
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithGraceTimeout overrides DefaultGraceTimeout.
func WithGraceTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.graceTimeout = d }
}

// WithDrainPoll overrides DefaultDrainPoll.
func WithDrainPoll(d time.Duration) Option {
	return func(s *Supervisor) { s.drainPoll = d }
}

// NewActivityChannel creates the bounded activity channel a RequestHandler
// and its Supervisor share: the handler sends on every admitted request,
// the supervisor receives to reset its idle deadline. Capacity 16 per the
// concurrency model; a full channel silently drops the signal rather than
// blocking the request.
func NewActivityChannel() chan struct{} { return make(chan struct{}, 16) }

// NewSupervisor builds a Supervisor. listener and lock are already held by
// the caller (typically via Bind and AcquireLock during startup);
// requestHandler must already be wired to a loaded model and constructed
// with the same activity channel passed here; status is the fixed
// GetStatus snapshot (model/backend/VRAM facts established at startup,
// never refreshed at runtime).
func NewSupervisor(listener net.Listener, lock *InstanceLock, socketPath string, sigCh <-chan os.Signal,
	idleTimeout time.Duration, activity chan struct{}, requestHandler *handler.RequestHandler,
	status rpcapi.StatusResponse, opts ...Option) *Supervisor {
	s := &Supervisor{
		listener:       listener,
		lock:           lock,
		socketPath:     socketPath,
		requestHandler: requestHandler,
		status:         status,
		idleTimeout:    idleTimeout,
		activity:       activity,
		shutdownCh:     make(chan struct{}, 1),
		sigCh:          sigCh,
		graceTimeout:   DefaultGraceTimeout,
		drainPoll:      DefaultDrainPoll,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Complete implements rpcapi.Handler by delegating to RequestHandler.
func (s *Supervisor) Complete(req rpcapi.CompletionRequest) (rpcapi.CompletionResponse, error) {
	return s.requestHandler.Complete(req)
}

// Shutdown implements rpcapi.Handler: it signals the event loop to begin
// draining and returns immediately, it does not itself wait for drain to
// finish.
func (s *Supervisor) Shutdown(req rpcapi.ShutdownRequest) (rpcapi.ShutdownResponse, error) {
	select {
	case s.shutdownCh <- struct{}{}:
	default:
	}
	return rpcapi.ShutdownResponse{Accepted: true}, nil
}

// GetStatus implements rpcapi.Handler, returning the fixed startup snapshot.
func (s *Supervisor) GetStatus(req rpcapi.StatusRequest) (rpcapi.StatusResponse, error) {
	return s.status, nil
}

// Run registers the RPC service, serves connections, and blocks until a
// shutdown trigger (idle timeout, Shutdown RPC, or signal) fires, then
// drains in-flight requests and cleans up. It returns once cleanup is
// complete; the caller is responsible for the process's final exit status.
func (s *Supervisor) Run() error {
	server := rpc.NewServer()
	if err := server.RegisterName("Service", rpcapi.NewService(s)); err != nil {
		return err
	}

	connCh := make(chan net.Conn)
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return
			}
			connCh <- conn
		}
	}()

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

loop:
	for {
		select {
		case conn := <-connCh:
			go server.ServeConn(conn)
		case <-s.activity:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)
		case <-idle.C:
			slog.Info("idle timeout reached, shutting down", "idle_timeout", s.idleTimeout)
			break loop
		case <-s.shutdownCh:
			slog.Info("shutdown requested over RPC")
			break loop
		case <-s.sigCh:
			slog.Info("signal received, shutting down")
			break loop
		}
	}

	s.requestHandler.BeginShutdown()
	slog.Info("drain started", "grace_timeout", s.graceTimeout, "in_flight", s.requestHandler.InFlight())
	s.drain()
	slog.Info("drain finished", "in_flight", s.requestHandler.InFlight())

	s.listener.Close()
	<-acceptDone
	os.Remove(s.socketPath)
	s.lock.Release()

	return nil
}

// drain waits for RequestHandler.InFlight to reach zero, up to
// graceTimeout, polling every drainPoll. A second shutdown trigger
// (another signal, or another Shutdown RPC) during the wait short-circuits
// it — in-flight work is then abandoned as the process exits.
func (s *Supervisor) drain() {
	deadline := time.Now().Add(s.graceTimeout)
	for s.requestHandler.InFlight() > 0 && time.Now().Before(deadline) {
		select {
		case <-s.sigCh:
			slog.Warn("second signal during drain, abandoning in-flight requests")
			return
		case <-s.shutdownCh:
			slog.Warn("second shutdown request during drain, abandoning in-flight requests")
			return
		case <-time.After(s.drainPoll):
		}
	}
}
