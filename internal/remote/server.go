// Package remote serves the WebSocket control protocol of the atl daemon.
//
// Every connection is a session. Clients send JSON [Command] messages and
// receive a [Result] (or [Error]) per command plus [Notification] messages
// for the requests their session issued. Objects created by a session are
// released when it disconnects.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/atl/internal/observe"
	"github.com/MrWong99/atl/pkg/atl"
)

// defaultSendQueue is the number of outgoing messages buffered per session.
const defaultSendQueue = 256

// ErrServerClosed is returned by [Server.Shutdown] when called twice.
var ErrServerClosed = errors.New("remote: server closed")

// Runtime is the part of [atl.System] the server drives.
type Runtime interface {
	CreateObject(data atl.ObjectData, opts ...atl.RequestOption) (*atl.Object, atl.Status)
	GlobalObject() *atl.Object
	AddRequestListener(cb atl.Callback, owner any, mask atl.SystemEvent) atl.ListenerToken
	RemoveRequestListener(token atl.ListenerToken, opts ...atl.RequestOption) atl.Status
}

var _ Runtime = (*atl.System)(nil)

// Server accepts WebSocket sessions. It implements [http.Handler].
type Server struct {
	rt        Runtime
	log       *slog.Logger
	metrics   *observe.Metrics
	origins   []string
	sendQueue int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the server's logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records session and command metrics. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns allows cross-origin connections from hosts matching
// the patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithSendQueue sets how many outgoing messages a session buffers before
// notifications are dropped.
func WithSendQueue(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendQueue = n
		}
	}
}

// NewServer returns a server driving rt.
func NewServer(rt Runtime, opts ...Option) *Server {
	s := &Server{
		rt:        rt,
		log:       slog.Default(),
		sendQueue: defaultSendQueue,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ServeHTTP upgrades the request and serves the session until the client
// disconnects or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("remote: websocket accept failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	sess := newSession(s, conn, observe.Logger(ctx, s.log).With("remote_addr", r.RemoteAddr))
	s.metrics.RemoteSessions.Add(ctx, 1)
	defer s.metrics.RemoteSessions.Add(context.WithoutCancel(ctx), -1)

	sess.log.Info("remote session opened")
	err = sess.run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		sess.log.Warn("remote session failed", "err", err)
		conn.Close(websocket.StatusInternalError, "session failed")
	}
	sess.log.Info("remote session closed")
}

// Shutdown ends every session and waits until they released their objects
// or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
