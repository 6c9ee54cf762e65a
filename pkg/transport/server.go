package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
)

// ServerConfig configures the appliance endpoint.
type ServerConfig struct {
	// Address to listen on, default ":443".
	Address string

	// Path of the WebSocket endpoint, default "/homeconnect".
	Path string

	// TLSConfig enables wss when set.
	TLSConfig *tls.Config

	Channel ChannelConfig

	// OnConnect runs for every accepted channel, on the connection's own
	// goroutine. The channel is closed when it returns.
	OnConnect func(ctx context.Context, ch Channel)

	// OnError reports upgrade and serve failures.
	OnError func(err error)
}

// Server accepts WebSocket connections and hands them out as channels.
type Server struct {
	config   ServerConfig
	upgrader websocket.Upgrader
	logger   log.Logger

	httpServer *http.Server
	listener   net.Listener

	conns   map[*wsChannel]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. OnConnect is required.
func NewServer(config ServerConfig) (*Server, error) {
	if config.OnConnect == nil {
		return nil, errors.New("OnConnect is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Protocol clients are not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.OrNoop(config.Channel.Logger),
		conns:  make(map[*wsChannel]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Handler returns the HTTP handler serving the endpoint path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.serveWS)
	return mux
}

// Start listens and serves until Stop is called or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	if s.config.TLSConfig != nil {
		ln = tls.NewListener(ln, s.config.TLSConfig)
	}
	s.listener = ln

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.reportError(fmt.Errorf("serve: %w", err))
		}
	}()
	return nil
}

// Stop closes the listener and every open channel, then waits for
// connection handlers to return.
func (s *Server) Stop() error {
	s.cancel()

	s.connsMu.RLock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connsMu.RUnlock()

	var err error
	if s.running.CompareAndSwap(true, false) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// Addr returns the listen address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the endpoint URL for the listen address.
func (s *Server) URL() string {
	scheme := "ws"
	if s.config.TLSConfig != nil {
		scheme = "wss"
	}
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return scheme + "://" + addr.String() + s.config.Path
}

// ConnectionCount returns the number of open channels.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.reportError(fmt.Errorf("upgrade from %s: %w", r.RemoteAddr, err))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	ch := newChannel(s.ctx, conn, s.config.Channel)
	s.connsMu.Lock()
	s.conns[ch] = struct{}{}
	s.connsMu.Unlock()
	s.logState(ch, "", "CONNECTED")

	defer func() {
		_ = ch.Close()
		s.connsMu.Lock()
		delete(s.conns, ch)
		s.connsMu.Unlock()
		s.logState(ch, "CONNECTED", "DISCONNECTED")
	}()

	s.config.OnConnect(s.ctx, ch)
}

func (s *Server) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}

func (s *Server) logState(ch *wsChannel, from, to string) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  ch.id,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		RemoteAddr: ch.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
		},
	})
}
