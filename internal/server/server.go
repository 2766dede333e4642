package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/httpsfs/internal/certs"
	"github.com/wolfeidau/httpsfs/internal/logger"
	"golang.org/x/net/netutil"
)

// State is the lifecycle stage of a Server.
type State int32

const (
	StateUnstarted State = iota
	StateBound
	StateServing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "UNSTARTED"
	case StateBound:
		return "BOUND"
	case StateServing:
		return "SERVING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Option configures a Server
type Option func(*Server)

// WithTLSConfig uses the given TLS config instead of loading Config.CertFile and Config.KeyFile.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = tlsConfig.Clone()
	}
}

// WithLogger sets the logger used for connection lifecycle and error messages.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// Server terminates TLS on a single bound listener and hands each decrypted
// connection to an http.Handler. Connections are served strictly one at a
// time: the next connection is not accepted until the current one is closed.
type Server struct {
	cfg        Config
	tlsConfig  *tls.Config
	handler    http.Handler
	log        zerolog.Logger
	httpServer *http.Server

	active  atomic.Int64
	connIDs sync.Map // net.Conn -> connection id

	mu       sync.Mutex
	state    State
	listener net.Listener
}

// New creates a server for the given config and handler. The TLS material is
// loaded here, before any socket is bound, so a certificate problem is
// reported as a *certs.CertificateLoadError and nothing is left listening.
func New(cfg Config, handler http.Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     zerolog.Nop(),
		state:   StateUnstarted,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tlsConfig == nil {
		tlsConfig, err := certs.BuildTLSConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
	}

	s.httpServer = s.configureHTTPServer()

	return s, nil
}

func (s *Server) configureHTTPServer() *http.Server {
	srv := &http.Server{
		Handler:           s.handler,
		TLSConfig:         s.tlsConfig,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          logger.NewStdLogger(s.log),
		ConnContext:       s.connContext,
		ConnState:         s.connState,
	}

	// one request per connection so a client can't hold the only slot open
	srv.SetKeepAlivesEnabled(false)

	return srv
}

// Bind creates the TCP listener and wraps it with TLS. A failure is returned
// as a *BindError.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bindLocked()
}

func (s *Server) bindLocked() error {
	switch s.state {
	case StateUnstarted:
	case StateStopped:
		return ErrStopped
	default:
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return &BindError{Addr: s.cfg.Addr(), Err: err}
	}

	s.listener = tls.NewListener(netutil.LimitListener(ln, 1), s.tlsConfig)
	s.state = StateBound

	s.log.Debug().Str("addr", ln.Addr().String()).Msg("Listener bound")

	return nil
}

// Serve runs the accept loop until ctx is cancelled or Close is called,
// binding first if Bind has not been called. It returns nil on a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateUnstarted {
		if err := s.bindLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	switch s.state {
	case StateBound:
	case StateStopped:
		s.mu.Unlock()
		return ErrStopped
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateServing
	listener := s.listener
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			if err := s.Close(); err != nil {
				s.log.Error().Err(err).Msg("Failed to close server")
			}
		case <-done:
		}
	}()

	s.log.Info().Str("addr", listener.Addr().String()).Msg("Serving HTTPS")

	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}
	return nil
}

// ListenAndServe binds the listener and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close stops the accept loop, closes the listener and any open connection.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	prev := s.state
	s.state = StateStopped
	listener := s.listener
	s.mu.Unlock()

	switch prev {
	case StateBound:
		// Serve never took ownership of the listener
		return listener.Close()
	case StateServing:
		return s.httpServer.Close()
	default:
		return nil
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound listener address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the https URL for the bound port on localhost.
func (s *Server) URL() string {
	addr, ok := s.Addr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	return fmt.Sprintf("https://localhost:%d", addr.Port)
}

// ActiveConnections returns the number of accepted connections which are not yet closed.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	id := uuid.NewString()
	s.connIDs.Store(c, id)

	log := s.log.With().Str("conn_id", id).Logger()
	return log.WithContext(ctx)
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.active.Add(1)
		s.log.Debug().
			Str("conn_id", s.connID(c)).
			Str("remote", c.RemoteAddr().String()).
			Msg("Connection accepted")
	case http.StateClosed, http.StateHijacked:
		s.active.Add(-1)
		s.log.Debug().
			Str("conn_id", s.connID(c)).
			Str("remote", c.RemoteAddr().String()).
			Str("state", state.String()).
			Msg("Connection finished")
		s.connIDs.Delete(c)
	}
}

func (s *Server) connID(c net.Conn) string {
	id, _ := s.connIDs.Load(c)
	str, _ := id.(string)
	return str
}
