package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/ndwire/internal/observability"
	"github.com/danmuck/ndwire/internal/protocol/frame"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrKindMismatch = errors.New("transport: operation not supported by socket kind")
	ErrClosed       = errors.New("transport: socket closed")
	ErrSendFailed   = errors.New("transport: send failed")
)

// Options configures one socket.
type Options struct {
	Endpoint string
	Kind     Kind
	Mode     Mode
	Session  session.Config
}

// Socket is a multipart message socket bound or connected to one endpoint.
type Socket struct {
	opts     Options
	endpoint Endpoint
	cfg      session.Config
	// label names the socket in logs and metrics. Bound sockets use the
	// resolved listen address.
	label string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closing   bool
	peers     []peer
	next      int
	peerReady chan struct{}
	listener  io.Closer
	addr      net.Addr

	inbox  chan [][]byte
	closed chan struct{}
}

// Open validates opts and binds or connects the socket. In connect mode the
// initial dial is retried with backoff up to Session.MaxConnectAttempts.
func Open(ctx context.Context, opts Options) (*Socket, error) {
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(opts.Kind))
	}
	ep, err := ParseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	cfg := opts.Session.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		opts:      opts,
		endpoint:  ep,
		cfg:       cfg,
		label:     ep.String(),
		ctx:       sctx,
		cancel:    cancel,
		peerReady: make(chan struct{}),
		inbox:     make(chan [][]byte, cfg.ReceiveBuffer),
		closed:    make(chan struct{}),
	}

	switch opts.Mode {
	case Bind:
		err = s.bind()
	case Connect:
		err = s.connect(ctx)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownMode, int(opts.Mode))
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Debug().
		Str("endpoint", s.label).
		Str("kind", opts.Kind.String()).
		Str("mode", opts.Mode.String()).
		Msg("transport socket open")
	return s, nil
}

func (s *Socket) Kind() Kind {
	return s.opts.Kind
}

func (s *Socket) Endpoint() Endpoint {
	return s.endpoint
}

// Addr is the listening address of a bound socket, nil in connect mode.
func (s *Socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Label is the endpoint used in logs and metrics. For a bound socket it
// carries the resolved port.
func (s *Socket) Label() string {
	return s.label
}

// Peers is the number of currently connected peers.
func (s *Socket) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Send delivers one frame list. PUSH blocks until a peer is available or ctx
// is done; PUB never blocks and drops the message when no peer is connected.
func (s *Socket) Send(ctx context.Context, frames [][]byte) error {
	if !s.opts.Kind.CanSend() {
		return fmt.Errorf("%w: send on %s", ErrKindMismatch, s.opts.Kind)
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	// limit violations are rejected before any peer is touched
	if err := frame.CheckLimits(frames, s.cfg.Limits); err != nil {
		return err
	}
	if s.opts.Kind == Pub {
		return s.fanOut(frames)
	}
	return s.pushOne(ctx, frames)
}

func (s *Socket) pushOne(ctx context.Context, frames [][]byte) error {
	var lastErr error
	for {
		p, ready := s.pickPeer()
		if p == nil {
			if lastErr != nil {
				return fmt.Errorf("%w: %w", ErrSendFailed, lastErr)
			}
			select {
			case <-ready:
				continue
			case <-ctx.Done():
				return ctx.Err()
			case <-s.closed:
				return ErrClosed
			}
		}
		if err := p.WriteMessage(frames); err != nil {
			lastErr = err
			s.dropPeer(p, err)
			continue
		}
		return nil
	}
}

func (s *Socket) fanOut(frames [][]byte) error {
	s.mu.Lock()
	peers := append([]peer(nil), s.peers...)
	s.mu.Unlock()

	var lastErr error
	failed := 0
	for _, p := range peers {
		if err := p.WriteMessage(frames); err != nil {
			failed++
			lastErr = err
			s.dropPeer(p, err)
		}
	}
	if len(peers) > 0 && failed == len(peers) {
		return fmt.Errorf("%w: %w", ErrSendFailed, lastErr)
	}
	return nil
}

// Receive returns the next frame list from any peer.
func (s *Socket) Receive(ctx context.Context) ([][]byte, error) {
	if !s.opts.Kind.CanReceive() {
		return nil, fmt.Errorf("%w: receive on %s", ErrKindMismatch, s.opts.Kind)
	}
	select {
	case frames := <-s.inbox:
		return frames, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrClosed
	}
}

// Close stops background goroutines and closes every peer. It is idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	close(s.closed)
	peers := s.peers
	s.peers = nil
	listener := s.listener
	s.mu.Unlock()

	s.cancel()
	var err error
	if listener != nil {
		err = listener.Close()
	}
	for _, p := range peers {
		_ = p.Close()
	}
	s.wg.Wait()
	observability.SetTransportPeers(s.opts.Kind.String(), s.label, 0)
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *Socket) pickPeer() (peer, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) == 0 {
		return nil, s.peerReady
	}
	p := s.peers[s.next%len(s.peers)]
	s.next++
	return p, nil
}

func (s *Socket) addPeer(p peer) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = p.Close()
		return
	}
	s.peers = append(s.peers, p)
	n := len(s.peers)
	close(s.peerReady)
	s.peerReady = make(chan struct{})
	s.wg.Add(1)
	s.mu.Unlock()

	observability.SetTransportPeers(s.opts.Kind.String(), s.label, n)
	log.Debug().Str("endpoint", s.label).Str("remote", p.RemoteAddr()).Int("peers", n).Msg("transport peer connected")
	go s.readLoop(p)
}

func (s *Socket) dropPeer(p peer, cause error) {
	s.mu.Lock()
	idx := -1
	for i, q := range s.peers {
		if q == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.peers = append(s.peers[:idx], s.peers[idx+1:]...)
	n := len(s.peers)
	redial := s.opts.Mode == Connect && !s.closing
	if redial {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	_ = p.Close()
	observability.SetTransportPeers(s.opts.Kind.String(), s.label, n)
	log.Warn().Err(cause).Str("endpoint", s.label).Str("remote", p.RemoteAddr()).Int("peers", n).Msg("transport peer dropped")
	if redial {
		go s.redial()
	}
}

// readLoop feeds the inbox for receiving kinds and otherwise only watches for
// the peer going away.
func (s *Socket) readLoop(p peer) {
	defer s.wg.Done()
	for {
		frames, err := p.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.dropPeer(p, err)
			}
			return
		}
		if !s.opts.Kind.CanReceive() {
			continue
		}
		select {
		case s.inbox <- frames:
		case <-s.closed:
			return
		}
	}
}

func (s *Socket) bind() error {
	ln, err := net.Listen("tcp", s.endpoint.Address())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	if host, port, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		resolved := s.endpoint
		resolved.Host, resolved.Port = host, port
		s.label = resolved.String()
	}

	switch s.endpoint.Scheme {
	case SchemeWS:
		srv := &http.Server{
			Handler:           s.upgradeHandler(),
			ReadHeaderTimeout: s.cfg.HandshakeTimeout,
		}
		s.mu.Lock()
		s.listener = srv
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("endpoint", s.label).Msg("transport ws serve stopped")
			}
		}()
	default:
		s.mu.Lock()
		s.listener = ln
		s.mu.Unlock()
		s.wg.Add(1)
		go s.acceptLoop(ln)
	}
	return nil
}

func (s *Socket) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Str("endpoint", s.label).Msg("transport accept failed")
			}
			return
		}
		s.addPeer(newTCPPeer(conn, s.cfg.Limits, s.peerReadTimeout(), s.cfg.WriteTimeout))
	}
}

func (s *Socket) upgradeHandler() http.Handler {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.endpoint.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("transport ws upgrade failed")
			return
		}
		s.addPeer(newWSPeer(conn, s.cfg.Limits, s.peerReadTimeout(), s.cfg.WriteTimeout))
	})
	return mux
}

func (s *Socket) connect(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var attempt int
	for {
		attempt++
		p, err := s.dial(ctx)
		if err == nil {
			s.addPeer(p)
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("endpoint", s.label).Msg("transport dial failed")
		if !s.cfg.ShouldRetry(attempt) {
			return err
		}
		select {
		case <-time.After(session.NextBackoffDelay(s.cfg.Backoff, attempt, rng)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// redial restores the single peer of a connect-mode socket until it succeeds
// or the socket closes.
func (s *Socket) redial() {
	defer s.wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		select {
		case <-time.After(session.NextBackoffDelay(s.cfg.Backoff, attempt, rng)):
		case <-s.closed:
			return
		}
		p, err := s.dial(s.ctx)
		if err == nil {
			s.addPeer(p)
			return
		}
		log.Debug().Err(err).Int("attempt", attempt).Str("endpoint", s.label).Msg("transport redial failed")
	}
}

func (s *Socket) dial(ctx context.Context) (peer, error) {
	switch s.endpoint.Scheme {
	case SchemeWS:
		dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, s.endpoint.URL(), nil)
		if err != nil {
			return nil, err
		}
		return newWSPeer(conn, s.cfg.Limits, s.peerReadTimeout(), s.cfg.WriteTimeout), nil
	default:
		dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", s.endpoint.Address())
		if err != nil {
			return nil, err
		}
		return newTCPPeer(conn, s.cfg.Limits, s.peerReadTimeout(), s.cfg.WriteTimeout), nil
	}
}

// peerReadTimeout only applies to receiving kinds; a sending socket's peers
// are expected to stay silent.
func (s *Socket) peerReadTimeout() time.Duration {
	if s.opts.Kind.CanReceive() {
		return s.cfg.ReadTimeout
	}
	return 0
}
