package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/ndwire/internal/ndarray"
	"github.com/danmuck/ndwire/internal/observability"
	"github.com/danmuck/ndwire/internal/protocol"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNameRequired    = errors.New("stream: name required")
	ErrSenderRequired  = errors.New("stream: sender required")
	ErrProducer        = errors.New("stream: producer failed")
	ErrTransport       = errors.New("stream: transport failed")
	ErrPublisherClosed = errors.New("stream: publisher closed")
)

// Producer builds the next array to publish.
type Producer func() (ndarray.Array, error)

// Sender is the transport side a Publisher writes to. Send must deliver the
// frame list atomically.
type Sender interface {
	Send(ctx context.Context, frames [][]byte) error
	Close() error
}

// Config opens a Publisher on its own transport socket.
type Config struct {
	Name     string
	Endpoint string
	Kind     transport.Kind
	Mode     transport.Mode
	Session  session.Config
}

// Publisher emits arrays under a fixed stream identity.
type Publisher struct {
	identity Identity
	sender   Sender
	closed   bool
}

// Open connects (or binds) a transport socket per cfg and returns a Publisher
// owning it. Kind defaults to PUSH.
func Open(ctx context.Context, cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, ErrNameRequired
	}
	kind := cfg.Kind
	if kind == 0 {
		kind = transport.Push
	}
	if !kind.CanSend() {
		return nil, fmt.Errorf("%w: publisher needs push or pub, got %s", transport.ErrKindMismatch, kind)
	}
	sock, err := transport.Open(ctx, transport.Options{
		Endpoint: cfg.Endpoint,
		Kind:     kind,
		Mode:     cfg.Mode,
		Session:  cfg.Session,
	})
	if err != nil {
		return nil, err
	}
	p, err := NewPublisher(cfg.Name, sock)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisher wraps an existing sender. The publisher takes ownership and
// closes it on Close.
func NewPublisher(name string, sender Sender) (*Publisher, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if sender == nil {
		return nil, ErrSenderRequired
	}
	identity, err := NewIdentity(name)
	if err != nil {
		return nil, err
	}
	log.Info().Str("stream", name).Str("stream_id", identity.ID.String()).Msg("publisher ready")
	return &Publisher{identity: identity, sender: sender}, nil
}

func (p *Publisher) ID() uuid.UUID {
	return p.identity.ID
}

func (p *Publisher) Name() string {
	return p.identity.Name
}

func (p *Publisher) Identity() Identity {
	return p.identity
}

// EmitOnce runs produce, encodes its array and sends the five-frame message.
// Producer failures wrap ErrProducer and transport failures wrap ErrTransport;
// the original error stays in the chain either way.
func (p *Publisher) EmitOnce(ctx context.Context, produce Producer) error {
	if p.closed {
		return ErrPublisherClosed
	}
	arr, err := produce()
	if err != nil {
		observability.RecordPublishFailure(p.identity.Name, "producer")
		return fmt.Errorf("%w: %w", ErrProducer, err)
	}
	frames, err := protocol.Encode(arr)
	if err != nil {
		observability.RecordPublishFailure(p.identity.Name, "encode")
		return err
	}
	msg := p.identity.Wrap(frames)
	if err := p.sender.Send(ctx, msg); err != nil {
		observability.RecordPublishFailure(p.identity.Name, "transport")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	size := messageSize(msg)
	observability.RecordPublish(p.identity.Name, size)
	log.Debug().
		Str("stream", p.identity.Name).
		Str("dtype", string(arr.DType)).
		Ints("shape", arr.Shape).
		Int("bytes", size).
		Msg("array emitted")
	return nil
}

// Wrap turns produce into a call that emits on every invocation.
func (p *Publisher) Wrap(produce Producer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return p.EmitOnce(ctx, produce)
	}
}

// Close releases the transport. Calling it again is a no-op.
func (p *Publisher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sender.Close()
}

func messageSize(frames [][]byte) int {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	return n
}
