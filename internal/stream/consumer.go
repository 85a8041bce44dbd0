package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/ndwire/internal/ndarray"
	"github.com/danmuck/ndwire/internal/observability"
	"github.com/danmuck/ndwire/internal/protocol"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/transport"
	"github.com/google/uuid"
)

var ErrReceiverRequired = errors.New("stream: receiver required")

// Receiver is the transport side a Consumer reads from.
type Receiver interface {
	Receive(ctx context.Context) ([][]byte, error)
	Close() error
}

// Message is one decoded stream emission.
type Message struct {
	StreamID uuid.UUID
	Name     string
	Array    ndarray.Array
	// Frames is the raw five-frame message as received.
	Frames [][]byte
}

// ConsumerConfig opens a Consumer on its own transport socket.
type ConsumerConfig struct {
	Endpoint string
	Kind     transport.Kind
	Mode     transport.Mode
	Session  session.Config
}

type Consumer struct {
	receiver Receiver
}

// OpenConsumer binds (or connects) a receiving socket. Kind defaults to PULL.
func OpenConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	kind := cfg.Kind
	if kind == 0 {
		kind = transport.Pull
	}
	if !kind.CanReceive() {
		return nil, fmt.Errorf("%w: consumer needs pull or sub, got %s", transport.ErrKindMismatch, kind)
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
	return NewConsumer(sock)
}

func NewConsumer(receiver Receiver) (*Consumer, error) {
	if receiver == nil {
		return nil, ErrReceiverRequired
	}
	return &Consumer{receiver: receiver}, nil
}

// Next blocks for the next message and decodes it. Transport errors are
// returned unchanged; malformed messages return codec errors and the consumer
// stays usable.
func (c *Consumer) Next(ctx context.Context) (Message, error) {
	frames, err := c.receiver.Receive(ctx)
	if err != nil {
		return Message{}, err
	}
	msg, err := DecodeMessage(frames)
	if err != nil {
		observability.RecordDecodeFailure(failureReason(err))
		return Message{}, err
	}
	observability.RecordConsume(msg.Name)
	return msg, nil
}

func (c *Consumer) Close() error {
	return c.receiver.Close()
}

// DecodeMessage splits the identity frames and decodes the array.
func DecodeMessage(frames [][]byte) (Message, error) {
	identity, arrayFrames, err := SplitIdentity(frames)
	if err != nil {
		return Message{}, err
	}
	arr, err := protocol.Decode(arrayFrames)
	if err != nil {
		return Message{}, err
	}
	return Message{
		StreamID: identity.ID,
		Name:     identity.Name,
		Array:    arr,
		Frames:   frames,
	}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrFrameCount):
		return "frame_count"
	case errors.Is(err, ErrInvalidStreamID):
		return "stream_id"
	case errors.Is(err, protocol.ErrUnknownElementType):
		return "unknown_element_type"
	case errors.Is(err, protocol.ErrShapeDecode):
		return "shape"
	case errors.Is(err, protocol.ErrSizeMismatch):
		return "size_mismatch"
	default:
		return "other"
	}
}
