package stream

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/danmuck/ndwire/internal/ndarray"
	"github.com/danmuck/ndwire/internal/protocol"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/testutil/testlog"
	"github.com/danmuck/ndwire/internal/transport"
)

type recordingSender struct {
	sent   [][][]byte
	err    error
	closed int
}

func (s *recordingSender) Send(_ context.Context, frames [][]byte) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, frames)
	return nil
}

func (s *recordingSender) Close() error {
	s.closed++
	return nil
}

type queueReceiver struct {
	queue [][][]byte
}

func (r *queueReceiver) Receive(ctx context.Context) ([][]byte, error) {
	if len(r.queue) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := r.queue[0]
	r.queue = r.queue[1:]
	return next, nil
}

func (r *queueReceiver) Close() error { return nil }

func uniform(n int) Producer {
	rng := rand.New(rand.NewPCG(1, 2))
	return func() (ndarray.Array, error) {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = rng.Float64() * 100
		}
		return ndarray.FromFloat64s([]int{n}, vals)
	}
}

func TestEmitOnceSendsFiveFrames(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	pub, err := NewPublisher("demo", sender)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := pub.EmitOnce(context.Background(), uniform(10)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if len(msg) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(msg))
	}
	id := pub.ID()
	if !bytes.Equal(msg[FrameStreamID], id[:]) || len(msg[FrameStreamID]) != StreamIDSize {
		t.Fatalf("stream id frame mismatch: %x", msg[FrameStreamID])
	}
	if string(msg[FrameStreamName]) != "demo" {
		t.Fatalf("stream name frame: %q", msg[FrameStreamName])
	}
	if string(msg[IdentityFrames+protocol.FrameDType]) != "float64" {
		t.Fatalf("dtype frame: %q", msg[IdentityFrames+protocol.FrameDType])
	}
}

func TestIdentityIsStableAcrossEmissions(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	pub, _ := NewPublisher("stable", sender)
	emit := pub.Wrap(uniform(4))
	for i := 0; i < 3; i++ {
		if err := emit(context.Background()); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	if err := pub.EmitOnce(context.Background(), uniform(4)); err != nil {
		t.Fatalf("direct emit: %v", err)
	}
	if len(sender.sent) != 4 {
		t.Fatalf("expected 4 sends, got %d", len(sender.sent))
	}
	for i, msg := range sender.sent {
		if !bytes.Equal(msg[0], sender.sent[0][0]) || string(msg[1]) != "stable" {
			t.Fatalf("identity changed on emission %d", i)
		}
	}

	other, _ := NewPublisher("stable", &recordingSender{})
	if other.ID() == pub.ID() {
		t.Fatalf("two publishers share a stream id")
	}
}

func TestEmitOnceProducerError(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	pub, _ := NewPublisher("demo", sender)
	cause := errors.New("sensor offline")
	err := pub.EmitOnce(context.Background(), func() (ndarray.Array, error) {
		return ndarray.Array{}, cause
	})
	if !errors.Is(err, ErrProducer) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrProducer wrapping cause, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("nothing should be sent after a producer failure")
	}
}

func TestEmitOnceInvalidArray(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	pub, _ := NewPublisher("demo", sender)
	err := pub.EmitOnce(context.Background(), func() (ndarray.Array, error) {
		return ndarray.Array{DType: ndarray.Float64, Shape: []int{2}, Data: make([]byte, 3)}, nil
	})
	if !errors.Is(err, protocol.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("invalid array must not be sent")
	}
}

func TestEmitOnceTransportError(t *testing.T) {
	testlog.Start(t)

	cause := errors.New("connection reset")
	pub, _ := NewPublisher("demo", &recordingSender{err: cause})
	err := pub.EmitOnce(context.Background(), uniform(2))
	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrTransport wrapping cause, got %v", err)
	}
}

func TestPublisherCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	pub, _ := NewPublisher("demo", sender)
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if sender.closed != 1 {
		t.Fatalf("sender closed %d times", sender.closed)
	}
	if err := pub.EmitOnce(context.Background(), uniform(1)); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
}

func TestNewPublisherValidation(t *testing.T) {
	testlog.Start(t)

	if _, err := NewPublisher("  ", &recordingSender{}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if _, err := NewPublisher("demo", nil); !errors.Is(err, ErrSenderRequired) {
		t.Fatalf("expected ErrSenderRequired, got %v", err)
	}
}

func TestConsumerDecodesPublishedMessage(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	pub, _ := NewPublisher("vec", sender)
	produce := uniform(10)
	var want ndarray.Array
	err := pub.EmitOnce(context.Background(), func() (ndarray.Array, error) {
		a, err := produce()
		want = a
		return a, err
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	cons, _ := NewConsumer(&queueReceiver{queue: sender.sent})
	msg, err := cons.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.StreamID != pub.ID() || msg.Name != "vec" {
		t.Fatalf("identity mismatch: %v %q", msg.StreamID, msg.Name)
	}
	if !msg.Array.Equal(want) {
		t.Fatalf("array mismatch: got %v want %v", msg.Array, want)
	}
}

func TestConsumerRejectsMalformedMessages(t *testing.T) {
	testlog.Start(t)

	id, _ := NewIdentity("bad")
	good, _ := ndarray.FromInt32s([]int{2}, []int32{1, 2})
	frames, _ := protocol.Encode(good)

	cases := []struct {
		name  string
		msg   [][]byte
		check error
	}{
		{"bare array", frames, protocol.ErrFrameCount},
		{"short id", append([][]byte{{1, 2, 3}, []byte("bad")}, frames...), ErrInvalidStreamID},
		{"unknown dtype", id.Wrap([][]byte{[]byte("bogus"), frames[1], frames[2]}), protocol.ErrUnknownElementType},
		{"truncated data", id.Wrap([][]byte{frames[0], frames[1], frames[2][:7]}), protocol.ErrSizeMismatch},
	}
	queue := make([][][]byte, 0, len(cases))
	for _, tc := range cases {
		queue = append(queue, tc.msg)
	}
	cons, _ := NewConsumer(&queueReceiver{queue: queue})
	for _, tc := range cases {
		if _, err := cons.Next(context.Background()); !errors.Is(err, tc.check) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.check, err)
		}
	}
}

func TestPublisherToConsumerOverTCP(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess := session.DefaultConfig()
	sess.Backoff = session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}

	sock, err := transport.Open(ctx, transport.Options{
		Endpoint: "tcp://127.0.0.1:0",
		Kind:     transport.Pull,
		Mode:     transport.Bind,
		Session:  sess,
	})
	if err != nil {
		t.Fatalf("open pull: %v", err)
	}
	cons, _ := NewConsumer(sock)
	defer cons.Close()

	pub, err := Open(ctx, Config{
		Name:     "tcp-demo",
		Endpoint: "tcp://" + sock.Addr().String(),
		Session:  sess,
	})
	if err != nil {
		t.Fatalf("open publisher: %v", err)
	}
	defer pub.Close()

	sent := make([]ndarray.Array, 0, 3)
	produce := uniform(6)
	for i := 0; i < 3; i++ {
		err := pub.EmitOnce(ctx, func() (ndarray.Array, error) {
			a, err := produce()
			sent = append(sent, a)
			return a, err
		})
		if err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	for i := range sent {
		msg, err := cons.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if msg.Name != "tcp-demo" || msg.StreamID != pub.ID() {
			t.Fatalf("identity mismatch on %d", i)
		}
		got, _ := msg.Array.Float64s()
		want, _ := sent[i].Float64s()
		if !slices.Equal(got, want) {
			t.Fatalf("values mismatch on %d", i)
		}
	}
}

func TestOpenRejectsReceivingKind(t *testing.T) {
	testlog.Start(t)

	_, err := Open(context.Background(), Config{Name: "x", Endpoint: "tcp://127.0.0.1:0", Kind: transport.Pull})
	if !errors.Is(err, transport.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
	_, err = OpenConsumer(context.Background(), ConsumerConfig{Endpoint: "tcp://127.0.0.1:0", Kind: transport.Push})
	if !errors.Is(err, transport.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}
