package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ndwire/internal/protocol/frame"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/testutil/testlog"
)

func testSession() session.Config {
	cfg := session.DefaultConfig()
	cfg.MaxConnectAttempts = 3
	cfg.Backoff = session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	return cfg
}

func openSocket(t *testing.T, endpoint string, kind Kind, mode Mode) *Socket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, Options{Endpoint: endpoint, Kind: kind, Mode: mode, Session: testSession()})
	if err != nil {
		t.Fatalf("open %s %s %s: %v", kind, mode, endpoint, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boundEndpoint(scheme string, s *Socket, path string) string {
	return scheme + "://" + s.Addr().String() + path
}

func waitPeers(t *testing.T, s *Socket, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Peers() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d peers, have %d", n, s.Peers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, s *Socket) [][]byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames, err := s.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return frames
}

func message(i int) [][]byte {
	return [][]byte{
		[]byte("0123456789abcdef"),
		[]byte("demo"),
		[]byte("uint8"),
		{1, 0, 0, 0},
		{byte(i)},
	}
}

func TestPushConnectToPullBind(t *testing.T) {
	testlog.Start(t)

	pull := openSocket(t, "tcp://127.0.0.1:0", Pull, Bind)
	push := openSocket(t, boundEndpoint("tcp", pull, ""), Push, Connect)

	for i := 0; i < 3; i++ {
		if err := push.Send(context.Background(), message(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		got := receive(t, pull)
		if len(got) != 5 {
			t.Fatalf("expected 5 frames, got %d", len(got))
		}
		if got[4][0] != byte(i) {
			t.Fatalf("out of order: got %d want %d", got[4][0], i)
		}
	}
}

func TestPushBindRoundRobin(t *testing.T) {
	testlog.Start(t)

	push := openSocket(t, "tcp://127.0.0.1:0", Push, Bind)
	a := openSocket(t, boundEndpoint("tcp", push, ""), Pull, Connect)
	b := openSocket(t, boundEndpoint("tcp", push, ""), Pull, Connect)
	waitPeers(t, push, 2)

	for i := 0; i < 4; i++ {
		if err := push.Send(context.Background(), message(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	seen := map[byte]bool{}
	for _, s := range []*Socket{a, b, a, b} {
		got := receive(t, s)
		seen[got[4][0]] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected every message delivered exactly once, saw %v", seen)
	}
}

func TestPubFanOut(t *testing.T) {
	testlog.Start(t)

	pub := openSocket(t, "tcp://127.0.0.1:0", Pub, Bind)
	subs := []*Socket{
		openSocket(t, boundEndpoint("tcp", pub, ""), Sub, Connect),
		openSocket(t, boundEndpoint("tcp", pub, ""), Sub, Connect),
	}
	waitPeers(t, pub, 2)

	for i := 0; i < 3; i++ {
		if err := pub.Send(context.Background(), message(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for n, sub := range subs {
		for i := 0; i < 3; i++ {
			got := receive(t, sub)
			if got[4][0] != byte(i) {
				t.Fatalf("sub %d: got %d want %d", n, got[4][0], i)
			}
		}
	}
}

func TestPubWithoutPeersDrops(t *testing.T) {
	testlog.Start(t)

	pub := openSocket(t, "tcp://127.0.0.1:0", Pub, Bind)
	if err := pub.Send(context.Background(), message(0)); err != nil {
		t.Fatalf("pub without peers should drop silently, got %v", err)
	}
}

func TestPushWithoutPeersBlocksUntilContextDone(t *testing.T) {
	testlog.Start(t)

	push := openSocket(t, "tcp://127.0.0.1:0", Push, Bind)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := push.Send(ctx, message(0)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestPushWaitsForLatePeer(t *testing.T) {
	testlog.Start(t)

	push := openSocket(t, "tcp://127.0.0.1:0", Push, Bind)
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- push.Send(ctx, message(7))
	}()

	pull := openSocket(t, boundEndpoint("tcp", push, ""), Pull, Connect)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := receive(t, pull); got[4][0] != 7 {
		t.Fatalf("unexpected payload %v", got[4])
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	testlog.Start(t)

	pull := openSocket(t, "ws://127.0.0.1:0/arrays", Pull, Bind)
	push := openSocket(t, boundEndpoint("ws", pull, "/arrays"), Push, Connect)

	if err := push.Send(context.Background(), message(3)); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := receive(t, pull)
	if len(got) != 5 || string(got[1]) != "demo" || got[4][0] != 3 {
		t.Fatalf("unexpected frames: %q", got)
	}
}

func TestKindMismatch(t *testing.T) {
	testlog.Start(t)

	pull := openSocket(t, "tcp://127.0.0.1:0", Pull, Bind)
	if err := pull.Send(context.Background(), message(0)); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch on send, got %v", err)
	}
	pub := openSocket(t, "tcp://127.0.0.1:0", Pub, Bind)
	if _, err := pub.Receive(context.Background()); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch on receive, got %v", err)
	}
}

func TestCloseUnblocksAndIsIdempotent(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pull, err := Open(ctx, Options{Endpoint: "tcp://127.0.0.1:0", Kind: Pull, Mode: Bind, Session: testSession()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := pull.Receive(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := pull.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := pull.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := pull.Send(context.Background(), nil); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}

func TestConnectFailsAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := testSession()
	cfg.MaxConnectAttempts = 2
	_, err = Open(context.Background(), Options{
		Endpoint: fmt.Sprintf("tcp://%s", addr),
		Kind:     Push,
		Mode:     Connect,
		Session:  cfg,
	})
	if err == nil {
		t.Fatalf("expected dial failure")
	}
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	testlog.Start(t)

	_, err := Open(context.Background(), Options{Endpoint: "tcp://127.0.0.1:0", Mode: Bind})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestOversizedSendKeepsPeers(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := testSession()
	cfg.Limits.MaxPayloadBytes = 1024

	for _, kind := range []Kind{Push, Pub} {
		s, err := Open(ctx, Options{Endpoint: "tcp://127.0.0.1:0", Kind: kind, Mode: Bind, Session: cfg})
		if err != nil {
			t.Fatalf("open %s: %v", kind, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		peerKind := Pull
		if kind == Pub {
			peerKind = Sub
		}
		a := openSocket(t, boundEndpoint("tcp", s, ""), peerKind, Connect)
		openSocket(t, boundEndpoint("tcp", s, ""), peerKind, Connect)
		waitPeers(t, s, 2)

		oversized := message(0)
		oversized[4] = make([]byte, 4096)
		err = s.Send(ctx, oversized)
		if !errors.Is(err, frame.ErrPayloadTooLarge) {
			t.Fatalf("%s: expected ErrPayloadTooLarge, got %v", kind, err)
		}
		if errors.Is(err, ErrSendFailed) {
			t.Fatalf("%s: limit error must not be reported as a send failure", kind)
		}
		tooMany := make([][]byte, cfg.Limits.MaxFrames+1)
		if err := s.Send(ctx, tooMany); !errors.Is(err, frame.ErrTooManyFrames) {
			t.Fatalf("%s: expected ErrTooManyFrames, got %v", kind, err)
		}
		if n := s.Peers(); n != 2 {
			t.Fatalf("%s: rejected messages dropped peers: have %d want 2", kind, n)
		}

		if err := s.Send(ctx, message(9)); err != nil {
			t.Fatalf("%s: send after rejection: %v", kind, err)
		}
		if kind == Pub {
			if got := receive(t, a); got[4][0] != 9 {
				t.Fatalf("pub: unexpected payload %v", got[4])
			}
		}
	}
}

func TestBoundSocketLabelUsesResolvedAddress(t *testing.T) {
	testlog.Start(t)

	pull := openSocket(t, "tcp://127.0.0.1:0", Pull, Bind)
	want := "tcp://" + pull.Addr().String()
	if pull.Label() != want {
		t.Fatalf("label %q, want %q", pull.Label(), want)
	}
	if strings.HasSuffix(pull.Label(), ":0") {
		t.Fatalf("label still carries the requested port: %q", pull.Label())
	}

	ws := openSocket(t, "ws://127.0.0.1:0/arrays", Pull, Bind)
	if want := "ws://" + ws.Addr().String() + "/arrays"; ws.Label() != want {
		t.Fatalf("ws label %q, want %q", ws.Label(), want)
	}

	push := openSocket(t, want, Push, Connect)
	if push.Label() != want {
		t.Fatalf("connect label %q, want %q", push.Label(), want)
	}
}
