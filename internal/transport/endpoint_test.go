package transport

import (
	"errors"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw  string
		want Endpoint
		addr string
	}{
		{"tcp://127.0.0.1:8765", Endpoint{Scheme: "tcp", Host: "127.0.0.1", Port: "8765"}, "127.0.0.1:8765"},
		{"tcp://*:8765", Endpoint{Scheme: "tcp", Host: "*", Port: "8765"}, ":8765"},
		{"TCP://localhost:1", Endpoint{Scheme: "tcp", Host: "localhost", Port: "1"}, "localhost:1"},
		{"ws://127.0.0.1:9000", Endpoint{Scheme: "ws", Host: "127.0.0.1", Port: "9000", Path: "/"}, "127.0.0.1:9000"},
		{"ws://[::1]:9000/arrays", Endpoint{Scheme: "ws", Host: "::1", Port: "9000", Path: "/arrays"}, "[::1]:9000"},
	}
	for _, tc := range cases {
		got, err := ParseEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %+v want %+v", tc.raw, got, tc.want)
		}
		if got.Address() != tc.addr {
			t.Fatalf("address %q: got %q want %q", tc.raw, got.Address(), tc.addr)
		}
	}
}

func TestParseEndpointErrors(t *testing.T) {
	cases := map[string]error{
		"127.0.0.1:8765":       ErrInvalidEndpoint,
		"tcp://127.0.0.1":      ErrInvalidEndpoint,
		"tcp://127.0.0.1:1/x":  ErrInvalidEndpoint,
		"ipc:///tmp/sock:1":    ErrUnsupportedScheme,
		"udp://127.0.0.1:8765": ErrUnsupportedScheme,
		"tcp://":               ErrInvalidEndpoint,
	}
	for raw, want := range cases {
		if _, err := ParseEndpoint(raw); !errors.Is(err, want) {
			t.Fatalf("parse %q: expected %v, got %v", raw, want, err)
		}
	}
}

func TestParseKindAndMode(t *testing.T) {
	for raw, want := range map[string]Kind{"push": Push, "PULL": Pull, "pub": Pub, "subscribe": Sub} {
		got, err := ParseKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseKind("dealer"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if m, err := ParseMode(""); err != nil || m != Connect {
		t.Fatalf("empty mode should default to connect: %v %v", m, err)
	}
	if _, err := ParseMode("listen"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if !Push.CanSend() || Push.CanReceive() || !Sub.CanReceive() || Sub.CanSend() {
		t.Fatalf("kind capabilities wrong")
	}
}
