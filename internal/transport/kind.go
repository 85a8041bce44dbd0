package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("transport: unknown socket kind")
	ErrUnknownMode = errors.New("transport: unknown socket mode")
)

// Kind selects delivery semantics.
type Kind int

const (
	// Push delivers each message to exactly one peer, round robin.
	Push Kind = iota + 1
	// Pull fair-queues messages from every peer.
	Pull
	// Pub delivers each message to every peer and drops it when there are none.
	Pub
	// Sub receives everything its publishers send.
	Sub
)

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "push":
		return Push, nil
	case "pull":
		return Pull, nil
	case "pub", "publish":
		return Pub, nil
	case "sub", "subscribe":
		return Sub, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

func (k Kind) String() string {
	switch k {
	case Push:
		return "push"
	case Pull:
		return "pull"
	case Pub:
		return "pub"
	case Sub:
		return "sub"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) Valid() bool {
	return k >= Push && k <= Sub
}

func (k Kind) CanSend() bool {
	return k == Push || k == Pub
}

func (k Kind) CanReceive() bool {
	return k == Pull || k == Sub
}

// Mode selects whether the socket dials its endpoint or listens on it.
type Mode int

const (
	Connect Mode = iota
	Bind
)

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "connect":
		return Connect, nil
	case "bind":
		return Bind, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

func (m Mode) String() string {
	if m == Bind {
		return "bind"
	}
	return "connect"
}
