package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	SchemeTCP = "tcp"
	SchemeWS  = "ws"
)

var (
	ErrInvalidEndpoint   = errors.New("transport: invalid endpoint")
	ErrUnsupportedScheme = errors.New("transport: unsupported endpoint scheme")
)

// Endpoint is a parsed protocol://host:port[/path] address.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
	Path   string
}

func ParseEndpoint(raw string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || rest == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
	}
	scheme = strings.ToLower(scheme)
	if scheme != SchemeTCP && scheme != SchemeWS {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	hostport, path := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostport, path = rest[:i], rest[i:]
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil || port == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
	}

	switch scheme {
	case SchemeTCP:
		if path != "" {
			return Endpoint{}, fmt.Errorf("%w: tcp endpoint has a path: %q", ErrInvalidEndpoint, raw)
		}
	case SchemeWS:
		if path == "" {
			path = "/"
		}
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// Address is the host:port pair for net.Dial and net.Listen. A "*" host maps
// to all interfaces.
func (e Endpoint) Address() string {
	host := e.Host
	if host == "*" {
		host = ""
	}
	return net.JoinHostPort(host, e.Port)
}

// URL is the dialable WebSocket URL for ws endpoints.
func (e Endpoint) URL() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, e.Port) + e.Path
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, e.Port) + e.Path
}
