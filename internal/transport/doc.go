// Package transport delivers frame lists between processes.
//
// A Socket has a kind (PUSH, PULL, PUB, SUB) selecting delivery semantics and
// a mode (connect or bind) selecting which side opens the listener. Every
// Send hands one complete frame list to the peer; a peer never observes a
// partial list.
//
// Supported endpoints:
//   - tcp://host:port       protocol/frame envelopes on a raw TCP stream
//   - ws://host:port/path   one binary WebSocket message per frame list
//
// Bind endpoints accept "*" as the host to listen on all interfaces.
package transport
