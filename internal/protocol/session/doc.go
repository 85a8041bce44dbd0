// Package session owns transport reliability settings shared by every socket.
//
// Ownership boundary:
// - connect/handshake/write timeouts
// - dial retry/backoff primitives
// - envelope limits handed to protocol/frame
package session
