// Package store records received stream messages in a Pebble database so they
// can be inspected or replayed later.
//
// Keys are "rec/<stream name>/" followed by a big-endian uint64 sequence, so
// iteration within a stream is in arrival order. Values are the full
// five-frame message rendered as a protocol/frame envelope.
package store
