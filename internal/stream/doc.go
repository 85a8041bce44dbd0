// Package stream publishes and consumes named array streams.
//
// A Publisher owns one transport socket and one stream identity (a random
// 16-byte id plus a caller-chosen name). Every emission runs a producer,
// encodes the array with protocol.Encode, prepends the identity and sends
// the five frames as one message:
//
//	[stream id, stream name, dtype, shape, data]
//
// A Consumer reverses the process on the receiving side.
//
// Publishers are single-writer: callers serialize EmitOnce on a given
// instance. Consumers are likewise meant for one reading goroutine.
package stream
