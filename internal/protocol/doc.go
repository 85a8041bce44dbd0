// Package protocol owns the array wire contract.
//
// Ownership boundary:
// - array <-> frame list codec (dtype, shape, data)
// - shape frame primitives
// - codec error taxonomy
//
// Multipart framing on a byte stream lives in protocol/frame; reliability
// settings for the transports live in protocol/session.
package protocol
