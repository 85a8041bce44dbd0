package protocol

import "errors"

var (
	ErrUnknownElementType = errors.New("protocol: unknown element type")
	ErrShapeDecode        = errors.New("protocol: invalid shape frame")
	ErrShapeOverflow      = errors.New("protocol: dimension does not fit int32")
	ErrSizeMismatch       = errors.New("protocol: data frame size mismatch")
	ErrFrameCount         = errors.New("protocol: unexpected frame count")
)
