package stream

import (
	"errors"
	"fmt"

	"github.com/danmuck/ndwire/internal/protocol"
	"github.com/google/uuid"
)

const (
	FrameStreamID   = 0
	FrameStreamName = 1
	// IdentityFrames is the number of frames prepended to an encoded array.
	IdentityFrames = 2
	// StreamFrames is the frame count of one streamed array message.
	StreamFrames = IdentityFrames + protocol.ArrayFrames
	// StreamIDSize is the fixed length of the stream id frame.
	StreamIDSize = 16
)

var ErrInvalidStreamID = errors.New("stream: invalid stream id frame")

// Identity names one logical stream across emissions.
type Identity struct {
	ID   uuid.UUID
	Name string
}

// NewIdentity draws a random (v4) id for name.
func NewIdentity(name string) (Identity, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: id, Name: name}, nil
}

// Frames renders the identity as the two leading frames.
func (id Identity) Frames() [][]byte {
	raw := id.ID
	return [][]byte{raw[:], []byte(id.Name)}
}

// Wrap prepends the identity frames to an encoded array.
func (id Identity) Wrap(array [][]byte) [][]byte {
	out := make([][]byte, 0, IdentityFrames+len(array))
	out = append(out, id.Frames()...)
	return append(out, array...)
}

// SplitIdentity separates a streamed message into its identity and the
// three array frames.
func SplitIdentity(frames [][]byte) (Identity, [][]byte, error) {
	if len(frames) != StreamFrames {
		return Identity{}, nil, fmt.Errorf("%w: got %d want %d", protocol.ErrFrameCount, len(frames), StreamFrames)
	}
	id, err := uuid.FromBytes(frames[FrameStreamID])
	if err != nil {
		return Identity{}, nil, fmt.Errorf("%w: %v", ErrInvalidStreamID, err)
	}
	return Identity{ID: id, Name: string(frames[FrameStreamName])}, frames[IdentityFrames:], nil
}
