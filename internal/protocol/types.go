package protocol

import "github.com/danmuck/ndwire/internal/ndarray"

// Frame positions within an encoded array message.
const (
	FrameDType = 0
	FrameShape = 1
	FrameData  = 2

	// ArrayFrames is the frame count of a bare encoded array.
	ArrayFrames = 3
	// DimSize is the width of one encoded dimension.
	DimSize = 4
)

// Info is the header-level view of an encoded array: everything but the
// reconstructed buffer.
type Info struct {
	DType  ndarray.DType
	Shape  []int
	Nbytes int
}
