package protocol

import (
	"bytes"
	"fmt"
	"math"

	"github.com/danmuck/ndwire/internal/ndarray"
)

// Decode reconstructs the array carried by a three-frame list produced by
// Encode. It fails without returning a partial array when the dtype tag is
// unknown, the shape frame is malformed, or the data frame length disagrees
// with dtype and shape.
func Decode(frames [][]byte) (ndarray.Array, error) {
	info, err := DecodeInfo(frames)
	if err != nil {
		return ndarray.Array{}, err
	}
	data := frames[FrameData]
	if len(data) != info.Nbytes {
		return ndarray.Array{}, fmt.Errorf(
			"%w: got %d bytes want %d (%s%v)",
			ErrSizeMismatch, len(data), info.Nbytes, info.DType, info.Shape,
		)
	}
	return ndarray.Array{
		DType: info.DType,
		Shape: info.Shape,
		Data:  bytes.Clone(data),
	}, nil
}

// DecodeInfo parses the dtype and shape frames without touching the data frame.
func DecodeInfo(frames [][]byte) (Info, error) {
	if len(frames) != ArrayFrames {
		return Info{}, fmt.Errorf("%w: got %d want %d", ErrFrameCount, len(frames), ArrayFrames)
	}
	dtype, err := ndarray.ParseDType(string(frames[FrameDType]))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownElementType, frames[FrameDType])
	}
	shape, err := DecodeShape(frames[FrameShape])
	if err != nil {
		return Info{}, err
	}
	n, err := ndarray.Product(shape)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrShapeDecode, err)
	}
	if n > math.MaxInt/dtype.Size() {
		return Info{}, fmt.Errorf("%w: %s%v overflows", ErrShapeDecode, dtype, shape)
	}
	return Info{DType: dtype, Shape: shape, Nbytes: n * dtype.Size()}, nil
}

// DecodeShape unpacks an int32 shape frame.
func DecodeShape(b []byte) ([]int, error) {
	if len(b)%DimSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrShapeDecode, len(b), DimSize)
	}
	dims := make([]int, len(b)/DimSize)
	for i := range dims {
		d := int32(shapeOrder.Uint32(b[i*DimSize:]))
		if d < 0 {
			return nil, fmt.Errorf("%w: shape[%d]=%d", ErrShapeDecode, i, d)
		}
		dims[i] = int(d)
	}
	return dims, nil
}
