package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/ndwire/internal/ndarray"
)

// shapeOrder is the byte order of the shape frame. It is the encoding host's
// native order; receivers on a host of the other endianness will misread it.
var shapeOrder = binary.NativeEndian

// Encode converts a into its three-frame representation:
// [dtype name, int32 shape, raw data]. The data frame aliases a.Data.
func Encode(a ndarray.Array) ([][]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, codecError(err)
	}
	shape, err := EncodeShape(a.Shape)
	if err != nil {
		return nil, err
	}
	return [][]byte{
		[]byte(a.DType),
		shape,
		a.Data,
	}, nil
}

// EncodeShape packs dims as consecutive int32 values.
func EncodeShape(dims []int) ([]byte, error) {
	buf := make([]byte, len(dims)*DimSize)
	for i, d := range dims {
		if d < 0 || d > math.MaxInt32 {
			return nil, fmt.Errorf("%w: shape[%d]=%d", ErrShapeOverflow, i, d)
		}
		shapeOrder.PutUint32(buf[i*DimSize:], uint32(int32(d)))
	}
	return buf, nil
}

// codecError maps array runtime validation failures onto the codec taxonomy.
func codecError(err error) error {
	switch {
	case errors.Is(err, ndarray.ErrUnknownDType):
		return fmt.Errorf("%w: %v", ErrUnknownElementType, err)
	case errors.Is(err, ndarray.ErrNegativeDim), errors.Is(err, ndarray.ErrTooLarge):
		return fmt.Errorf("%w: %v", ErrShapeDecode, err)
	case errors.Is(err, ndarray.ErrSizeMismatch):
		return fmt.Errorf("%w: %v", ErrSizeMismatch, err)
	default:
		return err
	}
}
