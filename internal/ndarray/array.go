package ndarray

import (
	"bytes"
	"fmt"
	"math"
	"slices"
)

// Array is a contiguous row-major n-dimensional array.
//
// Data is treated as immutable once an Array is built. New does not copy the
// buffer, so callers hand over ownership.
type Array struct {
	DType DType
	Shape []int
	Data  []byte
}

// New validates dtype, shape and buffer length and returns the array.
func New(dtype DType, shape []int, data []byte) (Array, error) {
	a := Array{DType: dtype, Shape: shape, Data: data}
	if err := a.Validate(); err != nil {
		return Array{}, err
	}
	return a, nil
}

// Validate checks the array invariants.
func (a Array) Validate() error {
	if !a.DType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDType, string(a.DType))
	}
	n, err := Product(a.Shape)
	if err != nil {
		return err
	}
	if n > math.MaxInt/a.DType.Size() {
		return fmt.Errorf("%w: shape %v", ErrTooLarge, a.Shape)
	}
	if want := n * a.DType.Size(); len(a.Data) != want {
		return fmt.Errorf("%w: got %d bytes want %d (%s%v)", ErrSizeMismatch, len(a.Data), want, a.DType, a.Shape)
	}
	return nil
}

// Product returns the element count for shape. An empty shape is a scalar.
func Product(shape []int) (int, error) {
	n := 1
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: shape[%d]=%d", ErrNegativeDim, i, d)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v", ErrTooLarge, shape)
		}
		n *= d
	}
	return n, nil
}

// Len is the number of elements.
func (a Array) Len() int {
	n, _ := Product(a.Shape)
	return n
}

func (a Array) NDim() int {
	return len(a.Shape)
}

// Nbytes is the buffer length implied by dtype and shape.
func (a Array) Nbytes() int {
	return a.Len() * a.DType.Size()
}

// Equal reports whether dtype, shape and bytes are identical.
func (a Array) Equal(b Array) bool {
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape) && bytes.Equal(a.Data, b.Data)
}

// Clone deep-copies shape and data.
func (a Array) Clone() Array {
	return Array{
		DType: a.DType,
		Shape: slices.Clone(a.Shape),
		Data:  bytes.Clone(a.Data),
	}
}

func (a Array) String() string {
	return fmt.Sprintf("ndarray(%s, shape=%v, nbytes=%d)", a.DType, a.Shape, len(a.Data))
}
