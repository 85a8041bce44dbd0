package ndarray

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnknownDType  = errors.New("ndarray: unknown element type")
	ErrDTypeMismatch = errors.New("ndarray: element type mismatch")
	ErrNegativeDim   = errors.New("ndarray: negative dimension")
	ErrSizeMismatch  = errors.New("ndarray: buffer size does not match shape")
	ErrTooLarge      = errors.New("ndarray: element count overflows")
)

// DType is the textual element type tag, named the way numpy names dtypes.
type DType string

const (
	Bool       DType = "bool"
	Int8       DType = "int8"
	Int16      DType = "int16"
	Int32      DType = "int32"
	Int64      DType = "int64"
	Uint8      DType = "uint8"
	Uint16     DType = "uint16"
	Uint32     DType = "uint32"
	Uint64     DType = "uint64"
	Float16    DType = "float16"
	Float32    DType = "float32"
	Float64    DType = "float64"
	Complex64  DType = "complex64"
	Complex128 DType = "complex128"
)

// Kind is the numeric kind character of a dtype.
type Kind byte

const (
	KindBool    Kind = 'b'
	KindInt     Kind = 'i'
	KindUint    Kind = 'u'
	KindFloat   Kind = 'f'
	KindComplex Kind = 'c'
)

type dtypeInfo struct {
	size int
	kind Kind
}

var dtypes = map[DType]dtypeInfo{
	Bool:       {1, KindBool},
	Int8:       {1, KindInt},
	Int16:      {2, KindInt},
	Int32:      {4, KindInt},
	Int64:      {8, KindInt},
	Uint8:      {1, KindUint},
	Uint16:     {2, KindUint},
	Uint32:     {4, KindUint},
	Uint64:     {8, KindUint},
	Float16:    {2, KindFloat},
	Float32:    {4, KindFloat},
	Float64:    {8, KindFloat},
	Complex64:  {8, KindComplex},
	Complex128: {16, KindComplex},
}

// ParseDType resolves a tag against the closed vocabulary. Matching is exact.
func ParseDType(tag string) (DType, error) {
	d := DType(tag)
	if _, ok := dtypes[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDType, tag)
	}
	return d, nil
}

// Valid reports whether d is in the vocabulary.
func (d DType) Valid() bool {
	_, ok := dtypes[d]
	return ok
}

// Size is the element width in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	return dtypes[d].size
}

func (d DType) Kind() Kind {
	return dtypes[d].kind
}

func (d DType) String() string {
	return string(d)
}

// DTypes lists the vocabulary sorted by name.
func DTypes() []DType {
	out := make([]DType, 0, len(dtypes))
	for d := range dtypes {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}
