package ndarray

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Typed constructors and views lay elements out in the host's native byte
// order, which is what a raw-buffer dump of the same values looks like.

var order = binary.NativeEndian

func build[T any](dtype DType, shape []int, vals []T, put func([]byte, T)) (Array, error) {
	n, err := Product(shape)
	if err != nil {
		return Array{}, err
	}
	if n != len(vals) {
		return Array{}, fmt.Errorf("%w: %d values for shape %v", ErrSizeMismatch, len(vals), shape)
	}
	size := dtype.Size()
	data := make([]byte, n*size)
	for i, v := range vals {
		put(data[i*size:(i+1)*size], v)
	}
	return Array{DType: dtype, Shape: append([]int(nil), shape...), Data: data}, nil
}

func view[T any](a Array, dtype DType, get func([]byte) T) ([]T, error) {
	if a.DType != dtype {
		return nil, fmt.Errorf("%w: have %s want %s", ErrDTypeMismatch, a.DType, dtype)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	size := dtype.Size()
	out := make([]T, len(a.Data)/size)
	for i := range out {
		out[i] = get(a.Data[i*size : (i+1)*size])
	}
	return out, nil
}

func FromFloat64s(shape []int, vals []float64) (Array, error) {
	return build(Float64, shape, vals, func(b []byte, v float64) { order.PutUint64(b, math.Float64bits(v)) })
}

func FromFloat32s(shape []int, vals []float32) (Array, error) {
	return build(Float32, shape, vals, func(b []byte, v float32) { order.PutUint32(b, math.Float32bits(v)) })
}

func FromInt64s(shape []int, vals []int64) (Array, error) {
	return build(Int64, shape, vals, func(b []byte, v int64) { order.PutUint64(b, uint64(v)) })
}

func FromInt32s(shape []int, vals []int32) (Array, error) {
	return build(Int32, shape, vals, func(b []byte, v int32) { order.PutUint32(b, uint32(v)) })
}

func FromInt16s(shape []int, vals []int16) (Array, error) {
	return build(Int16, shape, vals, func(b []byte, v int16) { order.PutUint16(b, uint16(v)) })
}

func FromInt8s(shape []int, vals []int8) (Array, error) {
	return build(Int8, shape, vals, func(b []byte, v int8) { b[0] = byte(v) })
}

func FromUint64s(shape []int, vals []uint64) (Array, error) {
	return build(Uint64, shape, vals, func(b []byte, v uint64) { order.PutUint64(b, v) })
}

func FromUint32s(shape []int, vals []uint32) (Array, error) {
	return build(Uint32, shape, vals, func(b []byte, v uint32) { order.PutUint32(b, v) })
}

func FromUint16s(shape []int, vals []uint16) (Array, error) {
	return build(Uint16, shape, vals, func(b []byte, v uint16) { order.PutUint16(b, v) })
}

func FromUint8s(shape []int, vals []uint8) (Array, error) {
	return build(Uint8, shape, vals, func(b []byte, v uint8) { b[0] = v })
}

func FromBools(shape []int, vals []bool) (Array, error) {
	return build(Bool, shape, vals, func(b []byte, v bool) {
		if v {
			b[0] = 1
		}
	})
}

func (a Array) Float64s() ([]float64, error) {
	return view(a, Float64, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) })
}

func (a Array) Float32s() ([]float32, error) {
	return view(a, Float32, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) })
}

func (a Array) Int64s() ([]int64, error) {
	return view(a, Int64, func(b []byte) int64 { return int64(order.Uint64(b)) })
}

func (a Array) Int32s() ([]int32, error) {
	return view(a, Int32, func(b []byte) int32 { return int32(order.Uint32(b)) })
}

func (a Array) Int16s() ([]int16, error) {
	return view(a, Int16, func(b []byte) int16 { return int16(order.Uint16(b)) })
}

func (a Array) Int8s() ([]int8, error) {
	return view(a, Int8, func(b []byte) int8 { return int8(b[0]) })
}

func (a Array) Uint64s() ([]uint64, error) {
	return view(a, Uint64, func(b []byte) uint64 { return order.Uint64(b) })
}

func (a Array) Uint32s() ([]uint32, error) {
	return view(a, Uint32, func(b []byte) uint32 { return order.Uint32(b) })
}

func (a Array) Uint16s() ([]uint16, error) {
	return view(a, Uint16, func(b []byte) uint16 { return order.Uint16(b) })
}

func (a Array) Uint8s() ([]uint8, error) {
	return view(a, Uint8, func(b []byte) uint8 { return b[0] })
}

func (a Array) Bools() ([]bool, error) {
	return view(a, Bool, func(b []byte) bool { return b[0] != 0 })
}
