package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/danmuck/ndwire/internal/ndarray"
	"github.com/danmuck/ndwire/internal/stream"
)

// uniformProducer returns a producer of arrays filled with values drawn
// uniformly from [0, 100). Integer dtypes draw whole numbers; bool draws
// true or false with equal odds.
func uniformProducer(dtype ndarray.DType, shape []int, rng *rand.Rand) (stream.Producer, error) {
	n, err := ndarray.Product(shape)
	if err != nil {
		return nil, err
	}
	shape = append([]int(nil), shape...)

	switch dtype {
	case ndarray.Float64:
		return func() (ndarray.Array, error) {
			return ndarray.FromFloat64s(shape, fill(n, func() float64 { return rng.Float64() * 100 }))
		}, nil
	case ndarray.Float32:
		return func() (ndarray.Array, error) {
			return ndarray.FromFloat32s(shape, fill(n, func() float32 { return rng.Float32() * 100 }))
		}, nil
	case ndarray.Int64:
		return func() (ndarray.Array, error) {
			return ndarray.FromInt64s(shape, fill(n, func() int64 { return rng.Int64N(100) }))
		}, nil
	case ndarray.Int32:
		return func() (ndarray.Array, error) {
			return ndarray.FromInt32s(shape, fill(n, func() int32 { return rng.Int32N(100) }))
		}, nil
	case ndarray.Int16:
		return func() (ndarray.Array, error) {
			return ndarray.FromInt16s(shape, fill(n, func() int16 { return int16(rng.IntN(100)) }))
		}, nil
	case ndarray.Int8:
		return func() (ndarray.Array, error) {
			return ndarray.FromInt8s(shape, fill(n, func() int8 { return int8(rng.IntN(100)) }))
		}, nil
	case ndarray.Uint64:
		return func() (ndarray.Array, error) {
			return ndarray.FromUint64s(shape, fill(n, func() uint64 { return rng.Uint64N(100) }))
		}, nil
	case ndarray.Uint32:
		return func() (ndarray.Array, error) {
			return ndarray.FromUint32s(shape, fill(n, func() uint32 { return rng.Uint32N(100) }))
		}, nil
	case ndarray.Uint16:
		return func() (ndarray.Array, error) {
			return ndarray.FromUint16s(shape, fill(n, func() uint16 { return uint16(rng.IntN(100)) }))
		}, nil
	case ndarray.Uint8:
		return func() (ndarray.Array, error) {
			return ndarray.FromUint8s(shape, fill(n, func() uint8 { return uint8(rng.IntN(100)) }))
		}, nil
	case ndarray.Bool:
		return func() (ndarray.Array, error) {
			return ndarray.FromBools(shape, fill(n, func() bool { return rng.IntN(2) == 1 }))
		}, nil
	default:
		return nil, fmt.Errorf("no random generator for dtype %s", dtype)
	}
}

func fill[T any](n int, next func() T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = next()
	}
	return out
}
