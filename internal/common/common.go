package common

import (
	"encoding/binary"
	"math"
	"reflect"
)

// Scalar is the set of fixed-width numbers stored in a fixed region.
type Scalar interface {
	int32 | int64 | float32 | float64
}

// FixedSize returns the byte width for fixed-size primitive kinds.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}

// Width returns the encoded width of T.
func Width[T Scalar]() int {
	var zero T
	switch any(zero).(type) {
	case int64, float64:
		return 8
	default:
		return 4
	}
}

// Load decodes a little-endian T from the head of b.
func Load[T Scalar](b []byte) T {
	var zero T
	switch any(zero).(type) {
	case int32:
		return T(int32(binary.LittleEndian.Uint32(b)))
	case int64:
		return T(int64(binary.LittleEndian.Uint64(b)))
	case float32:
		return T(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case float64:
		return T(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	panic("common: unsupported scalar")
}

// Store encodes v little-endian into the head of b.
func Store[T Scalar](b []byte, v T) {
	switch x := any(v).(type) {
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	default:
		panic("common: unsupported scalar")
	}
}

// LoadInt reads a signed little-endian integer of width 1, 2, 4 or 8.
func LoadInt(b []byte, width int) int64 {
	switch width {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

// StoreInt writes v as a little-endian integer of the given width.
// The caller guarantees v fits.
func StoreInt(b []byte, width int, v int64) {
	switch width {
	case 1:
		b[0] = byte(int8(v))
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

// AppendFloat32s appends the elements of v as 4-byte little-endian words.
func AppendFloat32s(dst []byte, v []float32) []byte {
	for _, f := range v {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// AppendInt32s appends the elements of v as 4-byte little-endian words.
func AppendInt32s(dst []byte, v []int32) []byte {
	for _, i := range v {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(i))
	}
	return dst
}

// Float32s decodes n little-endian float32 values from b.
func Float32s(b []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Int32s decodes n little-endian int32 values from b.
func Int32s(b []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// SameFloat32s compares by bit pattern so NaN payloads and signed zeros
// are told apart the same way raw fixed-region bytes are.
func SameFloat32s(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}
