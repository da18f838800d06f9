package pmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire layout: one discriminator byte (the Kind) followed by a little-endian
// payload. Strings and vectors are length-prefixed with uint32, maps are a
// uint32 entry count followed by (string key, value) pairs. Nested maps use
// the same layout recursively.

var (
	// ErrTruncated is returned when the input ends inside a value.
	ErrTruncated = errors.New("pmt: truncated input")
)

// Marshal encodes a value into its canonical wire form.
func Marshal(v Value) []byte {
	return AppendValue(nil, v)
}

// Unmarshal decodes a single value and requires the input to be fully
// consumed.
func Unmarshal(b []byte) (Value, error) {
	v, rest, err := ReadValue(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("pmt: %d trailing bytes after value", len(rest))
	}
	return v, nil
}

// AppendValue appends the canonical encoding of v to dst.
func AppendValue(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind()))
	switch val := v.(type) {
	case Bool:
		return appendBool(dst, bool(val))
	case Int8:
		return append(dst, byte(val))
	case Int16:
		return binary.LittleEndian.AppendUint16(dst, uint16(val))
	case Int32:
		return binary.LittleEndian.AppendUint32(dst, uint32(val))
	case Int64:
		return binary.LittleEndian.AppendUint64(dst, uint64(val))
	case Uint8:
		return append(dst, byte(val))
	case Uint16:
		return binary.LittleEndian.AppendUint16(dst, uint16(val))
	case Uint32:
		return binary.LittleEndian.AppendUint32(dst, uint32(val))
	case Uint64:
		return binary.LittleEndian.AppendUint64(dst, uint64(val))
	case Float32:
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(val)))
	case Float64:
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(float64(val)))
	case Complex64:
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(real(val)))
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(imag(val)))
	case Complex128:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(real(val)))
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(imag(val)))
	case String:
		return appendString(dst, string(val))
	case *Map:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(val.Len()))
		val.Range(func(k string, nested Value) bool {
			dst = appendString(dst, k)
			dst = AppendValue(dst, nested)
			return true
		})
		return dst
	}
	return appendVector(dst, v)
}

func appendVector(dst []byte, v Value) []byte {
	switch vec := v.(type) {
	case Vector[bool]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = appendBool(dst, e)
		}
	case Vector[int8]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = append(dst, byte(e))
		}
	case Vector[int16]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(e))
		}
	case Vector[int32]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(e))
		}
	case Vector[int64]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint64(dst, uint64(e))
		}
	case Vector[uint8]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = append(dst, e)
		}
	case Vector[uint16]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint16(dst, e)
		}
	case Vector[uint32]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint32(dst, e)
		}
	case Vector[uint64]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint64(dst, e)
		}
	case Vector[float32]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(e))
		}
	case Vector[float64]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e))
		}
	case Vector[complex64]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(real(e)))
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(imag(e)))
		}
	case Vector[complex128]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(real(e)))
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(imag(e)))
		}
	case Vector[string]:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vec)))
		for _, e := range vec {
			dst = appendString(dst, e)
		}
	}
	return dst
}

func appendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// ReadValue decodes one value from the head of b and returns the remainder.
func ReadValue(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return nil, nil, ErrTruncated
	}
	kind := Kind(b[0])
	b = b[1:]
	if kind.IsVector() {
		return readVector(kind, b)
	}
	switch kind {
	case KindBool:
		if len(b) < 1 {
			return nil, nil, ErrTruncated
		}
		return Bool(b[0] != 0), b[1:], nil
	case KindInt8:
		if len(b) < 1 {
			return nil, nil, ErrTruncated
		}
		return Int8(b[0]), b[1:], nil
	case KindInt16:
		u, rest, err := readUint(b, 2)
		return Int16(u), rest, err
	case KindInt32:
		u, rest, err := readUint(b, 4)
		return Int32(u), rest, err
	case KindInt64:
		u, rest, err := readUint(b, 8)
		return Int64(u), rest, err
	case KindUint8:
		if len(b) < 1 {
			return nil, nil, ErrTruncated
		}
		return Uint8(b[0]), b[1:], nil
	case KindUint16:
		u, rest, err := readUint(b, 2)
		return Uint16(u), rest, err
	case KindUint32:
		u, rest, err := readUint(b, 4)
		return Uint32(u), rest, err
	case KindUint64:
		u, rest, err := readUint(b, 8)
		return Uint64(u), rest, err
	case KindFloat32:
		u, rest, err := readUint(b, 4)
		return Float32(math.Float32frombits(uint32(u))), rest, err
	case KindFloat64:
		u, rest, err := readUint(b, 8)
		return Float64(math.Float64frombits(u)), rest, err
	case KindComplex64:
		re, rest, err := readUint(b, 4)
		if err != nil {
			return nil, nil, err
		}
		im, rest, err := readUint(rest, 4)
		if err != nil {
			return nil, nil, err
		}
		return Complex64(complex(math.Float32frombits(uint32(re)), math.Float32frombits(uint32(im)))), rest, nil
	case KindComplex128:
		re, rest, err := readUint(b, 8)
		if err != nil {
			return nil, nil, err
		}
		im, rest, err := readUint(rest, 8)
		if err != nil {
			return nil, nil, err
		}
		return Complex128(complex(math.Float64frombits(re), math.Float64frombits(im))), rest, nil
	case KindString:
		s, rest, err := readString(b)
		return String(s), rest, err
	case KindMap:
		n, rest, err := readUint(b, 4)
		if err != nil {
			return nil, nil, err
		}
		m := New()
		for i := uint64(0); i < n; i++ {
			var key string
			key, rest, err = readString(rest)
			if err != nil {
				return nil, nil, err
			}
			var v Value
			v, rest, err = ReadValue(rest)
			if err != nil {
				return nil, nil, err
			}
			m.Set(key, v)
		}
		return m, rest, nil
	}
	return nil, nil, fmt.Errorf("pmt: unknown discriminator %#x", byte(kind))
}

func readVector(kind Kind, b []byte) (Value, []byte, error) {
	n, rest, err := readUint(b, 4)
	if err != nil {
		return nil, nil, err
	}
	switch kind.Elem() {
	case KindBool:
		return readVectorOf(rest, n, func(b []byte) (bool, []byte, error) {
			if len(b) < 1 {
				return false, nil, ErrTruncated
			}
			return b[0] != 0, b[1:], nil
		})
	case KindInt8:
		return readVectorOf(rest, n, func(b []byte) (int8, []byte, error) {
			if len(b) < 1 {
				return 0, nil, ErrTruncated
			}
			return int8(b[0]), b[1:], nil
		})
	case KindInt16:
		return readVectorOf(rest, n, func(b []byte) (int16, []byte, error) {
			u, rest, err := readUint(b, 2)
			return int16(u), rest, err
		})
	case KindInt32:
		return readVectorOf(rest, n, func(b []byte) (int32, []byte, error) {
			u, rest, err := readUint(b, 4)
			return int32(u), rest, err
		})
	case KindInt64:
		return readVectorOf(rest, n, func(b []byte) (int64, []byte, error) {
			u, rest, err := readUint(b, 8)
			return int64(u), rest, err
		})
	case KindUint8:
		return readVectorOf(rest, n, func(b []byte) (uint8, []byte, error) {
			if len(b) < 1 {
				return 0, nil, ErrTruncated
			}
			return b[0], b[1:], nil
		})
	case KindUint16:
		return readVectorOf(rest, n, func(b []byte) (uint16, []byte, error) {
			u, rest, err := readUint(b, 2)
			return uint16(u), rest, err
		})
	case KindUint32:
		return readVectorOf(rest, n, func(b []byte) (uint32, []byte, error) {
			u, rest, err := readUint(b, 4)
			return uint32(u), rest, err
		})
	case KindUint64:
		return readVectorOf(rest, n, readUint8Bytes)
	case KindFloat32:
		return readVectorOf(rest, n, func(b []byte) (float32, []byte, error) {
			u, rest, err := readUint(b, 4)
			return math.Float32frombits(uint32(u)), rest, err
		})
	case KindFloat64:
		return readVectorOf(rest, n, func(b []byte) (float64, []byte, error) {
			u, rest, err := readUint(b, 8)
			return math.Float64frombits(u), rest, err
		})
	case KindComplex64:
		return readVectorOf(rest, n, func(b []byte) (complex64, []byte, error) {
			re, rest, err := readUint(b, 4)
			if err != nil {
				return 0, nil, err
			}
			im, rest, err := readUint(rest, 4)
			return complex(math.Float32frombits(uint32(re)), math.Float32frombits(uint32(im))), rest, err
		})
	case KindComplex128:
		return readVectorOf(rest, n, func(b []byte) (complex128, []byte, error) {
			re, rest, err := readUint(b, 8)
			if err != nil {
				return 0, nil, err
			}
			im, rest, err := readUint(rest, 8)
			return complex(math.Float64frombits(re), math.Float64frombits(im)), rest, err
		})
	case KindString:
		return readVectorOf(rest, n, readString)
	}
	return nil, nil, fmt.Errorf("pmt: unknown discriminator %#x", byte(kind))
}

func readUint8Bytes(b []byte) (uint64, []byte, error) {
	return readUint(b, 8)
}

func readVectorOf[T Element](b []byte, n uint64, read func([]byte) (T, []byte, error)) (Value, []byte, error) {
	vec := make(Vector[T], 0, n)
	var (
		e   T
		err error
	)
	for i := uint64(0); i < n; i++ {
		if e, b, err = read(b); err != nil {
			return nil, nil, err
		}
		vec = append(vec, e)
	}
	return vec, b, nil
}

func readUint(b []byte, size int) (uint64, []byte, error) {
	if len(b) < size {
		return 0, nil, ErrTruncated
	}
	switch size {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), b[2:], nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), b[4:], nil
	default:
		return binary.LittleEndian.Uint64(b), b[8:], nil
	}
}

func readString(b []byte) (string, []byte, error) {
	n, rest, err := readUint(b, 4)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, ErrTruncated
	}
	return string(rest[:n]), rest[n:], nil
}
