package expreplay

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
	"gorgonia.org/tensor"
)

// EncodedState is a state in the form in which it is stored in a
// replay buffer. Data holds the little-endian bytes of the state's
// elements in row-major order, possibly compressed.
type EncodedState struct {
	Dtype      string
	Shape      []int
	Data       []byte
	Compressed bool
}

// Codec encodes states for storage in a replay buffer and decodes them
// when they are sampled. Decode(Encode(s)) must reproduce s exactly.
type Codec interface {
	Encode(s *tensor.Dense) (EncodedState, error)
	Decode(e EncodedState) (*tensor.Dense, error)
}

// Identity is a Codec which stores states uncompressed
type Identity struct{}

// Encode encodes a state
func (Identity) Encode(s *tensor.Dense) (EncodedState, error) {
	return encode(s)
}

// Decode decodes a state
func (Identity) Decode(e EncodedState) (*tensor.Dense, error) {
	if e.Compressed {
		return nil, fmt.Errorf("decode: %w: state is compressed",
			ErrCompressionRoundTrip)
	}
	return decode(e)
}

// Snappy is a Codec which compresses states with snappy
type Snappy struct{}

// Encode encodes and compresses a state
func (Snappy) Encode(s *tensor.Dense) (EncodedState, error) {
	e, err := encode(s)
	if err != nil {
		return EncodedState{}, err
	}

	e.Data = snappy.Encode(nil, e.Data)
	e.Compressed = true
	return e, nil
}

// Decode decompresses and decodes a state
func (Snappy) Decode(e EncodedState) (*tensor.Dense, error) {
	if !e.Compressed {
		return nil, fmt.Errorf("decode: %w: state is not compressed",
			ErrCompressionRoundTrip)
	}

	data, err := snappy.Decode(nil, e.Data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w: %v", ErrCompressionRoundTrip,
			err)
	}

	e.Data = data
	e.Compressed = false
	return decode(e)
}

// NewCodec returns the Snappy codec if compress is true and the
// Identity codec otherwise
func NewCodec(compress bool) Codec {
	if compress {
		return Snappy{}
	}
	return Identity{}
}

// encode returns the uncompressed encoding of a state
func encode(s *tensor.Dense) (EncodedState, error) {
	if s == nil {
		return EncodedState{}, fmt.Errorf("encode: nil state")
	}
	if s.RequiresIterator() {
		s = s.Materialize().(*tensor.Dense)
	}

	shape := append([]int(nil), s.Shape()...)

	var data []byte
	switch backing := s.Data().(type) {
	case []uint8:
		data = make([]byte, len(backing))
		copy(data, backing)

	case []float32:
		data = make([]byte, 4*len(backing))
		for i, v := range backing {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
		}

	case []float64:
		data = make([]byte, 8*len(backing))
		for i, v := range backing {
			binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
		}

	default:
		return EncodedState{}, fmt.Errorf("encode: unsupported dtype %v",
			s.Dtype())
	}

	return EncodedState{
		Dtype: s.Dtype().String(),
		Shape: shape,
		Data:  data,
	}, nil
}

// decode returns the state described by an uncompressed encoding
func decode(e EncodedState) (*tensor.Dense, error) {
	size := 1
	for _, dim := range e.Shape {
		if dim < 0 {
			return nil, fmt.Errorf("decode: %w: negative dimension in "+
				"shape %v", ErrCompressionRoundTrip, e.Shape)
		}
		size *= dim
	}

	var backing interface{}
	switch e.Dtype {
	case tensor.Uint8.String():
		if len(e.Data) != size {
			return nil, lengthError(e, size)
		}
		b := make([]uint8, size)
		copy(b, e.Data)
		backing = b

	case tensor.Float32.String():
		if len(e.Data) != 4*size {
			return nil, lengthError(e, 4*size)
		}
		b := make([]float32, size)
		for i := range b {
			b[i] = math.Float32frombits(binary.LittleEndian.Uint32(
				e.Data[4*i:]))
		}
		backing = b

	case tensor.Float64.String():
		if len(e.Data) != 8*size {
			return nil, lengthError(e, 8*size)
		}
		b := make([]float64, size)
		for i := range b {
			b[i] = math.Float64frombits(binary.LittleEndian.Uint64(
				e.Data[8*i:]))
		}
		backing = b

	default:
		return nil, fmt.Errorf("decode: %w: unsupported dtype %v",
			ErrCompressionRoundTrip, e.Dtype)
	}

	shape := append([]int(nil), e.Shape...)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)),
		nil
}

func lengthError(e EncodedState, want int) error {
	return fmt.Errorf("decode: %w: shape %v of dtype %v needs %v bytes, "+
		"have %v", ErrCompressionRoundTrip, e.Shape, e.Dtype, want,
		len(e.Data))
}
