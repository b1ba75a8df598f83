package tensor

import (
	"fmt"
)

// NewTensor creates a tensor from explicit data. The data slice must match
// the declared dtype and element count. Passing nil data allocates zeroed
// storage.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: numElems,
	}

	switch dtype {
	case Float32:
		if data == nil {
			t.Data = make([]float32, numElems)
			return t, nil
		}
		d, ok := data.([]float32)
		if !ok {
			return nil, fmt.Errorf("data type mismatch: expected []float32 for dtype %s", dtype)
		}
		if len(d) != numElems {
			return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), shape, numElems)
		}
		t.Data = d
	case Int32:
		if data == nil {
			t.Data = make([]int32, numElems)
			return t, nil
		}
		d, ok := data.([]int32)
		if !ok {
			return nil, fmt.Errorf("data type mismatch: expected []int32 for dtype %s", dtype)
		}
		if len(d) != numElems {
			return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), shape, numElems)
		}
		t.Data = d
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}

	return t, nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	return NewTensor(shape, dtype, nil)
}

// Ones creates a tensor filled with ones.
func Ones(shape []int, dtype DType) (*Tensor, error) {
	t, err := NewTensor(shape, dtype, nil)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = 1
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = 1
		}
	}
	return t, nil
}

// Full creates a tensor filled with the given value.
func Full(shape []int, dtype DType, value float64) (*Tensor, error) {
	t, err := NewTensor(shape, dtype, nil)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = float32(value)
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = int32(value)
		}
	}
	return t, nil
}

// FromScalar creates a single-element tensor holding the given value.
func FromScalar(value float64, dtype DType) *Tensor {
	t, err := Full([]int{1}, dtype, value)
	if err != nil {
		// Shape {1} is always valid; an error here is a programming error.
		panic(fmt.Sprintf("FromScalar: %v", err))
	}
	return t
}
