package tensor

import (
	"fmt"
)

// binaryOp applies fn elementwise over two broadcast-compatible float32
// tensors.
func binaryOp(a, b *Tensor, fn func(x, y float32) float32) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("binary op requires Float32 tensors, got %s and %s", a.DType, b.DType)
	}

	outShape, err := BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outShape, Float32)
	if err != nil {
		return nil, err
	}

	aData := a.Data.([]float32)
	bData := b.Data.([]float32)
	outData := result.Data.([]float32)

	if shapesEqual(a.Shape, b.Shape) {
		for i := range outData {
			outData[i] = fn(aData[i], bData[i])
		}
		return result, nil
	}

	for i := 0; i < result.NumElems; i++ {
		ai := broadcastSourceIndex(i, outShape, a.Shape, a.Strides)
		bi := broadcastSourceIndex(i, outShape, b.Shape, b.Strides)
		outData[i] = fn(aData[ai], bData[bi])
	}
	return result, nil
}

// Add computes a + b with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x + y })
}

// Sub computes a - b with broadcasting.
func Sub(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x - y })
}

// Mul computes the elementwise product a * b with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x * y })
}

// Div computes the elementwise quotient a / b with broadcasting.
func Div(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x / y })
}

// Scale multiplies every element by a scalar.
func Scale(t *Tensor, s float64) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 { return x * float32(s) })
}

func unaryOp(t *Tensor, fn func(x float32) float32) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unary op requires a Float32 tensor, got %s", t.DType)
	}
	result, err := Zeros(t.Shape, Float32)
	if err != nil {
		return nil, err
	}
	data := t.Data.([]float32)
	outData := result.Data.([]float32)
	for i := range data {
		outData[i] = fn(data[i])
	}
	return result, nil
}

// ReLU computes max(x, 0) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
}

// hardSigmoidValue is the piecewise-linear sigmoid approximation
// relu6(x+3)/6 used by the squeeze-and-excitation gate.
func hardSigmoidValue(x float32) float32 {
	switch {
	case x <= -3:
		return 0
	case x >= 3:
		return 1
	default:
		return (x + 3) / 6
	}
}

// HardSigmoid computes relu6(x+3)/6 elementwise. Every output element lies
// in [0, 1].
func HardSigmoid(t *Tensor) (*Tensor, error) {
	return unaryOp(t, hardSigmoidValue)
}

// HardSwish computes x * relu6(x+3)/6 elementwise.
func HardSwish(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 { return x * hardSigmoidValue(x) })
}

// Sum reduces all elements to a single-element tensor.
func Sum(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sum requires a Float32 tensor, got %s", t.DType)
	}
	data := t.Data.([]float32)
	var total float32
	for _, v := range data {
		total += v
	}
	return NewTensor([]int{1}, Float32, []float32{total})
}

// ArgMax returns the index of the maximum along the last dimension of a 2D
// tensor, as an Int32 tensor of shape [rows].
func ArgMax(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("ArgMax requires a Float32 tensor, got %s", t.DType)
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("ArgMax requires a 2D tensor, got shape %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	data := t.Data.([]float32)
	out := make([]int32, rows)
	for r := 0; r < rows; r++ {
		best := 0
		bestVal := data[r*cols]
		for c := 1; c < cols; c++ {
			if v := data[r*cols+c]; v > bestVal {
				bestVal = v
				best = c
			}
		}
		out[r] = int32(best)
	}
	return NewTensor([]int{rows}, Int32, out)
}
