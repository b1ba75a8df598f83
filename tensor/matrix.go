package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MatMul computes the matrix product of two 2D float32 tensors. The heavy
// lifting is delegated to gonum's BLAS-backed dense multiply.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("MatMul requires Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("incompatible shapes for MatMul: %v x %v", a.Shape, b.Shape)
	}

	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	am := mat.NewDense(m, k, toFloat64(a.Data.([]float32)))
	bm := mat.NewDense(k, n, toFloat64(b.Data.([]float32)))

	var cm mat.Dense
	cm.Mul(am, bm)

	return NewTensor([]int{m, n}, Float32, toFloat32(cm.RawMatrix().Data))
}

// Transpose swaps two dimensions of a 2D tensor.
func Transpose(t *Tensor, dim0, dim1 int) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Transpose requires a 2D tensor, got shape %v", t.Shape)
	}
	if (dim0 != 0 && dim0 != 1) || (dim1 != 0 && dim1 != 1) || dim0 == dim1 {
		return nil, fmt.Errorf("invalid transpose dimensions %d, %d for 2D tensor", dim0, dim1)
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("Transpose requires a Float32 tensor, got %s", t.DType)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	result, err := Zeros([]int{cols, rows}, Float32)
	if err != nil {
		return nil, err
	}
	src := t.Data.([]float32)
	dst := result.Data.([]float32)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dst[c*rows+r] = src[r*cols+c]
		}
	}
	return result, nil
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

func toFloat32(src []float64) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = float32(v)
	}
	return dst
}
