package tensor

import (
	"fmt"
)

// BroadcastShapes determines if two shapes are broadcastable and returns the
// resulting shape, following NumPy-style rules: align trailing dimensions;
// dimensions are compatible when equal, or when one of them is 1 or missing.
func BroadcastShapes(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 {
		return append([]int(nil), shape2...), nil
	}
	if len(shape2) == 0 {
		return append([]int(nil), shape1...), nil
	}

	maxDims := len(shape1)
	if len(shape2) > maxDims {
		maxDims = len(shape2)
	}

	resultShape := make([]int, maxDims)
	for i := 0; i < maxDims; i++ {
		dim1 := 1
		dim2 := 1
		if idx := len(shape1) - 1 - i; idx >= 0 {
			dim1 = shape1[idx]
		}
		if idx := len(shape2) - 1 - i; idx >= 0 {
			dim2 = shape2[idx]
		}

		switch {
		case dim1 == dim2:
			resultShape[maxDims-1-i] = dim1
		case dim1 == 1:
			resultShape[maxDims-1-i] = dim2
		case dim2 == 1:
			resultShape[maxDims-1-i] = dim1
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", shape1, shape2)
		}
	}
	return resultShape, nil
}

// BroadcastTensor materializes a tensor expanded to the target shape.
func BroadcastTensor(t *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(t.Shape, targetShape) {
		return t.Clone()
	}

	// Verify the expansion is legal before copying anything.
	combined, err := BroadcastShapes(t.Shape, targetShape)
	if err != nil {
		return nil, err
	}
	if !shapesEqual(combined, targetShape) {
		return nil, fmt.Errorf("cannot broadcast shape %v to %v", t.Shape, targetShape)
	}

	result, err := Zeros(targetShape, t.DType)
	if err != nil {
		return nil, err
	}

	switch t.DType {
	case Float32:
		src := t.Data.([]float32)
		dst := result.Data.([]float32)
		for i := 0; i < result.NumElems; i++ {
			dst[i] = src[broadcastSourceIndex(i, targetShape, t.Shape, t.Strides)]
		}
	case Int32:
		src := t.Data.([]int32)
		dst := result.Data.([]int32)
		for i := 0; i < result.NumElems; i++ {
			dst[i] = src[broadcastSourceIndex(i, targetShape, t.Shape, t.Strides)]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for broadcast: %s", t.DType)
	}
	return result, nil
}

// broadcastSourceIndex maps a flat index in the broadcast result to the flat
// index of the element it was replicated from.
func broadcastSourceIndex(flatIdx int, targetShape, srcShape, srcStrides []int) int {
	coords := indexToCoords(flatIdx, targetShape)
	offset := len(targetShape) - len(srcShape)
	srcIdx := 0
	for d := 0; d < len(srcShape); d++ {
		c := coords[offset+d]
		if srcShape[d] == 1 {
			c = 0
		}
		srcIdx += c * srcStrides[d]
	}
	return srcIdx
}
