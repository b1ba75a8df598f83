package tensor

import (
	"fmt"
)

// GlobalAvgPool2D averages over the spatial dimensions of a 4D tensor,
// producing [batch, channels, 1, 1].
func GlobalAvgPool2D(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("GlobalAvgPool2D requires a Float32 tensor, got %s", t.DType)
	}
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("GlobalAvgPool2D requires 4D input [batch, channels, height, width], got shape %v", t.Shape)
	}

	batch, channels, height, width := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	area := height * width

	result, err := Zeros([]int{batch, channels, 1, 1}, Float32)
	if err != nil {
		return nil, err
	}

	src := t.Data.([]float32)
	dst := result.Data.([]float32)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			base := ((b*channels + c) * height) * width
			var sum float32
			for i := 0; i < area; i++ {
				sum += src[base+i]
			}
			dst[b*channels+c] = sum / float32(area)
		}
	}
	return result, nil
}

// globalAvgPool2DBackward spreads the pooled gradient evenly back over the
// spatial positions it averaged.
func globalAvgPool2DBackward(gradOut *Tensor, inShape []int) (*Tensor, error) {
	batch, channels, height, width := inShape[0], inShape[1], inShape[2], inShape[3]
	area := height * width

	gradIn, err := Zeros(inShape, Float32)
	if err != nil {
		return nil, err
	}

	gOut := gradOut.Data.([]float32)
	gIn := gradIn.Data.([]float32)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			g := gOut[b*channels+c] / float32(area)
			base := ((b*channels + c) * height) * width
			for i := 0; i < area; i++ {
				gIn[base+i] = g
			}
		}
	}
	return gradIn, nil
}
