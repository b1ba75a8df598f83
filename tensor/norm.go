package tensor

import (
	"fmt"
	"math"
)

// batchNormState keeps the per-call intermediates needed by the backward
// pass: the normalized activations and the per-channel inverse standard
// deviation that produced them.
type batchNormState struct {
	xhat   []float32
	invStd []float32
}

// batchNorm2DForward applies per-channel batch normalization to a 4D tensor.
// In training mode the batch statistics are used and the running statistics
// are updated in place with the given momentum (the only side effect of a
// forward pass). In inference mode the frozen running statistics are used.
func batchNorm2DForward(x, gamma, beta, runningMean, runningVar *Tensor, momentum, eps float32, training bool) (*Tensor, *batchNormState, error) {
	if len(x.Shape) != 4 {
		return nil, nil, fmt.Errorf("batch norm requires 4D input [batch, channels, height, width], got shape %v", x.Shape)
	}
	channels := x.Shape[1]
	for name, t := range map[string]*Tensor{"gamma": gamma, "beta": beta, "running mean": runningMean, "running var": runningVar} {
		if len(t.Shape) != 1 || t.Shape[0] != channels {
			return nil, nil, fmt.Errorf("batch norm %s shape %v does not match %d channels", name, t.Shape, channels)
		}
	}

	batch, height, width := x.Shape[0], x.Shape[2], x.Shape[3]
	n := batch * height * width

	out, err := Zeros(x.Shape, Float32)
	if err != nil {
		return nil, nil, err
	}

	xd := x.Data.([]float32)
	od := out.Data.([]float32)
	gd := gamma.Data.([]float32)
	bd := beta.Data.([]float32)
	rm := runningMean.Data.([]float32)
	rv := runningVar.Data.([]float32)

	state := &batchNormState{
		xhat:   make([]float32, x.NumElems),
		invStd: make([]float32, channels),
	}

	for c := 0; c < channels; c++ {
		var mean, variance float32

		if training {
			var sum float32
			for b := 0; b < batch; b++ {
				base := ((b*channels + c) * height) * width
				for i := 0; i < height*width; i++ {
					sum += xd[base+i]
				}
			}
			mean = sum / float32(n)

			var sqSum float32
			for b := 0; b < batch; b++ {
				base := ((b*channels + c) * height) * width
				for i := 0; i < height*width; i++ {
					d := xd[base+i] - mean
					sqSum += d * d
				}
			}
			variance = sqSum / float32(n)

			// Running statistics track the unbiased variance estimate.
			unbiased := variance
			if n > 1 {
				unbiased = sqSum / float32(n-1)
			}
			rm[c] = (1-momentum)*rm[c] + momentum*mean
			rv[c] = (1-momentum)*rv[c] + momentum*unbiased
		} else {
			mean = rm[c]
			variance = rv[c]
		}

		invStd := float32(1 / math.Sqrt(float64(variance)+float64(eps)))
		state.invStd[c] = invStd

		for b := 0; b < batch; b++ {
			base := ((b*channels + c) * height) * width
			for i := 0; i < height*width; i++ {
				xhat := (xd[base+i] - mean) * invStd
				state.xhat[base+i] = xhat
				od[base+i] = gd[c]*xhat + bd[c]
			}
		}
	}

	return out, state, nil
}

// batchNorm2DBackward computes gradients through batch normalization. In
// training mode the batch statistics depend on the input, so the full
// formula applies; in inference mode the statistics are constants.
func batchNorm2DBackward(gradOut, gamma *Tensor, state *batchNormState, xShape []int, training bool) (gradX, gradGamma, gradBeta *Tensor, err error) {
	batch, channels, height, width := xShape[0], xShape[1], xShape[2], xShape[3]
	n := batch * height * width

	gradX, err = Zeros(xShape, Float32)
	if err != nil {
		return nil, nil, nil, err
	}
	gradGamma, err = Zeros([]int{channels}, Float32)
	if err != nil {
		return nil, nil, nil, err
	}
	gradBeta, err = Zeros([]int{channels}, Float32)
	if err != nil {
		return nil, nil, nil, err
	}

	gOut := gradOut.Data.([]float32)
	gX := gradX.Data.([]float32)
	gG := gradGamma.Data.([]float32)
	gB := gradBeta.Data.([]float32)
	gd := gamma.Data.([]float32)

	for c := 0; c < channels; c++ {
		var sumDy, sumDyXhat float32
		for b := 0; b < batch; b++ {
			base := ((b*channels + c) * height) * width
			for i := 0; i < height*width; i++ {
				dy := gOut[base+i]
				sumDy += dy
				sumDyXhat += dy * state.xhat[base+i]
			}
		}
		gG[c] = sumDyXhat
		gB[c] = sumDy

		scale := gd[c] * state.invStd[c]
		for b := 0; b < batch; b++ {
			base := ((b*channels + c) * height) * width
			for i := 0; i < height*width; i++ {
				dy := gOut[base+i]
				if training {
					gX[base+i] = scale * (dy - sumDy/float32(n) - state.xhat[base+i]*sumDyXhat/float32(n))
				} else {
					gX[base+i] = scale * dy
				}
			}
		}
	}

	return gradX, gradGamma, gradBeta, nil
}
