package tensor

import (
	"fmt"
)

// Conv2DParams carries the geometry of a 2D convolution. Padding is applied
// symmetrically; Dilation spaces the kernel taps; Groups splits the channel
// dimension into independent convolutions (Groups == channels gives a
// depthwise convolution).
type Conv2DParams struct {
	Stride   int
	Padding  int
	Dilation int
	Groups   int
}

func (p Conv2DParams) validate(input, weight, bias *Tensor) error {
	if len(input.Shape) != 4 {
		return fmt.Errorf("Conv2D requires 4D input [batch, channels, height, width], got shape %v", input.Shape)
	}
	if len(weight.Shape) != 4 {
		return fmt.Errorf("Conv2D requires 4D weight [out, in/groups, k, k], got shape %v", weight.Shape)
	}
	if p.Stride < 1 {
		return fmt.Errorf("invalid stride %d", p.Stride)
	}
	if p.Dilation < 1 {
		return fmt.Errorf("invalid dilation %d", p.Dilation)
	}
	if p.Groups < 1 {
		return fmt.Errorf("invalid groups %d", p.Groups)
	}

	inChannels := input.Shape[1]
	outChannels := weight.Shape[0]
	if inChannels%p.Groups != 0 || outChannels%p.Groups != 0 {
		return fmt.Errorf("groups %d must divide input channels %d and output channels %d", p.Groups, inChannels, outChannels)
	}
	if weight.Shape[1] != inChannels/p.Groups {
		return fmt.Errorf("weight expects %d channels per group, input provides %d (groups=%d, channels=%d)",
			weight.Shape[1], inChannels/p.Groups, p.Groups, inChannels)
	}
	if weight.Shape[2] != weight.Shape[3] {
		return fmt.Errorf("Conv2D requires a square kernel, got %dx%d", weight.Shape[2], weight.Shape[3])
	}
	if bias != nil && (len(bias.Shape) != 1 || bias.Shape[0] != outChannels) {
		return fmt.Errorf("bias shape %v does not match %d output channels", bias.Shape, outChannels)
	}
	return nil
}

// conv2DOutputSize returns the spatial output size for one dimension.
func conv2DOutputSize(in, kernel, stride, padding, dilation int) int {
	return (in+2*padding-dilation*(kernel-1)-1)/stride + 1
}

// Conv2D computes a grouped, dilated 2D convolution.
// input [B, Cin, H, W], weight [Cout, Cin/G, K, K], bias [Cout] or nil.
func Conv2D(input, weight, bias *Tensor, p Conv2DParams) (*Tensor, error) {
	if err := p.validate(input, weight, bias); err != nil {
		return nil, err
	}

	batch := input.Shape[0]
	inChannels := input.Shape[1]
	inH, inW := input.Shape[2], input.Shape[3]
	outChannels := weight.Shape[0]
	kernel := weight.Shape[2]

	outH := conv2DOutputSize(inH, kernel, p.Stride, p.Padding, p.Dilation)
	outW := conv2DOutputSize(inW, kernel, p.Stride, p.Padding, p.Dilation)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("convolution output collapses to %dx%d for input %dx%d", outH, outW, inH, inW)
	}

	result, err := Zeros([]int{batch, outChannels, outH, outW}, Float32)
	if err != nil {
		return nil, err
	}

	x := input.Data.([]float32)
	w := weight.Data.([]float32)
	out := result.Data.([]float32)

	chPerGroupIn := inChannels / p.Groups
	chPerGroupOut := outChannels / p.Groups

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outChannels; oc++ {
			g := oc / chPerGroupOut
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					var acc float32
					for ic := 0; ic < chPerGroupIn; ic++ {
						inC := g*chPerGroupIn + ic
						for kh := 0; kh < kernel; kh++ {
							ih := oh*p.Stride - p.Padding + kh*p.Dilation
							if ih < 0 || ih >= inH {
								continue
							}
							for kw := 0; kw < kernel; kw++ {
								iw := ow*p.Stride - p.Padding + kw*p.Dilation
								if iw < 0 || iw >= inW {
									continue
								}
								xi := ((b*inChannels+inC)*inH+ih)*inW + iw
								wi := ((oc*chPerGroupIn+ic)*kernel+kh)*kernel + kw
								acc += x[xi] * w[wi]
							}
						}
					}
					out[((b*outChannels+oc)*outH+oh)*outW+ow] = acc
				}
			}
		}
	}

	if bias != nil {
		bd := bias.Data.([]float32)
		for b := 0; b < batch; b++ {
			for oc := 0; oc < outChannels; oc++ {
				base := ((b*outChannels + oc) * outH) * outW
				for i := 0; i < outH*outW; i++ {
					out[base+i] += bd[oc]
				}
			}
		}
	}

	return result, nil
}

// conv2DBackward computes the gradients of a convolution with respect to its
// input, weight, and bias. gradBias is nil when bias was absent.
func conv2DBackward(input, weight, bias, gradOut *Tensor, p Conv2DParams) (gradInput, gradWeight, gradBias *Tensor, err error) {
	batch := input.Shape[0]
	inChannels := input.Shape[1]
	inH, inW := input.Shape[2], input.Shape[3]
	outChannels := weight.Shape[0]
	kernel := weight.Shape[2]
	outH, outW := gradOut.Shape[2], gradOut.Shape[3]

	gradInput, err = Zeros(input.Shape, Float32)
	if err != nil {
		return nil, nil, nil, err
	}
	gradWeight, err = Zeros(weight.Shape, Float32)
	if err != nil {
		return nil, nil, nil, err
	}

	x := input.Data.([]float32)
	w := weight.Data.([]float32)
	gOut := gradOut.Data.([]float32)
	gIn := gradInput.Data.([]float32)
	gW := gradWeight.Data.([]float32)

	chPerGroupIn := inChannels / p.Groups
	chPerGroupOut := outChannels / p.Groups

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outChannels; oc++ {
			g := oc / chPerGroupOut
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					grad := gOut[((b*outChannels+oc)*outH+oh)*outW+ow]
					if grad == 0 {
						continue
					}
					for ic := 0; ic < chPerGroupIn; ic++ {
						inC := g*chPerGroupIn + ic
						for kh := 0; kh < kernel; kh++ {
							ih := oh*p.Stride - p.Padding + kh*p.Dilation
							if ih < 0 || ih >= inH {
								continue
							}
							for kw := 0; kw < kernel; kw++ {
								iw := ow*p.Stride - p.Padding + kw*p.Dilation
								if iw < 0 || iw >= inW {
									continue
								}
								xi := ((b*inChannels+inC)*inH+ih)*inW + iw
								wi := ((oc*chPerGroupIn+ic)*kernel+kh)*kernel + kw
								gIn[xi] += grad * w[wi]
								gW[wi] += grad * x[xi]
							}
						}
					}
				}
			}
		}
	}

	if bias != nil {
		gradBias, err = Zeros(bias.Shape, Float32)
		if err != nil {
			return nil, nil, nil, err
		}
		gB := gradBias.Data.([]float32)
		for b := 0; b < batch; b++ {
			for oc := 0; oc < outChannels; oc++ {
				base := ((b*outChannels + oc) * outH) * outW
				for i := 0; i < outH*outW; i++ {
					gB[oc] += gOut[base+i]
				}
			}
		}
	}

	return gradInput, gradWeight, gradBias, nil
}
