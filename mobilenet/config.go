// Package mobilenet implements the MobileNetV3-Small convolutional
// classifier family with scalable channel widths. The network is assembled
// from a fixed schedule of inverted residual blocks whose channel counts
// are derived from a width multiplier and quantized to hardware-friendly
// multiples.
package mobilenet

import (
	"fmt"
	"math"
)

// ChannelDivisor is the hardware alignment unit for channel counts. Every
// derived channel count in the network is a multiple of this value.
const ChannelDivisor = 8

// Activation selects the nonlinearity applied after a conv+norm pair.
type Activation int

const (
	// ActNone applies no activation (linear projection layers).
	ActNone Activation = iota
	// ActReLU applies the rectified linear unit.
	ActReLU
	// ActHardSwish applies x * relu6(x+3)/6.
	ActHardSwish
)

func (a Activation) String() string {
	switch a {
	case ActNone:
		return "none"
	case ActReLU:
		return "relu"
	case ActHardSwish:
		return "hardswish"
	default:
		return fmt.Sprintf("activation(%d)", int(a))
	}
}

// MakeDivisible quantizes v to the nearest multiple of divisor, rounding
// half up, and never below minValue. If rounding would lose more than 10%
// of v, the result is bumped up one divisor step. Panics if divisor <= 0;
// that is a programming error, not a runtime condition.
func MakeDivisible(v float64, divisor, minValue int) int {
	if divisor <= 0 {
		panic(fmt.Sprintf("MakeDivisible: divisor must be positive, got %d", divisor))
	}
	if minValue <= 0 {
		minValue = divisor
	}
	newV := int(v+float64(divisor)/2) / divisor * divisor
	if newV < minValue {
		newV = minValue
	}
	if float64(newV) < 0.9*v {
		newV += divisor
	}
	return newV
}

// AdjustChannels scales a base channel count by the width multiplier and
// quantizes the result to the channel divisor.
func AdjustChannels(channels int, widthMult float64) int {
	return MakeDivisible(float64(channels)*widthMult, ChannelDivisor, 0)
}

// BlockSpec describes one inverted residual block before assembly. All
// channel fields are already width-scaled and quantized.
type BlockSpec struct {
	InputChannels    int
	Kernel           int
	ExpandedChannels int
	OutChannels      int
	UseSE            bool
	Activation       Activation
	Stride           int
	Dilation         int
}

// newBlockSpec builds a BlockSpec from schedule-row literals, applying the
// width multiplier to every channel count.
func newBlockSpec(inputC, kernel, expandedC, outC int, useSE bool, act Activation, stride, dilation int, widthMult float64) BlockSpec {
	return BlockSpec{
		InputChannels:    AdjustChannels(inputC, widthMult),
		Kernel:           kernel,
		ExpandedChannels: AdjustChannels(expandedC, widthMult),
		OutChannels:      AdjustChannels(outC, widthMult),
		UseSE:            useSE,
		Activation:       act,
		Stride:           stride,
		Dilation:         dilation,
	}
}

// Config holds the hyperparameters that shape a network instance.
type Config struct {
	// NumClasses is the size of the classifier output.
	NumClasses int
	// WidthMult scales every channel count in the network. Values below
	// 0.1 collapse channel counts to the minimum everywhere and are
	// rejected.
	WidthMult float64
	// Dropout is the drop probability applied between the two classifier
	// layers during training.
	Dropout float64
	// ReducedTail halves the channel counts of the last three blocks and
	// the classifier hidden layer.
	ReducedTail bool
	// Dilated replaces the stride-2 downsampling of the last stage with
	// dilation 2, preserving spatial resolution.
	Dilated bool
	// Seed drives weight initialization and dropout masks. Runs with the
	// same seed and config produce identical networks.
	Seed int64
}

// DefaultConfig returns a configuration matching the standard
// MobileNetV3-Small trained on CIFAR-10.
func DefaultConfig() Config {
	return Config{
		NumClasses: 10,
		WidthMult:  1.0,
		Dropout:    0.2,
		Seed:       1,
	}
}

// Validate checks the configuration for values that would produce a
// degenerate or unbuildable network.
func (c Config) Validate() error {
	if c.NumClasses < 1 {
		return fmt.Errorf("NumClasses must be at least 1, got %d", c.NumClasses)
	}
	if math.IsNaN(c.WidthMult) || c.WidthMult < 0.1 {
		return fmt.Errorf("WidthMult must be at least 0.1, got %v", c.WidthMult)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("Dropout must be in [0, 1), got %v", c.Dropout)
	}
	return nil
}

// smallSchedule returns the fixed 11-row block schedule of
// MobileNetV3-Small, width-scaled and with the tail adjusted for the
// reduced-tail and dilated variants.
func smallSchedule(widthMult float64, reducedTail, dilated bool) []BlockSpec {
	reduceDivider := 1
	if reducedTail {
		reduceDivider = 2
	}
	dilation := 1
	if dilated {
		dilation = 2
	}

	return []BlockSpec{
		// input, kernel, expanded, out, se, act, stride, dilation
		newBlockSpec(16, 3, 16, 16, true, ActReLU, 2, 1, widthMult),
		newBlockSpec(16, 3, 72, 24, false, ActReLU, 2, 1, widthMult),
		newBlockSpec(24, 3, 88, 24, false, ActReLU, 1, 1, widthMult),
		newBlockSpec(24, 5, 96, 40, true, ActHardSwish, 2, 1, widthMult),
		newBlockSpec(40, 5, 240, 40, true, ActHardSwish, 1, 1, widthMult),
		newBlockSpec(40, 5, 240, 40, true, ActHardSwish, 1, 1, widthMult),
		newBlockSpec(40, 5, 120, 48, true, ActHardSwish, 1, 1, widthMult),
		newBlockSpec(48, 5, 144, 48, true, ActHardSwish, 1, 1, widthMult),
		newBlockSpec(48, 5, 288/reduceDivider, 96/reduceDivider, true, ActHardSwish, 2, dilation, widthMult),
		newBlockSpec(96/reduceDivider, 5, 576/reduceDivider, 96/reduceDivider, true, ActHardSwish, 1, dilation, widthMult),
		newBlockSpec(96/reduceDivider, 5, 576/reduceDivider, 96/reduceDivider, true, ActHardSwish, 1, dilation, widthMult),
	}
}
