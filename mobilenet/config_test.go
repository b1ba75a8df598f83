package mobilenet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeDivisible(t *testing.T) {
	// Values already on the grid pass through.
	assert.Equal(t, 16, MakeDivisible(16, 8, 0))
	assert.Equal(t, 72, MakeDivisible(72, 8, 0))

	// Half-up rounding.
	assert.Equal(t, 16, MakeDivisible(12, 8, 0))
	assert.Equal(t, 24, MakeDivisible(18, 8, 0))

	// The minimum floor applies before the loss guard.
	assert.Equal(t, 8, MakeDivisible(2, 8, 0))
	assert.Equal(t, 16, MakeDivisible(4, 8, 16))

	// Rounding down by more than 10% bumps one step up: 8.9 would
	// quantize to 8, losing over 10%, so it becomes 16.
	assert.Equal(t, 16, MakeDivisible(8.9, 8, 0))

	assert.Panics(t, func() { MakeDivisible(16, 0, 0) })
	assert.Panics(t, func() { MakeDivisible(16, -8, 0) })
}

func TestAdjustChannels(t *testing.T) {
	assert.Equal(t, 16, AdjustChannels(16, 1.0))
	assert.Equal(t, 8, AdjustChannels(16, 0.5))
	assert.Equal(t, 32, AdjustChannels(40, 0.75))
	assert.Equal(t, 576, AdjustChannels(576, 1.0))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.NumClasses = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.WidthMult = 0.05
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Dropout = 1.0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Dropout = -0.1
	assert.Error(t, bad.Validate())
}

func TestSmallScheduleStandard(t *testing.T) {
	specs := smallSchedule(1.0, false, false)
	require.Len(t, specs, 11)

	// At width 1.0 every literal is already a multiple of 8.
	first := specs[0]
	assert.Equal(t, 16, first.InputChannels)
	assert.Equal(t, 3, first.Kernel)
	assert.Equal(t, 16, first.ExpandedChannels)
	assert.Equal(t, 16, first.OutChannels)
	assert.True(t, first.UseSE)
	assert.Equal(t, ActReLU, first.Activation)
	assert.Equal(t, 2, first.Stride)

	second := specs[1]
	assert.Equal(t, 72, second.ExpandedChannels)
	assert.Equal(t, 24, second.OutChannels)
	assert.False(t, second.UseSE)

	last := specs[10]
	assert.Equal(t, 96, last.InputChannels)
	assert.Equal(t, 576, last.ExpandedChannels)
	assert.Equal(t, 96, last.OutChannels)
	assert.Equal(t, ActHardSwish, last.Activation)
	assert.Equal(t, 1, last.Dilation)

	// Channel continuity: each block consumes what the previous produced.
	for i := 1; i < len(specs); i++ {
		assert.Equal(t, specs[i-1].OutChannels, specs[i].InputChannels, "block %d input", i)
	}
}

func TestSmallScheduleReducedTail(t *testing.T) {
	specs := smallSchedule(1.0, true, false)
	require.Len(t, specs, 11)

	// The last three rows run at half width.
	assert.Equal(t, 144, specs[8].ExpandedChannels)
	assert.Equal(t, 48, specs[8].OutChannels)
	assert.Equal(t, 288, specs[9].ExpandedChannels)
	assert.Equal(t, 48, specs[10].OutChannels)

	// Earlier rows are untouched.
	assert.Equal(t, 144, specs[7].ExpandedChannels)
	assert.Equal(t, 48, specs[7].OutChannels)
}

func TestSmallScheduleDilated(t *testing.T) {
	specs := smallSchedule(1.0, false, true)

	for i := 0; i < 8; i++ {
		assert.Equal(t, 1, specs[i].Dilation, "block %d", i)
	}
	for i := 8; i < 11; i++ {
		assert.Equal(t, 2, specs[i].Dilation, "block %d", i)
	}
	// The dilated variant still downsamples at row 8 by its stride.
	assert.Equal(t, 2, specs[8].Stride)
}

func TestSmallScheduleWidthScaling(t *testing.T) {
	specs := smallSchedule(0.5, false, false)
	for i, spec := range specs {
		assert.Zero(t, spec.InputChannels%ChannelDivisor, "block %d input not divisible", i)
		assert.Zero(t, spec.ExpandedChannels%ChannelDivisor, "block %d expansion not divisible", i)
		assert.Zero(t, spec.OutChannels%ChannelDivisor, "block %d output not divisible", i)
	}
	assert.Equal(t, 8, specs[0].InputChannels)
	assert.Equal(t, 40, specs[1].ExpandedChannels) // 72 * 0.5 = 36 -> 40
}

func TestActivationString(t *testing.T) {
	assert.Equal(t, "none", ActNone.String())
	assert.Equal(t, "relu", ActReLU.String())
	assert.Equal(t, "hardswish", ActHardSwish.String())
}
