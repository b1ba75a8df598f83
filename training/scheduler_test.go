package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineAnnealingLR(t *testing.T) {
	s := NewCosineAnnealingLRScheduler(10, 0)

	assert.InDelta(t, 0.1, s.GetLR(0, 0, 0.1), 1e-9, "epoch 0 starts at the base LR")
	assert.InDelta(t, 0.05, s.GetLR(5, 0, 0.1), 1e-9, "midpoint is half the base LR")
	assert.InDelta(t, 0.0, s.GetLR(10, 0, 0.1), 1e-9, "TMax anneals to eta_min")
	assert.InDelta(t, 0.0, s.GetLR(15, 0, 0.1), 1e-9, "past TMax stays at eta_min")

	// Monotonically non-increasing across the schedule.
	prev := math.Inf(1)
	for epoch := 0; epoch <= 10; epoch++ {
		lr := s.GetLR(epoch, 0, 0.1)
		assert.LessOrEqual(t, lr, prev, "epoch %d", epoch)
		prev = lr
	}
}

func TestCosineAnnealingLREtaMin(t *testing.T) {
	s := NewCosineAnnealingLRScheduler(4, 0.01)
	assert.InDelta(t, 0.1, s.GetLR(0, 0, 0.1), 1e-9)
	assert.InDelta(t, 0.01, s.GetLR(4, 0, 0.1), 1e-9)
	// Midpoint sits halfway between base and eta_min.
	assert.InDelta(t, 0.055, s.GetLR(2, 0, 0.1), 1e-9)
}

func TestStepLR(t *testing.T) {
	s := NewStepLRScheduler(10, 0.1)
	assert.InDelta(t, 1.0, s.GetLR(0, 0, 1.0), 1e-9)
	assert.InDelta(t, 1.0, s.GetLR(9, 0, 1.0), 1e-9)
	assert.InDelta(t, 0.1, s.GetLR(10, 0, 1.0), 1e-9)
	assert.InDelta(t, 0.01, s.GetLR(25, 0, 1.0), 1e-9)
}

func TestConstantLR(t *testing.T) {
	s := &ConstantLRScheduler{}
	assert.Equal(t, 0.3, s.GetLR(7, 100, 0.3))
}
