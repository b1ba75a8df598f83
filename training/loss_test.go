package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-mobilenet/tensor"
)

func TestCrossEntropyUniformLogits(t *testing.T) {
	logits, err := tensor.Zeros([]int{2, 10}, tensor.Float32)
	require.NoError(t, err)
	logits.SetRequiresGrad(true)
	labels, err := tensor.NewTensor([]int{2}, tensor.Int32, []int32{3, 7})
	require.NoError(t, err)

	loss, err := NewCrossEntropyLoss().Compute(logits, labels)
	require.NoError(t, err)

	got, err := loss.GetFloat32Data()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(10), float64(got[0]), 1e-5)
}

func TestCrossEntropyRejectsBadShapes(t *testing.T) {
	ce := NewCrossEntropyLoss()

	logits1d, err := tensor.Zeros([]int{4}, tensor.Float32)
	require.NoError(t, err)
	labels, err := tensor.NewTensor([]int{2}, tensor.Int32, []int32{0, 1})
	require.NoError(t, err)
	_, err = ce.Compute(logits1d, labels)
	assert.Error(t, err)

	logits, err := tensor.Zeros([]int{2, 3}, tensor.Float32)
	require.NoError(t, err)
	floatLabels, err := tensor.Zeros([]int{2}, tensor.Float32)
	require.NoError(t, err)
	_, err = ce.Compute(logits, floatLabels)
	assert.Error(t, err)
}

func TestCrossEntropyRejectsOutOfRangeLabels(t *testing.T) {
	logits, err := tensor.Zeros([]int{1, 3}, tensor.Float32)
	require.NoError(t, err)
	labels, err := tensor.NewTensor([]int{1}, tensor.Int32, []int32{5})
	require.NoError(t, err)

	_, err = NewCrossEntropyLoss().Compute(logits, labels)
	assert.Error(t, err)
}

func TestAccuracy(t *testing.T) {
	logits, err := tensor.NewTensor([]int{4, 2}, tensor.Float32, []float32{
		2, 1, // pred 0
		0, 3, // pred 1
		5, 4, // pred 0
		1, 2, // pred 1
	})
	require.NoError(t, err)
	labels, err := tensor.NewTensor([]int{4}, tensor.Int32, []int32{0, 1, 1, 1})
	require.NoError(t, err)

	acc, err := Accuracy(logits, labels)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-9)
}
