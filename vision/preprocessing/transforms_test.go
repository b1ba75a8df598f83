package preprocessing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, h, w int) *Image {
	t.Helper()
	data := make([]float32, 3*h*w)
	for i := range data {
		data[i] = float32(i) / float32(len(data))
	}
	img, err := NewImage(data, 3, h, w)
	require.NoError(t, err)
	return img
}

func TestNewImageValidatesSize(t *testing.T) {
	_, err := NewImage(make([]float32, 10), 3, 2, 2)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	img, err := NewImage([]float32{0.5, 0.5, 0.5}, 3, 1, 1)
	require.NoError(t, err)

	n := &Normalize{Means: CIFAR10Means, Stds: CIFAR10Stds}
	out := n.Apply(img, nil)

	for c := 0; c < 3; c++ {
		want := (0.5 - CIFAR10Means[c]) / CIFAR10Stds[c]
		assert.InDelta(t, want, out.Data[c], 1e-6, "channel %d", c)
	}
	// Input untouched.
	assert.Equal(t, float32(0.5), img.Data[0])
}

func TestRandomHorizontalFlip(t *testing.T) {
	img, err := NewImage([]float32{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	require.NoError(t, err)

	t.Run("always flips at prob 1", func(t *testing.T) {
		f := &RandomHorizontalFlip{Prob: 1}
		out := f.Apply(img, rand.New(rand.NewSource(1)))
		assert.Equal(t, []float32{3, 2, 1, 6, 5, 4}, out.Data)
	})

	t.Run("never flips at prob 0", func(t *testing.T) {
		f := &RandomHorizontalFlip{Prob: 0}
		out := f.Apply(img, rand.New(rand.NewSource(1)))
		assert.Equal(t, img.Data, out.Data)
	})

	t.Run("double flip is identity", func(t *testing.T) {
		f := &RandomHorizontalFlip{Prob: 1}
		rng := rand.New(rand.NewSource(1))
		out := f.Apply(f.Apply(img, rng), rng)
		assert.Equal(t, img.Data, out.Data)
	})
}

func TestRandomCrop(t *testing.T) {
	img := testImage(t, 32, 32)

	t.Run("output size matches", func(t *testing.T) {
		c := &RandomCrop{Size: 32, Padding: 4}
		out := c.Apply(img, rand.New(rand.NewSource(1)))
		assert.Equal(t, 32, out.Height)
		assert.Equal(t, 32, out.Width)
		assert.Len(t, out.Data, 3*32*32)
	})

	t.Run("zero padding is identity", func(t *testing.T) {
		c := &RandomCrop{Size: 32, Padding: 0}
		out := c.Apply(img, rand.New(rand.NewSource(1)))
		assert.Equal(t, img.Data, out.Data)
	})

	t.Run("shifted crop brings in zeros at the border", func(t *testing.T) {
		ones := make([]float32, 3*4*4)
		for i := range ones {
			ones[i] = 1
		}
		src, err := NewImage(ones, 3, 4, 4)
		require.NoError(t, err)

		c := &RandomCrop{Size: 4, Padding: 2}
		// Some offsets include padding, so across many draws zeros appear.
		rng := rand.New(rand.NewSource(2))
		sawZero := false
		for i := 0; i < 20 && !sawZero; i++ {
			out := c.Apply(src, rng)
			for _, v := range out.Data {
				if v == 0 {
					sawZero = true
					break
				}
			}
		}
		assert.True(t, sawZero, "padded crops should include zero pixels")
	})
}

func TestPipelinesCompose(t *testing.T) {
	img := testImage(t, 32, 32)
	rng := rand.New(rand.NewSource(1))

	trainOut := NewTrainPipeline().Apply(img, rng)
	assert.Equal(t, 32, trainOut.Height)
	assert.Equal(t, 32, trainOut.Width)

	evalOut := NewEvalPipeline().Apply(img, rng)
	assert.Len(t, evalOut.Data, len(img.Data))
}
