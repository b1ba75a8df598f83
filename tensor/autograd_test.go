package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func gradTensor(t *testing.T, shape []int, data []float32) *Tensor {
	t.Helper()
	tt := tensorOf(t, shape, data)
	tt.SetRequiresGrad(true)
	return tt
}

func TestAddAutogradBackward(t *testing.T) {
	a := gradTensor(t, []int{2}, []float32{1, 2})
	b := gradTensor(t, []int{2}, []float32{3, 4})

	out := AddAutograd(a, b)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	assertFloats(t, a.Grad().Data.([]float32), []float32{1, 1}, 0)
	assertFloats(t, b.Grad().Data.([]float32), []float32{1, 1}, 0)
}

func TestAddAutogradBroadcastReducesGrad(t *testing.T) {
	a := gradTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	bias := gradTensor(t, []int{3}, []float32{1, 1, 1})

	out := AddAutograd(a, bias)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// Bias gradient sums over the broadcast batch dimension.
	assertFloats(t, bias.Grad().Data.([]float32), []float32{2, 2, 2}, 0)
}

func TestMulAutogradBackward(t *testing.T) {
	a := gradTensor(t, []int{2}, []float32{2, 3})
	b := gradTensor(t, []int{2}, []float32{5, 7})

	out := MulAutograd(a, b)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	assertFloats(t, a.Grad().Data.([]float32), []float32{5, 7}, 0)
	assertFloats(t, b.Grad().Data.([]float32), []float32{2, 3}, 0)
}

func TestMatMulAutogradBackward(t *testing.T) {
	a := gradTensor(t, []int{1, 2}, []float32{1, 2})
	b := gradTensor(t, []int{2, 1}, []float32{3, 4})

	out := MatMulAutograd(a, b)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// d(ab)/da = b^T, d(ab)/db = a^T for a scalar product.
	assertFloats(t, a.Grad().Data.([]float32), []float32{3, 4}, 1e-5)
	assertFloats(t, b.Grad().Data.([]float32), []float32{1, 2}, 1e-5)
}

func TestReLUAutogradBackward(t *testing.T) {
	x := gradTensor(t, []int{3}, []float32{-1, 0, 2})

	out := ReLUAutograd(x)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	assertFloats(t, x.Grad().Data.([]float32), []float32{0, 0, 1}, 0)
}

func TestHardSwishAutogradBackward(t *testing.T) {
	x := gradTensor(t, []int{3}, []float32{-4, 4, 0})

	out := HardSwishAutograd(x)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// Derivative: 0 below -3, 1 above 3, (2x+3)/6 between.
	assertFloats(t, x.Grad().Data.([]float32), []float32{0, 1, 0.5}, 1e-6)
}

func TestGradientAccumulationThroughSharedInput(t *testing.T) {
	x := gradTensor(t, []int{2}, []float32{1, 2})

	// y = x + x, so dy/dx accumulates to 2.
	out := AddAutograd(x, x)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	assertFloats(t, x.Grad().Data.([]float32), []float32{2, 2}, 0)
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	t.Run("uniform logits give log C", func(t *testing.T) {
		logits := gradTensor(t, []int{2, 4}, make([]float32, 8))
		labels := tensorOf4Labels(t, []int32{0, 3})

		loss := SoftmaxCrossEntropyAutograd(logits, labels)
		got := float64(loss.Data.([]float32)[0])
		want := math.Log(4)
		if math.Abs(got-want) > 1e-5 {
			t.Errorf("loss: got %v, want %v", got, want)
		}
	})

	t.Run("gradient rows sum to zero", func(t *testing.T) {
		logits := gradTensor(t, []int{2, 3}, []float32{1, 2, 3, -1, 0, 1})
		labels := tensorOf4Labels(t, []int32{2, 0})

		loss := SoftmaxCrossEntropyAutograd(logits, labels)
		if err := loss.Backward(); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}

		grad := logits.Grad().Data.([]float32)
		for row := 0; row < 2; row++ {
			var sum float64
			for c := 0; c < 3; c++ {
				sum += float64(grad[row*3+c])
			}
			if math.Abs(sum) > 1e-5 {
				t.Errorf("row %d gradient sums to %v, want 0", row, sum)
			}
		}

		// Labels are not differentiated.
		if labels.Grad() != nil {
			t.Error("labels must not receive a gradient")
		}
	})

	t.Run("confident correct prediction has near-zero loss", func(t *testing.T) {
		logits := gradTensor(t, []int{1, 2}, []float32{20, -20})
		labels := tensorOf4Labels(t, []int32{0})

		loss := SoftmaxCrossEntropyAutograd(logits, labels)
		if got := loss.Data.([]float32)[0]; got > 1e-4 {
			t.Errorf("loss: got %v, want ~0", got)
		}
	})
}

func tensorOf4Labels(t *testing.T, labels []int32) *Tensor {
	t.Helper()
	tt, err := NewTensor([]int{len(labels)}, Int32, labels)
	if err != nil {
		t.Fatalf("failed to create labels: %v", err)
	}
	return tt
}

func TestDropoutAutograd(t *testing.T) {
	t.Run("inference is identity", func(t *testing.T) {
		x := gradTensor(t, []int{4}, []float32{1, 2, 3, 4})
		out := DropoutAutograd(x, 0.5, false, nil)
		assertFloats(t, out.Data.([]float32), []float32{1, 2, 3, 4}, 0)
	})

	t.Run("training zeroes and rescales", func(t *testing.T) {
		x := gradTensor(t, []int{1000}, nil)
		for i := range x.Data.([]float32) {
			x.Data.([]float32)[i] = 1
		}
		out := DropoutAutograd(x, 0.5, true, newTestRand())

		zeros, scaled := 0, 0
		for _, v := range out.Data.([]float32) {
			switch v {
			case 0:
				zeros++
			case 2:
				scaled++
			default:
				t.Fatalf("unexpected dropout output %v", v)
			}
		}
		if zeros == 0 || scaled == 0 {
			t.Errorf("dropout produced %d zeros and %d survivors, expected a mix", zeros, scaled)
		}
	})
}

func TestConv2DAutogradGradientFlow(t *testing.T) {
	input := gradTensor(t, []int{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	weight := gradTensor(t, []int{1, 1, 1, 1}, []float32{2})

	out := Conv2DAutograd(input, weight, nil, Conv2DParams{Stride: 1, Padding: 0, Dilation: 1, Groups: 1})
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// d(sum(2x))/dx = 2 everywhere; d/dw = sum(x) = 10.
	assertFloats(t, input.Grad().Data.([]float32), []float32{2, 2, 2, 2}, 1e-5)
	assertFloats(t, weight.Grad().Data.([]float32), []float32{10}, 1e-5)
}
