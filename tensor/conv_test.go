package tensor

import (
	"testing"
)

func TestConv2DBasic(t *testing.T) {
	input := tensorOf(t, []int{1, 1, 3, 3}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	weight := tensorOf(t, []int{1, 1, 2, 2}, []float32{1, 1, 1, 1})

	out, err := Conv2D(input, weight, nil, Conv2DParams{Stride: 1, Padding: 0, Dilation: 1, Groups: 1})
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}
	if out.Shape[2] != 2 || out.Shape[3] != 2 {
		t.Fatalf("unexpected output shape %v", out.Shape)
	}
	assertFloats(t, out.Data.([]float32), []float32{12, 16, 24, 28}, 1e-5)
}

func TestConv2DBias(t *testing.T) {
	input := tensorOf(t, []int{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	weight := tensorOf(t, []int{1, 1, 1, 1}, []float32{2})
	bias := tensorOf(t, []int{1}, []float32{10})

	out, err := Conv2D(input, weight, bias, Conv2DParams{Stride: 1, Padding: 0, Dilation: 1, Groups: 1})
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}
	assertFloats(t, out.Data.([]float32), []float32{12, 14, 16, 18}, 1e-5)
}

func TestConv2DDepthwise(t *testing.T) {
	// Two channels, groups=2, 1x1 kernels scaling each channel separately.
	input := tensorOf(t, []int{1, 2, 2, 2}, []float32{1, 1, 1, 1, 2, 2, 2, 2})
	weight := tensorOf(t, []int{2, 1, 1, 1}, []float32{2, 3})

	out, err := Conv2D(input, weight, nil, Conv2DParams{Stride: 1, Padding: 0, Dilation: 1, Groups: 2})
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}
	assertFloats(t, out.Data.([]float32), []float32{2, 2, 2, 2, 6, 6, 6, 6}, 1e-5)
}

func TestConv2DStridePadding(t *testing.T) {
	// 3x3 kernel with same-padding 1 and stride 2 halves the resolution.
	input, err := Ones([]int{1, 1, 4, 4}, Float32)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	weight := tensorOf(t, []int{1, 1, 3, 3}, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1})

	out, convErr := Conv2D(input, weight, nil, Conv2DParams{Stride: 2, Padding: 1, Dilation: 1, Groups: 1})
	if convErr != nil {
		t.Fatalf("Conv2D failed: %v", convErr)
	}
	if out.Shape[2] != 2 || out.Shape[3] != 2 {
		t.Fatalf("expected 2x2 output, got %v", out.Shape)
	}
	// Top-left window overlaps padding: 2x2 of the input is inside.
	assertFloats(t, out.Data.([]float32), []float32{4, 6, 6, 9}, 1e-5)
}

func TestConv2DDilation(t *testing.T) {
	// Dilation 2 with a 3x3 kernel covers a 5x5 receptive field; with
	// padding 2 the output keeps the input resolution.
	input, err := Ones([]int{1, 1, 5, 5}, Float32)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	weight := tensorOf(t, []int{1, 1, 3, 3}, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1})

	out, convErr := Conv2D(input, weight, nil, Conv2DParams{Stride: 1, Padding: 2, Dilation: 2, Groups: 1})
	if convErr != nil {
		t.Fatalf("Conv2D failed: %v", convErr)
	}
	if out.Shape[2] != 5 || out.Shape[3] != 5 {
		t.Fatalf("expected 5x5 output, got %v", out.Shape)
	}
	// Center tap sees all nine samples.
	center := out.Data.([]float32)[2*5+2]
	if center != 9 {
		t.Errorf("center output: got %v, want 9", center)
	}
}

func TestConv2DValidation(t *testing.T) {
	input := tensorOf(t, []int{1, 3, 4, 4}, nil)

	t.Run("groups must divide channels", func(t *testing.T) {
		weight := tensorOf(t, []int{4, 1, 3, 3}, nil)
		_, err := Conv2D(input, weight, nil, Conv2DParams{Stride: 1, Padding: 1, Dilation: 1, Groups: 2})
		if err == nil {
			t.Fatal("expected error when groups do not divide input channels")
		}
	})

	t.Run("weight channel mismatch", func(t *testing.T) {
		weight := tensorOf(t, []int{4, 2, 3, 3}, nil)
		_, err := Conv2D(input, weight, nil, Conv2DParams{Stride: 1, Padding: 1, Dilation: 1, Groups: 1})
		if err == nil {
			t.Fatal("expected error for weight input-channel mismatch")
		}
	})
}

func TestGlobalAvgPool2D(t *testing.T) {
	x := tensorOf(t, []int{1, 2, 2, 2}, []float32{1, 2, 3, 4, 10, 20, 30, 40})
	out, err := GlobalAvgPool2D(x)
	if err != nil {
		t.Fatalf("GlobalAvgPool2D failed: %v", err)
	}
	if out.Shape[2] != 1 || out.Shape[3] != 1 {
		t.Fatalf("unexpected output shape %v", out.Shape)
	}
	assertFloats(t, out.Data.([]float32), []float32{2.5, 25}, 1e-5)
}
