package tensor

import (
	"math"
	"testing"
)

func batchNormFixtures(t *testing.T, channels int) (gamma, beta, runningMean, runningVar *Tensor) {
	t.Helper()
	var err error
	gamma, err = Ones([]int{channels}, Float32)
	if err != nil {
		t.Fatalf("failed to create gamma: %v", err)
	}
	beta, err = Zeros([]int{channels}, Float32)
	if err != nil {
		t.Fatalf("failed to create beta: %v", err)
	}
	runningMean, err = Zeros([]int{channels}, Float32)
	if err != nil {
		t.Fatalf("failed to create running mean: %v", err)
	}
	runningVar, err = Ones([]int{channels}, Float32)
	if err != nil {
		t.Fatalf("failed to create running var: %v", err)
	}
	return gamma, beta, runningMean, runningVar
}

func TestBatchNormTrainingNormalizes(t *testing.T) {
	x := tensorOf(t, []int{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	gamma, beta, rm, rv := batchNormFixtures(t, 1)

	out, _, err := batchNorm2DForward(x, gamma, beta, rm, rv, 0.01, 1e-3, true)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	data := out.Data.([]float32)
	var mean float64
	for _, v := range data {
		mean += float64(v)
	}
	mean /= float64(len(data))
	if math.Abs(mean) > 1e-5 {
		t.Errorf("normalized mean: got %v, want ~0", mean)
	}

	var variance float64
	for _, v := range data {
		variance += (float64(v) - mean) * (float64(v) - mean)
	}
	variance /= float64(len(data))
	// Slightly below 1 because of eps.
	if math.Abs(variance-1) > 1e-2 {
		t.Errorf("normalized variance: got %v, want ~1", variance)
	}
}

func TestBatchNormRunningStatsUpdate(t *testing.T) {
	x := tensorOf(t, []int{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	gamma, beta, rm, rv := batchNormFixtures(t, 1)

	if _, _, err := batchNorm2DForward(x, gamma, beta, rm, rv, 0.01, 1e-3, true); err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	// Batch mean is 2.5: running mean moves there by the momentum.
	gotMean := rm.Data.([]float32)[0]
	if math.Abs(float64(gotMean)-0.01*2.5) > 1e-6 {
		t.Errorf("running mean: got %v, want %v", gotMean, 0.01*2.5)
	}

	// Unbiased batch variance of {1,2,3,4} is 5/3.
	gotVar := rv.Data.([]float32)[0]
	wantVar := 0.99*1.0 + 0.01*(5.0/3.0)
	if math.Abs(float64(gotVar)-wantVar) > 1e-5 {
		t.Errorf("running var: got %v, want %v", gotVar, wantVar)
	}
}

func TestBatchNormInferenceUsesRunningStats(t *testing.T) {
	x := tensorOf(t, []int{1, 1, 1, 2}, []float32{3, 5})
	gamma, beta, rm, rv := batchNormFixtures(t, 1)
	rm.Data.([]float32)[0] = 3
	rv.Data.([]float32)[0] = 4

	out, _, err := batchNorm2DForward(x, gamma, beta, rm, rv, 0.01, 0, false)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	// (x - 3) / sqrt(4) with eps 0.
	assertFloats(t, out.Data.([]float32), []float32{0, 1}, 1e-5)

	// Inference must not touch the running statistics.
	if rm.Data.([]float32)[0] != 3 || rv.Data.([]float32)[0] != 4 {
		t.Error("inference modified running statistics")
	}
}
