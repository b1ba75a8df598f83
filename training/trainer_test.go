package training

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-mobilenet/mobilenet"
	"github.com/tsawler/go-mobilenet/tensor"
)

func tinyImageDataset(t *testing.T, n, size int) *SimpleDataset {
	t.Helper()
	rng := rand.New(rand.NewSource(3))

	data := make([]*tensor.Tensor, n)
	labels := make([]int32, n)
	for i := range data {
		img, err := tensor.Zeros([]int{3, size, size}, tensor.Float32)
		require.NoError(t, err)
		pixels := img.Data.([]float32)
		for j := range pixels {
			pixels[j] = rng.Float32()*2 - 1
		}
		data[i] = img
		labels[i] = int32(i % 2)
	}
	ds, err := NewSimpleDataset(data, labels)
	require.NoError(t, err)
	return ds
}

func TestTrainerFitSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training smoke test in short mode")
	}

	net, err := mobilenet.New(mobilenet.Config{
		NumClasses: 2,
		WidthMult:  1.0,
		Dropout:    0.2,
		Seed:       1,
	})
	require.NoError(t, err)

	ds := tinyImageDataset(t, 4, 8)
	trainLoader, err := NewDataLoader(ds, 2, true, 1)
	require.NoError(t, err)
	valLoader, err := NewDataLoader(ds, 2, false, 1)
	require.NoError(t, err)

	outDir := t.TempDir()
	trainer, err := NewTrainer(net, TrainerConfig{
		Epochs:       1,
		BatchSize:    2,
		LearningRate: 0.01,
		Momentum:     0.9,
		WeightDecay:  1e-4,
		LogInterval:  1,
		OutDir:       outDir,
	})
	require.NoError(t, err)

	var observed []LogEntry
	trainer.SetBatchCallback(func(e LogEntry) { observed = append(observed, e) })

	result, err := trainer.Fit(trainLoader, valLoader)
	require.NoError(t, err)

	assert.NotEmpty(t, result.TrainLog)
	assert.Len(t, result.ValLog, 1)
	assert.Equal(t, result.TrainLog, observed)
	assert.GreaterOrEqual(t, result.FinalInfo.BestValAcc, 0.0)
	assert.Greater(t, result.FinalInfo.TotalTrainTime, 0.0)

	// Best-model checkpoint written.
	_, err = os.Stat(filepath.Join(outDir, "best_model.json"))
	assert.NoError(t, err)

	// Results round-trip.
	resultsPath := filepath.Join(outDir, "results.json")
	require.NoError(t, SaveResults(result, resultsPath))
	loaded, err := LoadResults(resultsPath)
	require.NoError(t, err)
	assert.Equal(t, result.FinalInfo.BestValAcc, loaded.FinalInfo.BestValAcc)
	assert.Len(t, loaded.TrainLog, len(result.TrainLog))
}

func TestTrainerConfigValidation(t *testing.T) {
	net, err := mobilenet.New(mobilenet.DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultTrainerConfig()
	cfg.Epochs = 0
	_, err = NewTrainer(net, cfg)
	assert.Error(t, err)

	cfg = DefaultTrainerConfig()
	cfg.LearningRate = -1
	_, err = NewTrainer(net, cfg)
	assert.Error(t, err)

	cfg = DefaultTrainerConfig()
	cfg.LogInterval = 0
	_, err = NewTrainer(net, cfg)
	assert.Error(t, err)
}

func TestEvaluateEmptyLoaderFails(t *testing.T) {
	net, err := mobilenet.New(mobilenet.Config{NumClasses: 2, WidthMult: 1.0, Seed: 1})
	require.NoError(t, err)

	empty, err := NewSimpleDataset(nil, nil)
	require.NoError(t, err)
	loader, err := NewDataLoader(empty, 2, false, 1)
	require.NoError(t, err)

	trainer, err := NewTrainer(net, DefaultTrainerConfig())
	require.NoError(t, err)
	_, _, err = trainer.Evaluate(loader)
	assert.Error(t, err)
}
