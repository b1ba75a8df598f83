package training

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/tsawler/go-mobilenet/checkpoints"
	"github.com/tsawler/go-mobilenet/mobilenet"
)

// TrainerConfig holds the hyperparameters of a training run.
type TrainerConfig struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Momentum     float64 `json:"momentum"`
	WeightDecay  float64 `json:"weight_decay"`
	LogInterval  int     `json:"log_interval"`
	OutDir       string  `json:"out_dir"`
}

// DefaultTrainerConfig returns the standard CIFAR-10 recipe.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:       30,
		BatchSize:    128,
		LearningRate: 0.1,
		Momentum:     0.9,
		WeightDecay:  1e-4,
		LogInterval:  100,
		OutDir:       "run_0",
	}
}

// Validate checks the configuration for unusable values.
func (c TrainerConfig) Validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.LogInterval < 1 {
		return fmt.Errorf("log interval must be at least 1, got %d", c.LogInterval)
	}
	return nil
}

// LogEntry is one logged measurement during training or validation.
type LogEntry struct {
	Epoch int     `json:"epoch"`
	Batch int     `json:"batch"`
	Loss  float64 `json:"loss"`
	Acc   float64 `json:"acc"`
	LR    float64 `json:"lr"`
}

// Trainer drives the epoch loop: forward, loss, backward, optimizer step,
// periodic logging, per-epoch validation, and best-model checkpointing.
type Trainer struct {
	net       *mobilenet.Network
	cfg       TrainerConfig
	loss      Loss
	optimizer Optimizer
	scheduler LRScheduler

	trainLog []LogEntry
	valLog   []LogEntry

	// onBatch and onEpoch, when set, observe logged entries. The web
	// monitor uses them to stream progress.
	onBatch func(LogEntry)
	onEpoch func(LogEntry)
}

// NewTrainer creates a trainer with SGD and cosine annealing over the full
// run, the recipe this model family is trained with.
func NewTrainer(net *mobilenet.Network, cfg TrainerConfig) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trainer config: %v", err)
	}
	opt, err := NewSGD(net.Parameters(), cfg.LearningRate, cfg.Momentum, cfg.WeightDecay)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		net:       net,
		cfg:       cfg,
		loss:      NewCrossEntropyLoss(),
		optimizer: opt,
		scheduler: NewCosineAnnealingLRScheduler(cfg.Epochs, 0),
	}, nil
}

// SetBatchCallback registers an observer for logged training entries.
func (t *Trainer) SetBatchCallback(fn func(LogEntry)) {
	t.onBatch = fn
}

// SetEpochCallback registers an observer for per-epoch validation entries.
func (t *Trainer) SetEpochCallback(fn func(LogEntry)) {
	t.onEpoch = fn
}

// TrainLog returns the logged training entries so far.
func (t *Trainer) TrainLog() []LogEntry { return t.trainLog }

// ValLog returns the logged validation entries so far.
func (t *Trainer) ValLog() []LogEntry { return t.valLog }

// Fit trains the network and returns the run result. The best model by
// validation accuracy is written to OutDir/best_model.json after every
// improving epoch.
func (t *Trainer) Fit(train, val *DataLoader) (*Result, error) {
	start := time.Now()
	bestValAcc := 0.0

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		lr := t.scheduler.GetLR(epoch, 0, t.cfg.LearningRate)
		t.optimizer.SetLR(lr)

		if err := t.trainEpoch(train, epoch, lr); err != nil {
			return nil, fmt.Errorf("epoch %d failed: %v", epoch, err)
		}

		valLoss, valAcc, err := t.Evaluate(val)
		if err != nil {
			return nil, fmt.Errorf("validation after epoch %d failed: %v", epoch, err)
		}
		valEntry := LogEntry{Epoch: epoch, Loss: valLoss, Acc: valAcc, LR: lr}
		t.valLog = append(t.valLog, valEntry)
		log.Printf("epoch %d: val_loss=%.4f val_acc=%.4f lr=%.5f", epoch, valLoss, valAcc, lr)
		if t.onEpoch != nil {
			t.onEpoch(valEntry)
		}

		if valAcc > bestValAcc {
			bestValAcc = valAcc
			if err := t.saveBest(epoch, lr, bestValAcc); err != nil {
				return nil, err
			}
		}
	}

	return &Result{
		FinalInfo: FinalInfo{
			BestValAcc:     bestValAcc,
			TotalTrainTime: time.Since(start).Seconds(),
			Config:         t.cfg,
		},
		TrainLog: t.trainLog,
		ValLog:   t.valLog,
	}, nil
}

func (t *Trainer) trainEpoch(train *DataLoader, epoch int, lr float64) error {
	train.Reset()
	batchIdx := 0
	for train.HasNext() {
		batch, err := train.Next()
		if err != nil {
			return err
		}
		if batch == nil {
			break
		}

		t.optimizer.ZeroGrad()

		logits, err := t.net.Forward(batch.Data, true)
		if err != nil {
			return fmt.Errorf("forward pass failed: %v", err)
		}
		loss, err := t.loss.Compute(logits, batch.Labels)
		if err != nil {
			return err
		}
		if err := loss.Backward(); err != nil {
			return fmt.Errorf("backward pass failed: %v", err)
		}
		if err := t.optimizer.Step(); err != nil {
			return err
		}

		if batchIdx%t.cfg.LogInterval == 0 {
			lossData, err := loss.GetFloat32Data()
			if err != nil {
				return err
			}
			acc, err := Accuracy(logits, batch.Labels)
			if err != nil {
				return err
			}
			entry := LogEntry{Epoch: epoch, Batch: batchIdx, Loss: float64(lossData[0]), Acc: acc, LR: lr}
			t.trainLog = append(t.trainLog, entry)
			log.Printf("epoch %d batch %d: loss=%.4f acc=%.4f", epoch, batchIdx, entry.Loss, entry.Acc)
			if t.onBatch != nil {
				t.onBatch(entry)
			}
		}
		batchIdx++
	}
	return nil
}

// Evaluate runs the network in inference mode over the loader and returns
// the mean loss and accuracy.
func (t *Trainer) Evaluate(loader *DataLoader) (float64, float64, error) {
	loader.Reset()

	var totalLoss, totalAcc float64
	var totalSamples int
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			return 0, 0, err
		}
		if batch == nil {
			break
		}
		n := batch.Labels.Shape[0]

		logits, err := t.net.Forward(batch.Data, false)
		if err != nil {
			return 0, 0, fmt.Errorf("forward pass failed: %v", err)
		}
		loss, err := t.loss.Compute(logits, batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		lossData, err := loss.GetFloat32Data()
		if err != nil {
			return 0, 0, err
		}
		acc, err := Accuracy(logits, batch.Labels)
		if err != nil {
			return 0, 0, err
		}

		totalLoss += float64(lossData[0]) * float64(n)
		totalAcc += acc * float64(n)
		totalSamples += n
	}
	if totalSamples == 0 {
		return 0, 0, fmt.Errorf("evaluation loader produced no samples")
	}
	return totalLoss / float64(totalSamples), totalAcc / float64(totalSamples), nil
}

func (t *Trainer) saveBest(epoch int, lr, bestValAcc float64) error {
	weights, err := checkpoints.ExtractWeights(t.net)
	if err != nil {
		return fmt.Errorf("failed to extract weights: %v", err)
	}
	ckpt := &checkpoints.Checkpoint{
		ModelConfig: t.net.Config(),
		Weights:     weights,
		TrainingState: checkpoints.TrainingState{
			Epoch:        epoch,
			LearningRate: lr,
			BestValAcc:   bestValAcc,
		},
	}
	path := filepath.Join(t.cfg.OutDir, "best_model.json")
	if err := checkpoints.Save(ckpt, path); err != nil {
		return fmt.Errorf("failed to save checkpoint: %v", err)
	}
	return nil
}
