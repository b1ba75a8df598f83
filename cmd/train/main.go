// Command train fits a MobileNetV3-Small classifier on CIFAR-10 and writes
// the best checkpoint, a results file, and training curve plots to the
// output directory.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/tsawler/go-mobilenet/checkpoints"
	"github.com/tsawler/go-mobilenet/mobilenet"
	"github.com/tsawler/go-mobilenet/training"
	"github.com/tsawler/go-mobilenet/vision/dataset"
	"github.com/tsawler/go-mobilenet/vision/preprocessing"
	"github.com/tsawler/go-mobilenet/web"
)

func main() {
	var (
		dataPath     = flag.String("data_path", "./data/cifar-10-batches-bin", "directory with CIFAR-10 binary batches")
		outDir       = flag.String("out_dir", "run_0", "output directory for checkpoints, results, and plots")
		batchSize    = flag.Int("batch_size", 128, "batch size")
		learningRate = flag.Float64("learning_rate", 0.1, "initial learning rate")
		epochs       = flag.Int("epochs", 30, "number of training epochs")
		momentum     = flag.Float64("momentum", 0.9, "SGD momentum")
		weightDecay  = flag.Float64("weight_decay", 1e-4, "L2 weight decay")
		logInterval  = flag.Int("log_interval", 100, "batches between training log entries")
		numClasses   = flag.Int("num_classes", 10, "number of output classes")
		widthMult    = flag.Float64("width_mult", 1.0, "channel width multiplier")
		dropout      = flag.Float64("dropout", 0.2, "classifier dropout rate")
		reducedTail  = flag.Bool("reduced_tail", false, "halve the channel counts of the last stage")
		dilated      = flag.Bool("dilated", false, "use dilation instead of stride in the last stage")
		seed         = flag.Int64("seed", 1, "random seed for weights, shuffling, and augmentation")
		pretrained   = flag.String("pretrained", "", "checkpoint to transplant a pretrained backbone from")
		listen       = flag.String("listen", "", "address for the live monitoring server, e.g. :8080")
	)
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	net, err := mobilenet.New(mobilenet.Config{
		NumClasses:  *numClasses,
		WidthMult:   *widthMult,
		Dropout:     *dropout,
		ReducedTail: *reducedTail,
		Dilated:     *dilated,
		Seed:        *seed,
	})
	if err != nil {
		log.Fatalf("failed to build network: %v", err)
	}
	log.Printf("built MobileNetV3-Small with %d parameters", net.NumParameters())

	if *pretrained != "" {
		ckpt, err := checkpoints.Load(*pretrained)
		if err != nil {
			log.Fatalf("failed to load pretrained checkpoint: %v", err)
		}
		// The classifier head only transfers when the class count matches;
		// otherwise it keeps its fresh initialization.
		var exclude func(string) bool
		if ckpt.ModelConfig.NumClasses != *numClasses {
			exclude = checkpoints.ExcludeClassifier
		}
		if err := checkpoints.TransplantWeights(net, ckpt.Weights, exclude); err != nil {
			log.Fatalf("failed to transplant pretrained weights: %v", err)
		}
		log.Printf("transplanted weights from %s", *pretrained)
	}

	trainSet, err := dataset.LoadCIFAR10(*dataPath, true, preprocessing.NewTrainPipeline(), *seed)
	if err != nil {
		log.Fatalf("failed to load training data: %v", err)
	}
	testSet, err := dataset.LoadCIFAR10(*dataPath, false, preprocessing.NewEvalPipeline(), *seed)
	if err != nil {
		log.Fatalf("failed to load test data: %v", err)
	}
	log.Printf("loaded %d training and %d test samples", trainSet.Len(), testSet.Len())

	trainLoader, err := training.NewDataLoader(trainSet, *batchSize, true, *seed)
	if err != nil {
		log.Fatalf("failed to create training loader: %v", err)
	}
	testLoader, err := training.NewDataLoader(testSet, *batchSize, false, *seed)
	if err != nil {
		log.Fatalf("failed to create test loader: %v", err)
	}

	trainer, err := training.NewTrainer(net, training.TrainerConfig{
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LearningRate: *learningRate,
		Momentum:     *momentum,
		WeightDecay:  *weightDecay,
		LogInterval:  *logInterval,
		OutDir:       *outDir,
	})
	if err != nil {
		log.Fatalf("failed to create trainer: %v", err)
	}

	var monitor *web.Monitor
	if *listen != "" {
		monitor = web.NewMonitor()
		trainer.SetBatchCallback(monitor.PublishTrain)
		trainer.SetEpochCallback(monitor.PublishVal)
		go func() {
			log.Printf("monitoring server listening on %s", *listen)
			if err := monitor.Serve(*listen); err != nil {
				log.Printf("monitoring server stopped: %v", err)
			}
		}()
	}

	result, err := trainer.Fit(trainLoader, testLoader)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	if monitor != nil {
		monitor.Finish()
	}

	// Evaluate the best checkpoint on the test set for the final score.
	bestPath := filepath.Join(*outDir, "best_model.json")
	if ckpt, err := checkpoints.Load(bestPath); err == nil {
		if err := checkpoints.RestoreWeights(net, ckpt.Weights); err != nil {
			log.Fatalf("failed to restore best checkpoint: %v", err)
		}
	} else {
		log.Printf("no best checkpoint found, evaluating final weights: %v", err)
	}
	_, testAcc, err := trainer.Evaluate(testLoader)
	if err != nil {
		log.Fatalf("final evaluation failed: %v", err)
	}
	result.FinalInfo.TestAcc = testAcc
	log.Printf("best_val_acc=%.4f test_acc=%.4f total_train_time=%.1fs",
		result.FinalInfo.BestValAcc, testAcc, result.FinalInfo.TotalTrainTime)

	if err := training.SaveResults(result, filepath.Join(*outDir, "results.json")); err != nil {
		log.Fatalf("failed to save results: %v", err)
	}
	if err := training.PlotCurves(result, *outDir); err != nil {
		log.Fatalf("failed to render plots: %v", err)
	}
}
