// Package dataset loads image classification datasets from disk.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/tsawler/go-mobilenet/tensor"
	"github.com/tsawler/go-mobilenet/vision/preprocessing"
)

// CIFAR-10 binary format constants: each record is one label byte followed
// by a 32x32 RGB image stored channel-planar, red plane first.
const (
	cifarImageSize  = 32
	cifarChannels   = 3
	cifarPixels     = cifarChannels * cifarImageSize * cifarImageSize
	cifarRecordSize = 1 + cifarPixels
	cifarNumClasses = 10
)

var cifarTrainFiles = []string{
	"data_batch_1.bin",
	"data_batch_2.bin",
	"data_batch_3.bin",
	"data_batch_4.bin",
	"data_batch_5.bin",
}

const cifarTestFile = "test_batch.bin"

// CIFAR10Classes names the ten classes in label order.
var CIFAR10Classes = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

// CIFAR10 is the CIFAR-10 dataset loaded into memory, with an optional
// per-sample transform applied on access. It satisfies training.Dataset.
type CIFAR10 struct {
	images    [][]float32 // CHW, values in [0, 1]
	labels    []int32
	transform *preprocessing.Pipeline
	rng       *rand.Rand
}

// LoadCIFAR10 reads the binary batch files from dir. With train true the
// five training batches are loaded, otherwise the test batch. The transform
// may be nil; augmentation randomness comes from seed.
func LoadCIFAR10(dir string, train bool, transform *preprocessing.Pipeline, seed int64) (*CIFAR10, error) {
	files := []string{cifarTestFile}
	if train {
		files = cifarTrainFiles
	}

	ds := &CIFAR10{
		transform: transform,
		rng:       rand.New(rand.NewSource(seed)),
	}
	for _, name := range files {
		if err := ds.loadBatchFile(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (ds *CIFAR10) loadBatchFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CIFAR-10 batch: %v", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	record := make([]byte, cifarRecordSize)
	for {
		_, err := io.ReadFull(reader, record)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("truncated CIFAR-10 record in %s: %v", path, err)
		}

		label := int32(record[0])
		if label >= cifarNumClasses {
			return fmt.Errorf("invalid label %d in %s", label, path)
		}

		pixels := make([]float32, cifarPixels)
		for i, b := range record[1:] {
			pixels[i] = float32(b) / 255.0
		}
		ds.images = append(ds.images, pixels)
		ds.labels = append(ds.labels, label)
	}
}

// Len returns the number of samples.
func (ds *CIFAR10) Len() int {
	return len(ds.images)
}

// Get returns sample idx as a [3, 32, 32] tensor with the transform
// applied. Not safe for concurrent use when a randomized transform is set.
func (ds *CIFAR10) Get(idx int) (*tensor.Tensor, int32, error) {
	if idx < 0 || idx >= len(ds.images) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.images))
	}

	data := ds.images[idx]
	if ds.transform != nil {
		img, err := preprocessing.NewImage(data, cifarChannels, cifarImageSize, cifarImageSize)
		if err != nil {
			return nil, 0, err
		}
		data = ds.transform.Apply(img, ds.rng).Data
	}

	t, err := tensor.NewTensor([]int{cifarChannels, cifarImageSize, cifarImageSize}, tensor.Float32, data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build sample tensor: %v", err)
	}
	return t, ds.labels[idx], nil
}
