// Package training provides the optimizer, loss, learning rate schedule,
// data loading, and epoch loop used to train and evaluate classifiers.
package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/tsawler/go-mobilenet/tensor"
)

// Dataset is the minimal source of labeled samples.
type Dataset interface {
	// Len returns the total number of samples.
	Len() int
	// Get returns a single sample: the image tensor and its class index.
	Get(idx int) (data *tensor.Tensor, label int32, err error)
}

// Batch holds a stacked batch of images [batch, C, H, W] and labels [batch].
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
}

// DataLoader provides batching and per-epoch shuffling over a Dataset. It is
// safe for concurrent use.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a DataLoader. The seed drives shuffling so runs are
// reproducible.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, seed int64) (*DataLoader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   indices,
	}, nil
}

// Len returns the number of batches in an epoch. The final batch may be
// smaller than the batch size.
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if enabled.
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := dl.rng.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// Next returns the next batch, or nil when the epoch is complete.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}
	return batch, nil
}

// HasNext reports whether more batches remain in the current epoch.
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	firstData, firstLabel, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %v", indices[0], err)
	}

	batchSize := len(indices)
	dataShape := append([]int{batchSize}, firstData.Shape...)

	batchData, err := tensor.Zeros(dataShape, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch data tensor: %v", err)
	}
	batchLabels, err := tensor.Zeros([]int{batchSize}, tensor.Int32)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch labels tensor: %v", err)
	}

	dataDst := batchData.Data.([]float32)
	labelDst := batchLabels.Data.([]int32)
	sampleSize := firstData.NumElems

	copyData, err := firstData.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	copy(dataDst[:sampleSize], copyData)
	labelDst[0] = firstLabel

	for i, idx := range indices[1:] {
		data, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		if data.NumElems != sampleSize {
			return nil, fmt.Errorf("sample %d has %d elements, expected %d", idx, data.NumElems, sampleSize)
		}
		src, err := data.GetFloat32Data()
		if err != nil {
			return nil, err
		}
		offset := (i + 1) * sampleSize
		copy(dataDst[offset:offset+sampleSize], src)
		labelDst[i+1] = label
	}

	return &Batch{Data: batchData, Labels: batchLabels}, nil
}

// SimpleDataset is an in-memory Dataset, mainly for tests and small runs.
type SimpleDataset struct {
	data   []*tensor.Tensor
	labels []int32
}

// NewSimpleDataset creates a dataset over pre-built sample tensors.
func NewSimpleDataset(data []*tensor.Tensor, labels []int32) (*SimpleDataset, error) {
	if len(data) != len(labels) {
		return nil, fmt.Errorf("data and labels must have the same length: got %d and %d", len(data), len(labels))
	}
	return &SimpleDataset{data: data, labels: labels}, nil
}

func (ds *SimpleDataset) Len() int {
	return len(ds.data)
}

func (ds *SimpleDataset) Get(idx int) (*tensor.Tensor, int32, error) {
	if idx < 0 || idx >= len(ds.data) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.data))
	}
	return ds.data[idx], ds.labels[idx], nil
}
