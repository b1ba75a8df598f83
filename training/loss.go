package training

import (
	"fmt"

	"github.com/tsawler/go-mobilenet/tensor"
)

// Loss computes a scalar training objective from logits and integer labels.
type Loss interface {
	// Compute returns a single-element loss tensor connected to the
	// autograd graph of the logits.
	Compute(logits, labels *tensor.Tensor) (*tensor.Tensor, error)
	// GetName returns the loss name for logging.
	GetName() string
}

// CrossEntropyLoss is softmax cross-entropy averaged over the batch,
// computed in one fused step for numerical stability.
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a cross-entropy loss.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

func (l *CrossEntropyLoss) Compute(logits, labels *tensor.Tensor) (loss *tensor.Tensor, err error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("cross entropy requires 2D logits [batch, classes], got %v", logits.Shape)
	}
	if labels.DType != tensor.Int32 {
		return nil, fmt.Errorf("cross entropy requires Int32 labels, got %s", labels.DType)
	}

	// The fused op panics on malformed input; the shape checks above make
	// that unreachable for caller mistakes, so recover only guards against
	// out-of-range labels in the data itself.
	defer func() {
		if r := recover(); r != nil {
			loss = nil
			err = fmt.Errorf("cross entropy failed: %v", r)
		}
	}()
	return tensor.SoftmaxCrossEntropyAutograd(logits, labels), nil
}

func (l *CrossEntropyLoss) GetName() string {
	return "CrossEntropy"
}

// Accuracy returns the fraction of rows whose argmax matches the label.
func Accuracy(logits, labels *tensor.Tensor) (float64, error) {
	pred, err := tensor.ArgMax(logits)
	if err != nil {
		return 0, fmt.Errorf("failed to compute predictions: %v", err)
	}
	predData, err := pred.GetInt32Data()
	if err != nil {
		return 0, err
	}
	labelData, err := labels.GetInt32Data()
	if err != nil {
		return 0, err
	}
	if len(predData) != len(labelData) {
		return 0, fmt.Errorf("prediction count %d does not match label count %d", len(predData), len(labelData))
	}

	correct := 0
	for i := range predData {
		if predData[i] == labelData[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(predData)), nil
}
