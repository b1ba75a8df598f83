// Package checkpoints persists model state as JSON: the full state dict
// (weights plus batch norm running statistics), the configuration the
// network was built from, and training progress metadata.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsawler/go-mobilenet/mobilenet"
	"github.com/tsawler/go-mobilenet/tensor"
)

// Checkpoint represents a complete model state including weights and
// training metadata.
type Checkpoint struct {
	// ModelConfig is the configuration the network was assembled from. A
	// checkpoint can only be restored into a network built from an
	// equivalent config.
	ModelConfig mobilenet.Config `json:"model_config"`

	Weights []WeightTensor `json:"weights"`

	TrainingState TrainingState `json:"training_state"`

	Metadata Metadata `json:"metadata"`
}

// WeightTensor represents one named state tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures training progress at save time.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float64 `json:"learning_rate"`
	BestValAcc   float64 `json:"best_val_acc"`
}

// Metadata contains checkpoint provenance.
type Metadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Save writes the checkpoint as indented JSON.
func Save(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-mobilenet"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

// Load reads a checkpoint from a JSON file.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &checkpoint, nil
}

// ExtractWeights snapshots the network's full state dict, copying each
// tensor's data so later training steps do not mutate the checkpoint.
func ExtractWeights(net *mobilenet.Network) ([]WeightTensor, error) {
	entries := net.StateDict()
	weights := make([]WeightTensor, 0, len(entries))
	for _, entry := range entries {
		data, err := entry.Value.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to extract data for %s: %v", entry.Name, err)
		}
		snapshot := make([]float32, len(data))
		copy(snapshot, data)

		shape := make([]int, len(entry.Value.Shape))
		copy(shape, entry.Value.Shape)

		weights = append(weights, WeightTensor{
			Name:  entry.Name,
			Shape: shape,
			Data:  snapshot,
		})
	}
	return weights, nil
}

// RestoreWeights loads the named weights into the network. Every weight in
// the checkpoint must exist in the network with an identical shape, and
// every network state entry must be covered; partial restores use
// TransplantWeights instead.
func RestoreWeights(net *mobilenet.Network, weights []WeightTensor) error {
	covered := make(map[string]bool, len(weights))
	values := make(map[string]*tensor.Tensor, len(weights))
	for _, w := range weights {
		t, err := tensor.NewTensor(w.Shape, tensor.Float32, w.Data)
		if err != nil {
			return fmt.Errorf("invalid weight %s: %v", w.Name, err)
		}
		values[w.Name] = t
		covered[w.Name] = true
	}

	for _, entry := range net.StateDict() {
		if !covered[entry.Name] {
			return fmt.Errorf("checkpoint missing state entry %q", entry.Name)
		}
	}
	return net.SetState(values, nil)
}

// TransplantWeights copies a pretrained state dict into the network,
// skipping entries the exclude predicate matches. Weights present in the
// checkpoint but absent from the network, or with mismatched shapes, abort
// with an error; network entries the checkpoint does not cover keep their
// freshly initialized values.
func TransplantWeights(net *mobilenet.Network, weights []WeightTensor, exclude func(name string) bool) error {
	values := make(map[string]*tensor.Tensor, len(weights))
	for _, w := range weights {
		t, err := tensor.NewTensor(w.Shape, tensor.Float32, w.Data)
		if err != nil {
			return fmt.Errorf("invalid weight %s: %v", w.Name, err)
		}
		values[w.Name] = t
	}
	return net.SetState(values, exclude)
}

// ExcludeClassifier matches the classifier head's entries. Use it with
// TransplantWeights to load a pretrained backbone under a new head, the
// standard fine-tuning setup when the class count changes.
func ExcludeClassifier(name string) bool {
	return strings.HasPrefix(name, "classifier.")
}
