package mobilenet

import (
	"fmt"
	stdrand "math/rand"

	"golang.org/x/exp/rand"

	"github.com/tsawler/go-mobilenet/tensor"
)

// Network is an assembled MobileNetV3-Small classifier. Build one with New;
// the zero value is not usable.
type Network struct {
	cfg    Config
	specs  []BlockSpec
	stem   *ConvNormAct
	blocks []*InvertedResidual
	tail   *ConvNormAct
	head   *classifier

	// tailChannels is the feature width entering the classifier.
	tailChannels int

	dropRNG *stdrand.Rand
}

// New assembles a network from the configuration. Construction is
// deterministic for a given config: the same seed always yields identical
// initial weights.
func New(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	initRNG := rand.New(rand.NewSource(uint64(cfg.Seed)))
	specs := smallSchedule(cfg.WidthMult, cfg.ReducedTail, cfg.Dilated)

	n := &Network{
		cfg:     cfg,
		specs:   specs,
		dropRNG: stdrand.New(stdrand.NewSource(cfg.Seed)),
	}

	var err error
	n.stem, err = newConvNormAct(3, specs[0].InputChannels, 3, 2, 1, 1, true, ActHardSwish, initRNG)
	if err != nil {
		return nil, fmt.Errorf("failed to build stem: %v", err)
	}

	for i, spec := range specs {
		blk, buildErr := newInvertedResidual(spec, initRNG)
		if buildErr != nil {
			return nil, fmt.Errorf("failed to build block %d: %v", i, buildErr)
		}
		n.blocks = append(n.blocks, blk)
	}

	n.tailChannels = AdjustChannels(576, cfg.WidthMult)
	n.tail, err = newConvNormAct(specs[len(specs)-1].OutChannels, n.tailChannels, 1, 1, 1, 1, true, ActHardSwish, initRNG)
	if err != nil {
		return nil, fmt.Errorf("failed to build tail: %v", err)
	}

	reduceDivider := 1
	if cfg.ReducedTail {
		reduceDivider = 2
	}
	hidden := MakeDivisible(float64(1024/reduceDivider)*cfg.WidthMult, ChannelDivisor, 0)
	n.head, err = newClassifier(n.tailChannels, hidden, cfg.NumClasses, cfg.Dropout, initRNG)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %v", err)
	}
	return n, nil
}

// Config returns the configuration the network was built from.
func (n *Network) Config() Config { return n.cfg }

// BlockSpecs returns the width-scaled schedule the network was assembled
// from.
func (n *Network) BlockSpecs() []BlockSpec { return n.specs }

// Forward runs the network on a batch of images [batch, 3, height, width]
// and returns logits [batch, NumClasses]. The training flag switches batch
// norm to batch statistics and enables dropout; it must be false for
// evaluation.
func (n *Network) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || x.Shape[1] != 3 {
		return nil, fmt.Errorf("input must have shape [batch, 3, height, width], got %v", x.Shape)
	}

	out := n.stem.Forward(x, training)
	for _, blk := range n.blocks {
		out = blk.Forward(out, training)
	}
	out = n.tail.Forward(out, training)

	out = tensor.GlobalAvgPool2DAutograd(out)
	out = tensor.ReshapeAutograd(out, []int{x.Shape[0], n.tailChannels})
	return n.head.forward(out, training, n.dropRNG), nil
}

// NamedParameters returns every trainable parameter with its dotted name,
// in a stable order.
func (n *Network) NamedParameters() []NamedParam {
	var params []NamedParam
	params = n.stem.parameters("stem", params)
	for i, blk := range n.blocks {
		params = blk.parameters(fmt.Sprintf("blocks.%d", i), params)
	}
	params = n.tail.parameters("tail", params)
	params = n.head.parameters("classifier", params)
	return params
}

// Parameters returns the trainable parameter tensors in the same order as
// NamedParameters.
func (n *Network) Parameters() []*tensor.Tensor {
	named := n.NamedParameters()
	params := make([]*tensor.Tensor, len(named))
	for i, p := range named {
		params[i] = p.Value
	}
	return params
}

// StateDict returns every state tensor: the trainable parameters plus the
// batch norm running statistics. The result captures everything needed to
// reproduce the network's inference behavior.
func (n *Network) StateDict() []NamedParam {
	var entries []NamedParam
	entries = n.stem.stateEntries("stem", entries)
	for i, blk := range n.blocks {
		entries = blk.stateEntries(fmt.Sprintf("blocks.%d", i), entries)
	}
	entries = n.tail.stateEntries("tail", entries)
	entries = n.head.parameters("classifier", entries)
	return entries
}

// SetState copies the given tensors into the network's matching state
// entries. Every provided name must exist in the network and have an
// identical shape; a mismatch aborts with an error before any further
// copies. Entries not named in values keep their current contents.
//
// The exclude predicate skips entries by name without error, which is how
// pretrained backbones are transplanted under a classifier of a different
// width: exclude everything under "classifier.".
func (n *Network) SetState(values map[string]*tensor.Tensor, exclude func(name string) bool) error {
	byName := make(map[string]*tensor.Tensor)
	for _, e := range n.StateDict() {
		byName[e.Name] = e.Value
	}

	for name, src := range values {
		if exclude != nil && exclude(name) {
			continue
		}
		dst, ok := byName[name]
		if !ok {
			return fmt.Errorf("no state entry named %q in network", name)
		}
		if err := copyTensorData(dst, src, name); err != nil {
			return err
		}
	}
	return nil
}

func copyTensorData(dst, src *tensor.Tensor, name string) error {
	if len(dst.Shape) != len(src.Shape) {
		return fmt.Errorf("shape mismatch for %q: have %v, got %v", name, dst.Shape, src.Shape)
	}
	for i := range dst.Shape {
		if dst.Shape[i] != src.Shape[i] {
			return fmt.Errorf("shape mismatch for %q: have %v, got %v", name, dst.Shape, src.Shape)
		}
	}
	dstData, err := dst.GetFloat32Data()
	if err != nil {
		return fmt.Errorf("state entry %q: %v", name, err)
	}
	srcData, err := src.GetFloat32Data()
	if err != nil {
		return fmt.Errorf("source for %q: %v", name, err)
	}
	copy(dstData, srcData)
	return nil
}

// NumParameters reports the total trainable parameter count.
func (n *Network) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.NumElems
	}
	return total
}
