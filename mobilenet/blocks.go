package mobilenet

import (
	"fmt"
	"math"
	stdrand "math/rand"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tsawler/go-mobilenet/tensor"
)

// Batch normalization constants used throughout the network.
const (
	batchNormEps      = 0.001
	batchNormMomentum = 0.01
)

// NamedParam pairs a tensor with its fully qualified dotted name in the
// network, e.g. "blocks.3.depthwise.conv.weight".
type NamedParam struct {
	Name  string
	Value *tensor.Tensor
}

// fillKaimingNormal initializes a conv weight with draws from
// N(0, 2/fanOut) where fanOut = outChannels * kernel * kernel.
func fillKaimingNormal(w *tensor.Tensor, fanOut int, rng *rand.Rand) {
	fillNormal(w, 0, math.Sqrt(2/float64(fanOut)), rng)
}

// fillNormal initializes a tensor with draws from N(mean, std).
func fillNormal(w *tensor.Tensor, mean, std float64, rng *rand.Rand) {
	dist := distuv.Normal{Mu: mean, Sigma: std, Src: rng}
	data := w.Data.([]float32)
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

// conv2d is a convolution layer with optional bias. The weight layout is
// [outChannels, inChannels/groups, kernel, kernel].
type conv2d struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
	params tensor.Conv2DParams
}

// newConv2D builds a convolution with same-padding for odd kernels:
// padding = (kernel-1)/2 * dilation.
func newConv2D(inC, outC, kernel, stride, dilation, groups int, withBias bool, rng *rand.Rand) (*conv2d, error) {
	if inC%groups != 0 {
		return nil, fmt.Errorf("input channels %d not divisible by groups %d", inC, groups)
	}
	weight, err := tensor.Zeros([]int{outC, inC / groups, kernel, kernel}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	weight.SetRequiresGrad(true)
	fillKaimingNormal(weight, outC*kernel*kernel, rng)

	c := &conv2d{
		weight: weight,
		params: tensor.Conv2DParams{
			Stride:   stride,
			Padding:  (kernel - 1) / 2 * dilation,
			Dilation: dilation,
			Groups:   groups,
		},
	}
	if withBias {
		c.bias, err = tensor.Zeros([]int{outC}, tensor.Float32)
		if err != nil {
			return nil, err
		}
		c.bias.SetRequiresGrad(true)
	}
	return c, nil
}

func (c *conv2d) forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Conv2DAutograd(x, c.weight, c.bias, c.params)
}

func (c *conv2d) parameters(prefix string, dst []NamedParam) []NamedParam {
	dst = append(dst, NamedParam{prefix + ".weight", c.weight})
	if c.bias != nil {
		dst = append(dst, NamedParam{prefix + ".bias", c.bias})
	}
	return dst
}

// batchNorm2d normalizes each channel and tracks running statistics for
// inference.
type batchNorm2d struct {
	gamma       *tensor.Tensor
	beta        *tensor.Tensor
	runningMean *tensor.Tensor
	runningVar  *tensor.Tensor
}

func newBatchNorm2D(channels int) (*batchNorm2d, error) {
	gamma, err := tensor.Ones([]int{channels}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	gamma.SetRequiresGrad(true)
	beta, err := tensor.Zeros([]int{channels}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	beta.SetRequiresGrad(true)
	runningMean, err := tensor.Zeros([]int{channels}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	runningVar, err := tensor.Ones([]int{channels}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	return &batchNorm2d{gamma: gamma, beta: beta, runningMean: runningMean, runningVar: runningVar}, nil
}

func (b *batchNorm2d) forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	return tensor.BatchNorm2DAutograd(x, b.gamma, b.beta, b.runningMean, b.runningVar, batchNormMomentum, batchNormEps, training)
}

func (b *batchNorm2d) parameters(prefix string, dst []NamedParam) []NamedParam {
	dst = append(dst, NamedParam{prefix + ".gamma", b.gamma})
	dst = append(dst, NamedParam{prefix + ".beta", b.beta})
	return dst
}

func (b *batchNorm2d) stateEntries(prefix string, dst []NamedParam) []NamedParam {
	dst = b.parameters(prefix, dst)
	dst = append(dst, NamedParam{prefix + ".running_mean", b.runningMean})
	dst = append(dst, NamedParam{prefix + ".running_var", b.runningVar})
	return dst
}

// linear is a fully connected layer. The weight layout is [in, out] so the
// forward pass is a single x @ W plus a broadcast bias.
type linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

func newLinear(inFeatures, outFeatures int, rng *rand.Rand) (*linear, error) {
	weight, err := tensor.Zeros([]int{inFeatures, outFeatures}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	weight.SetRequiresGrad(true)
	fillNormal(weight, 0, 0.01, rng)

	bias, err := tensor.Zeros([]int{outFeatures}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	bias.SetRequiresGrad(true)
	return &linear{weight: weight, bias: bias}, nil
}

func (l *linear) forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.AddAutograd(tensor.MatMulAutograd(x, l.weight), l.bias)
}

func (l *linear) parameters(prefix string, dst []NamedParam) []NamedParam {
	dst = append(dst, NamedParam{prefix + ".weight", l.weight})
	dst = append(dst, NamedParam{prefix + ".bias", l.bias})
	return dst
}

// applyActivation dispatches on the activation tag.
func applyActivation(x *tensor.Tensor, act Activation) *tensor.Tensor {
	switch act {
	case ActNone:
		return x
	case ActReLU:
		return tensor.ReLUAutograd(x)
	case ActHardSwish:
		return tensor.HardSwishAutograd(x)
	default:
		panic(fmt.Sprintf("unknown activation %d", int(act)))
	}
}

// ConvNormAct is the conv -> batch norm -> activation unit used everywhere
// in the network. The convolution carries a bias only when normalization is
// disabled.
type ConvNormAct struct {
	conv *conv2d
	norm *batchNorm2d
	act  Activation
}

func newConvNormAct(inC, outC, kernel, stride, dilation, groups int, withNorm bool, act Activation, rng *rand.Rand) (*ConvNormAct, error) {
	conv, err := newConv2D(inC, outC, kernel, stride, dilation, groups, !withNorm, rng)
	if err != nil {
		return nil, err
	}
	cna := &ConvNormAct{conv: conv, act: act}
	if withNorm {
		cna.norm, err = newBatchNorm2D(outC)
		if err != nil {
			return nil, err
		}
	}
	return cna, nil
}

// Forward applies conv, then norm when present, then the activation, in
// that fixed order.
func (c *ConvNormAct) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	out := c.conv.forward(x)
	if c.norm != nil {
		out = c.norm.forward(out, training)
	}
	return applyActivation(out, c.act)
}

func (c *ConvNormAct) parameters(prefix string, dst []NamedParam) []NamedParam {
	dst = c.conv.parameters(prefix+".conv", dst)
	if c.norm != nil {
		dst = c.norm.parameters(prefix+".norm", dst)
	}
	return dst
}

func (c *ConvNormAct) stateEntries(prefix string, dst []NamedParam) []NamedParam {
	dst = c.conv.parameters(prefix+".conv", dst)
	if c.norm != nil {
		dst = c.norm.stateEntries(prefix+".norm", dst)
	}
	return dst
}

// SqueezeExcite recalibrates channels with a squeeze (global average pool),
// two 1x1 convolutions, and a hard-sigmoid gate multiplied back onto the
// input. The squeeze width is MakeDivisible(channels/4, 8).
type SqueezeExcite struct {
	fc1 *conv2d
	fc2 *conv2d
}

func newSqueezeExcite(channels int, rng *rand.Rand) (*SqueezeExcite, error) {
	squeeze := MakeDivisible(float64(channels/4), ChannelDivisor, 0)
	fc1, err := newConv2D(channels, squeeze, 1, 1, 1, 1, true, rng)
	if err != nil {
		return nil, err
	}
	fc2, err := newConv2D(squeeze, channels, 1, 1, 1, 1, true, rng)
	if err != nil {
		return nil, err
	}
	return &SqueezeExcite{fc1: fc1, fc2: fc2}, nil
}

// Forward computes the per-channel gate in [0, 1] and scales the input by
// it. Spatial dimensions are preserved.
func (s *SqueezeExcite) Forward(x *tensor.Tensor) *tensor.Tensor {
	scale := tensor.GlobalAvgPool2DAutograd(x)
	scale = tensor.ReLUAutograd(s.fc1.forward(scale))
	scale = tensor.HardSigmoidAutograd(s.fc2.forward(scale))
	return tensor.MulAutograd(x, scale)
}

func (s *SqueezeExcite) parameters(prefix string, dst []NamedParam) []NamedParam {
	dst = s.fc1.parameters(prefix+".fc1", dst)
	dst = s.fc2.parameters(prefix+".fc2", dst)
	return dst
}

// InvertedResidual is the MobileNetV3 bottleneck block: optional 1x1
// expansion, depthwise convolution, optional squeeze-excite, and a linear
// 1x1 projection, with an identity shortcut when the block preserves both
// resolution and channel count.
type InvertedResidual struct {
	expand      *ConvNormAct // nil when expansion equals input width
	depthwise   *ConvNormAct
	se          *SqueezeExcite // nil when the spec disables SE
	project     *ConvNormAct
	useShortcut bool
}

func newInvertedResidual(spec BlockSpec, rng *rand.Rand) (*InvertedResidual, error) {
	if spec.Stride < 1 || spec.Stride > 2 {
		return nil, fmt.Errorf("illegal stride %d: inverted residual blocks support strides 1 and 2", spec.Stride)
	}

	blk := &InvertedResidual{
		useShortcut: spec.Stride == 1 && spec.InputChannels == spec.OutChannels,
	}

	var err error
	if spec.ExpandedChannels != spec.InputChannels {
		blk.expand, err = newConvNormAct(spec.InputChannels, spec.ExpandedChannels, 1, 1, 1, 1, true, spec.Activation, rng)
		if err != nil {
			return nil, err
		}
	}

	blk.depthwise, err = newConvNormAct(spec.ExpandedChannels, spec.ExpandedChannels, spec.Kernel, spec.Stride, spec.Dilation, spec.ExpandedChannels, true, spec.Activation, rng)
	if err != nil {
		return nil, err
	}

	if spec.UseSE {
		blk.se, err = newSqueezeExcite(spec.ExpandedChannels, rng)
		if err != nil {
			return nil, err
		}
	}

	// Projection is linear: no activation after the norm.
	blk.project, err = newConvNormAct(spec.ExpandedChannels, spec.OutChannels, 1, 1, 1, 1, true, ActNone, rng)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// Forward runs the block. When the shortcut applies, the block output is
// input + branch.
func (b *InvertedResidual) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	out := x
	if b.expand != nil {
		out = b.expand.Forward(out, training)
	}
	out = b.depthwise.Forward(out, training)
	if b.se != nil {
		out = b.se.Forward(out)
	}
	out = b.project.Forward(out, training)
	if b.useShortcut {
		out = tensor.AddAutograd(x, out)
	}
	return out
}

func (b *InvertedResidual) parameters(prefix string, dst []NamedParam) []NamedParam {
	if b.expand != nil {
		dst = b.expand.parameters(prefix+".expand", dst)
	}
	dst = b.depthwise.parameters(prefix+".depthwise", dst)
	if b.se != nil {
		dst = b.se.parameters(prefix+".se", dst)
	}
	dst = b.project.parameters(prefix+".project", dst)
	return dst
}

func (b *InvertedResidual) stateEntries(prefix string, dst []NamedParam) []NamedParam {
	if b.expand != nil {
		dst = b.expand.stateEntries(prefix+".expand", dst)
	}
	dst = b.depthwise.stateEntries(prefix+".depthwise", dst)
	if b.se != nil {
		dst = b.se.parameters(prefix+".se", dst)
	}
	dst = b.project.stateEntries(prefix+".project", dst)
	return dst
}

// classifier is the two-layer head: linear -> hard-swish -> dropout ->
// linear, acting on the pooled feature vector.
type classifier struct {
	fc1     *linear
	fc2     *linear
	dropout float64
}

func newClassifier(inFeatures, hidden, numClasses int, dropout float64, rng *rand.Rand) (*classifier, error) {
	fc1, err := newLinear(inFeatures, hidden, rng)
	if err != nil {
		return nil, err
	}
	fc2, err := newLinear(hidden, numClasses, rng)
	if err != nil {
		return nil, err
	}
	return &classifier{fc1: fc1, fc2: fc2, dropout: dropout}, nil
}

func (c *classifier) forward(x *tensor.Tensor, training bool, dropRNG *stdrand.Rand) *tensor.Tensor {
	out := tensor.HardSwishAutograd(c.fc1.forward(x))
	out = tensor.DropoutAutograd(out, c.dropout, training, dropRNG)
	return c.fc2.forward(out)
}

func (c *classifier) parameters(prefix string, dst []NamedParam) []NamedParam {
	dst = c.fc1.parameters(prefix+".fc1", dst)
	dst = c.fc2.parameters(prefix+".fc2", dst)
	return dst
}
