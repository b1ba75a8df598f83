package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// reduceGradientToShape reduces a gradient tensor to match the target shape.
// This is needed when broadcasting occurred during the forward pass.
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad.Clone()
	}

	result := grad
	var err error

	// Sum away leading dimensions the target does not have.
	dimsToSum := len(grad.Shape) - len(targetShape)
	for i := 0; i < dimsToSum; i++ {
		result, err = sumOverDimension(result, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to sum over dimension: %v", err)
		}
	}

	// Sum dimensions that were broadcast from size 1, keeping rank.
	for i := 0; i < len(targetShape); i++ {
		if i < len(result.Shape) && result.Shape[i] != targetShape[i] && targetShape[i] == 1 {
			result, err = sumOverDimension(result, i)
			if err != nil {
				return nil, fmt.Errorf("failed to sum over broadcast dimension: %v", err)
			}
			result, err = result.Reshape(insertDim(result.Shape, i))
			if err != nil {
				return nil, err
			}
		}
	}

	if !shapesEqual(result.Shape, targetShape) {
		result, err = result.Reshape(targetShape)
		if err != nil {
			return nil, fmt.Errorf("failed to reshape gradient: %v", err)
		}
	}
	return result, nil
}

func insertDim(shape []int, at int) []int {
	out := make([]int, 0, len(shape)+1)
	out = append(out, shape[:at]...)
	out = append(out, 1)
	out = append(out, shape[at:]...)
	return out
}

// sumOverDimension sums a float32 tensor over one dimension, dropping it.
func sumOverDimension(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("dimension %d out of bounds for tensor with %d dimensions", dim, len(t.Shape))
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("unsupported dtype for sum: %s", t.DType)
	}

	outputShape := make([]int, 0, len(t.Shape)-1)
	for i, size := range t.Shape {
		if i != dim {
			outputShape = append(outputShape, size)
		}
	}
	if len(outputShape) == 0 {
		return Sum(t)
	}

	result, err := Zeros(outputShape, Float32)
	if err != nil {
		return nil, err
	}

	inputData := t.Data.([]float32)
	outputData := result.Data.([]float32)
	inputStrides := calculateStrides(t.Shape)

	for outputIdx := 0; outputIdx < result.NumElems; outputIdx++ {
		outputCoords := indexToCoords(outputIdx, outputShape)

		inputCoords := make([]int, len(t.Shape))
		outputDim := 0
		for inputDim := 0; inputDim < len(t.Shape); inputDim++ {
			if inputDim == dim {
				inputCoords[inputDim] = 0
			} else {
				inputCoords[inputDim] = outputCoords[outputDim]
				outputDim++
			}
		}

		var sum float32
		for k := 0; k < t.Shape[dim]; k++ {
			inputCoords[dim] = k
			sum += inputData[coordsToIndex(inputCoords, inputStrides)]
		}
		outputData[outputIdx] = sum
	}
	return result, nil
}

// Backward runs reverse-mode differentiation from this tensor, accumulating
// gradients into every tensor on the path that requires them. The seed
// gradient is a tensor of ones, so calling Backward on a scalar loss yields
// standard loss gradients.
func (t *Tensor) Backward() error {
	if t.DType != Float32 {
		return fmt.Errorf("Backward requires a Float32 tensor, got %s", t.DType)
	}

	seed, err := Ones(t.Shape, Float32)
	if err != nil {
		return err
	}
	t.grad = seed

	// Topological order over the creator graph, leaves first.
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(n *Tensor)
	visit = func(n *Tensor) {
		if visited[n] {
			return
		}
		visited[n] = true
		if n.creator != nil {
			for _, in := range n.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, n)
	}
	visit(t)

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if node.creator == nil || node.grad == nil {
			continue
		}
		grads := node.creator.Backward(node.grad)
		inputs := node.creator.Inputs()
		if len(grads) != len(inputs) {
			return fmt.Errorf("operation returned %d gradients for %d inputs", len(grads), len(inputs))
		}
		for j, in := range inputs {
			if grads[j] == nil {
				continue
			}
			if in.grad == nil {
				in.grad = grads[j]
			} else {
				sum, err := Add(in.grad, grads[j])
				if err != nil {
					return fmt.Errorf("gradient accumulation failed: %v", err)
				}
				in.grad = sum
			}
		}
	}
	return nil
}

// AddOp implements the Operation interface for broadcast addition.
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}
	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := Add(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	// Gradient flows unchanged to both inputs, reduced over any broadcast
	// dimensions.
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input A: %v", err))
	}
	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// MulOp implements the Operation interface for broadcast elementwise
// multiplication.
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}
	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := Mul(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	gradAFull, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradA: %v", err))
	}
	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input A: %v", err))
	}

	gradBFull, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradB: %v", err))
	}
	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		panic(fmt.Sprintf("Failed to reduce gradient for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// MatMulOp implements the Operation interface for matrix multiplication.
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

func (op *MatMulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MatMulOp requires exactly 2 inputs")
	}
	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := MatMul(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(A @ B)/dA = gradOut @ B^T, d(A @ B)/dB = A^T @ gradOut
	bT, err := Transpose(b, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("Failed to transpose B: %v", err))
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradA: %v", err))
	}

	aT, err := Transpose(a, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("Failed to transpose A: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed for gradB: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// ReLUOp implements the Operation interface for the ReLU activation.
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Inputs() []*Tensor { return op.inputs }

func (op *ReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReLUOp requires exactly 1 input")
	}
	a := inputs[0]
	op.inputs = inputs

	result, err := ReLU(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad
	return result
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Failed to clone gradient: %v", err))
	}
	inputData := a.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		if inputData[i] <= 0 {
			gradData[i] = 0
		}
	}
	return []*Tensor{grad}
}

// HardSwishOp implements the Operation interface for the hard-swish
// activation x * relu6(x+3)/6.
type HardSwishOp struct {
	inputs []*Tensor
}

func (op *HardSwishOp) Inputs() []*Tensor { return op.inputs }

func (op *HardSwishOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("HardSwishOp requires exactly 1 input")
	}
	a := inputs[0]
	op.inputs = inputs

	result, err := HardSwish(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad
	return result
}

func (op *HardSwishOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Failed to clone gradient: %v", err))
	}
	inputData := a.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		x := inputData[i]
		switch {
		case x <= -3:
			gradData[i] = 0
		case x >= 3:
			// derivative is 1, gradient passes through
		default:
			gradData[i] *= (2*x + 3) / 6
		}
	}
	return []*Tensor{grad}
}

// HardSigmoidOp implements the Operation interface for the hard-sigmoid
// activation relu6(x+3)/6.
type HardSigmoidOp struct {
	inputs []*Tensor
}

func (op *HardSigmoidOp) Inputs() []*Tensor { return op.inputs }

func (op *HardSigmoidOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("HardSigmoidOp requires exactly 1 input")
	}
	a := inputs[0]
	op.inputs = inputs

	result, err := HardSigmoid(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad
	return result
}

func (op *HardSigmoidOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Failed to clone gradient: %v", err))
	}
	inputData := a.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		if x := inputData[i]; x <= -3 || x >= 3 {
			gradData[i] = 0
		} else {
			gradData[i] /= 6
		}
	}
	return []*Tensor{grad}
}

// Conv2DOp implements the Operation interface for grouped, dilated 2D
// convolution. Inputs are (input, weight) or (input, weight, bias).
type Conv2DOp struct {
	inputs []*Tensor
	params Conv2DParams
}

func (op *Conv2DOp) Inputs() []*Tensor { return op.inputs }

func (op *Conv2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("Conv2DOp requires 2 or 3 inputs (input, weight[, bias])")
	}
	op.inputs = inputs

	var bias *Tensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}
	result, err := Conv2D(inputs[0], inputs[1], bias, op.params)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad || inputs[1].requiresGrad || (bias != nil && bias.requiresGrad)
	return result
}

func (op *Conv2DOp) Backward(gradOut *Tensor) []*Tensor {
	var bias *Tensor
	if len(op.inputs) == 3 {
		bias = op.inputs[2]
	}
	gradInput, gradWeight, gradBias, err := conv2DBackward(op.inputs[0], op.inputs[1], bias, gradOut, op.params)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	if bias != nil {
		return []*Tensor{gradInput, gradWeight, gradBias}
	}
	return []*Tensor{gradInput, gradWeight}
}

// BatchNorm2DOp implements the Operation interface for batch normalization.
// Inputs are (x, gamma, beta); the running statistics are owned by the op
// and mutated in place during training-mode forward passes, never
// differentiated.
type BatchNorm2DOp struct {
	inputs      []*Tensor
	runningMean *Tensor
	runningVar  *Tensor
	momentum    float32
	eps         float32
	training    bool
	state       *batchNormState
}

func (op *BatchNorm2DOp) Inputs() []*Tensor { return op.inputs }

func (op *BatchNorm2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 3 {
		panic("BatchNorm2DOp requires exactly 3 inputs (x, gamma, beta)")
	}
	op.inputs = inputs

	result, state, err := batchNorm2DForward(inputs[0], inputs[1], inputs[2], op.runningMean, op.runningVar, op.momentum, op.eps, op.training)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	op.state = state
	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad || inputs[1].requiresGrad || inputs[2].requiresGrad
	return result
}

func (op *BatchNorm2DOp) Backward(gradOut *Tensor) []*Tensor {
	gradX, gradGamma, gradBeta, err := batchNorm2DBackward(gradOut, op.inputs[1], op.state, op.inputs[0].Shape, op.training)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradX, gradGamma, gradBeta}
}

// GlobalAvgPool2DOp implements the Operation interface for global average
// pooling.
type GlobalAvgPool2DOp struct {
	inputs []*Tensor
}

func (op *GlobalAvgPool2DOp) Inputs() []*Tensor { return op.inputs }

func (op *GlobalAvgPool2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("GlobalAvgPool2DOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := GlobalAvgPool2D(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *GlobalAvgPool2DOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := globalAvgPool2DBackward(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

// ReshapeOp implements the Operation interface for shape changes.
type ReshapeOp struct {
	inputs []*Tensor
	shape  []int
}

func (op *ReshapeOp) Inputs() []*Tensor { return op.inputs }

func (op *ReshapeOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReshapeOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := inputs[0].Reshape(op.shape)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *ReshapeOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Reshape(op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

// DropoutOp implements the Operation interface for dropout. In training
// mode elements are zeroed with probability rate and survivors are scaled
// by 1/(1-rate); in inference mode it is the identity.
type DropoutOp struct {
	inputs   []*Tensor
	rate     float64
	training bool
	rng      *rand.Rand
	mask     []float32
}

func (op *DropoutOp) Inputs() []*Tensor { return op.inputs }

func (op *DropoutOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("DropoutOp requires exactly 1 input")
	}
	a := inputs[0]
	op.inputs = inputs

	if !op.training || op.rate == 0 {
		result, err := a.Clone()
		if err != nil {
			panic(fmt.Sprintf("Forward pass failed: %v", err))
		}
		result.creator = op
		result.requiresGrad = a.requiresGrad
		return result
	}

	result, err := Zeros(a.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	scale := float32(1 / (1 - op.rate))
	op.mask = make([]float32, a.NumElems)
	src := a.Data.([]float32)
	dst := result.Data.([]float32)
	for i := range src {
		if op.rng.Float64() >= op.rate {
			op.mask[i] = scale
			dst[i] = src[i] * scale
		}
	}
	result.creator = op
	result.requiresGrad = a.requiresGrad
	return result
}

func (op *DropoutOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Failed to clone gradient: %v", err))
	}
	if op.mask != nil {
		gradData := grad.Data.([]float32)
		for i := range gradData {
			gradData[i] *= op.mask[i]
		}
	}
	return []*Tensor{grad}
}

// SoftmaxCrossEntropyOp fuses softmax and negative log-likelihood over
// logits [batch, classes] and int32 labels [batch], producing the mean loss
// as a single-element tensor.
type SoftmaxCrossEntropyOp struct {
	inputs []*Tensor
	probs  []float32
}

func (op *SoftmaxCrossEntropyOp) Inputs() []*Tensor { return op.inputs }

func (op *SoftmaxCrossEntropyOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SoftmaxCrossEntropyOp requires exactly 2 inputs (logits, labels)")
	}
	logits, labels := inputs[0], inputs[1]
	op.inputs = inputs

	if len(logits.Shape) != 2 {
		panic(fmt.Sprintf("SoftmaxCrossEntropyOp requires 2D logits, got shape %v", logits.Shape))
	}
	if labels.DType != Int32 || len(labels.Shape) != 1 || labels.Shape[0] != logits.Shape[0] {
		panic(fmt.Sprintf("SoftmaxCrossEntropyOp requires Int32 labels of shape [%d], got %s %v", logits.Shape[0], labels.DType, labels.Shape))
	}

	batch, classes := logits.Shape[0], logits.Shape[1]
	logitData := logits.Data.([]float32)
	labelData := labels.Data.([]int32)

	op.probs = make([]float32, batch*classes)
	var totalLoss float64
	for b := 0; b < batch; b++ {
		row := logitData[b*classes : (b+1)*classes]

		// Shift by the row max for numerical stability.
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var denom float64
		for c := 0; c < classes; c++ {
			e := math.Exp(float64(row[c] - maxVal))
			op.probs[b*classes+c] = float32(e)
			denom += e
		}
		for c := 0; c < classes; c++ {
			op.probs[b*classes+c] /= float32(denom)
		}

		label := int(labelData[b])
		if label < 0 || label >= classes {
			panic(fmt.Sprintf("label %d out of range for %d classes", label, classes))
		}
		totalLoss += -math.Log(float64(op.probs[b*classes+label]) + 1e-12)
	}

	result, err := NewTensor([]int{1}, Float32, []float32{float32(totalLoss / float64(batch))})
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	result.creator = op
	result.requiresGrad = logits.requiresGrad
	return result
}

func (op *SoftmaxCrossEntropyOp) Backward(gradOut *Tensor) []*Tensor {
	logits, labels := op.inputs[0], op.inputs[1]
	batch, classes := logits.Shape[0], logits.Shape[1]

	grad, err := Zeros(logits.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	scale := gradOut.Data.([]float32)[0] / float32(batch)
	gradData := grad.Data.([]float32)
	labelData := labels.Data.([]int32)
	for b := 0; b < batch; b++ {
		for c := 0; c < classes; c++ {
			g := op.probs[b*classes+c]
			if int32(c) == labelData[b] {
				g -= 1
			}
			gradData[b*classes+c] = g * scale
		}
	}
	// Labels receive no gradient.
	return []*Tensor{grad, nil}
}

// High-level autograd functions that create and execute operations.

// AddAutograd performs broadcast addition with automatic differentiation.
func AddAutograd(a, b *Tensor) *Tensor {
	op := &AddOp{}
	return op.Forward(a, b)
}

// MulAutograd performs broadcast multiplication with automatic
// differentiation.
func MulAutograd(a, b *Tensor) *Tensor {
	op := &MulOp{}
	return op.Forward(a, b)
}

// MatMulAutograd performs matrix multiplication with automatic
// differentiation.
func MatMulAutograd(a, b *Tensor) *Tensor {
	op := &MatMulOp{}
	return op.Forward(a, b)
}

// ReLUAutograd applies ReLU with automatic differentiation.
func ReLUAutograd(a *Tensor) *Tensor {
	op := &ReLUOp{}
	return op.Forward(a)
}

// HardSwishAutograd applies hard-swish with automatic differentiation.
func HardSwishAutograd(a *Tensor) *Tensor {
	op := &HardSwishOp{}
	return op.Forward(a)
}

// HardSigmoidAutograd applies hard-sigmoid with automatic differentiation.
func HardSigmoidAutograd(a *Tensor) *Tensor {
	op := &HardSigmoidOp{}
	return op.Forward(a)
}

// Conv2DAutograd performs a 2D convolution with automatic differentiation.
// Pass a nil bias for bias-free convolutions.
func Conv2DAutograd(input, weight, bias *Tensor, params Conv2DParams) *Tensor {
	op := &Conv2DOp{params: params}
	if bias != nil {
		return op.Forward(input, weight, bias)
	}
	return op.Forward(input, weight)
}

// BatchNorm2DAutograd applies batch normalization with automatic
// differentiation. Training mode updates the running statistics in place.
func BatchNorm2DAutograd(x, gamma, beta, runningMean, runningVar *Tensor, momentum, eps float32, training bool) *Tensor {
	op := &BatchNorm2DOp{
		runningMean: runningMean,
		runningVar:  runningVar,
		momentum:    momentum,
		eps:         eps,
		training:    training,
	}
	return op.Forward(x, gamma, beta)
}

// GlobalAvgPool2DAutograd averages over spatial dimensions with automatic
// differentiation.
func GlobalAvgPool2DAutograd(a *Tensor) *Tensor {
	op := &GlobalAvgPool2DOp{}
	return op.Forward(a)
}

// ReshapeAutograd changes the tensor shape with automatic differentiation.
func ReshapeAutograd(a *Tensor, shape []int) *Tensor {
	op := &ReshapeOp{shape: shape}
	return op.Forward(a)
}

// DropoutAutograd applies dropout with automatic differentiation. The rng
// must be supplied by the caller; there is no ambient random state.
func DropoutAutograd(a *Tensor, rate float64, training bool, rng *rand.Rand) *Tensor {
	op := &DropoutOp{rate: rate, training: training, rng: rng}
	return op.Forward(a)
}

// SoftmaxCrossEntropyAutograd computes the mean cross-entropy between
// logits and integer labels with automatic differentiation.
func SoftmaxCrossEntropyAutograd(logits, labels *Tensor) *Tensor {
	op := &SoftmaxCrossEntropyOp{}
	return op.Forward(logits, labels)
}
