package training

import (
	"fmt"

	"github.com/tsawler/go-mobilenet/tensor"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update to every parameter with a non-nil gradient.
	Step() error
	// ZeroGrad clears accumulated gradients before the next forward pass.
	ZeroGrad()
	// SetLR overrides the learning rate, typically from a scheduler.
	SetLR(lr float64)
	// GetLR returns the current learning rate.
	GetLR() float64
	// GetName returns the optimizer name for logging.
	GetName() string
}

// SGD implements stochastic gradient descent with momentum and L2 weight
// decay folded into the gradient, the standard recipe for convolutional
// classifiers.
type SGD struct {
	params       []*tensor.Tensor
	lr           float64
	momentum     float64
	weightDecay  float64
	velocities   map[*tensor.Tensor][]float32
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*tensor.Tensor, lr, momentum, weightDecay float64) (*SGD, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1), got %v", momentum)
	}
	if weightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be non-negative, got %v", weightDecay)
	}
	return &SGD{
		params:      params,
		lr:          lr,
		momentum:    momentum,
		weightDecay: weightDecay,
		velocities:  make(map[*tensor.Tensor][]float32),
	}, nil
}

// Step applies v = momentum*v + (grad + weightDecay*param) and then
// param -= lr * v, matching the classic momentum formulation.
func (s *SGD) Step() error {
	for _, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}

		paramData, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("optimizer step failed: %v", err)
		}
		gradData, err := grad.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("optimizer step failed: %v", err)
		}
		if len(gradData) != len(paramData) {
			return fmt.Errorf("gradient size %d does not match parameter size %d", len(gradData), len(paramData))
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]float32, len(paramData))
			s.velocities[param] = velocity
		}

		lr := float32(s.lr)
		mom := float32(s.momentum)
		wd := float32(s.weightDecay)
		for i := range paramData {
			g := gradData[i] + wd*paramData[i]
			velocity[i] = mom*velocity[i] + g
			paramData[i] -= lr * velocity[i]
		}
	}
	return nil
}

// ZeroGrad clears accumulated gradients on every parameter.
func (s *SGD) ZeroGrad() {
	tensor.ZeroGrad(s.params)
}

func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

func (s *SGD) GetLR() float64 {
	return s.lr
}

func (s *SGD) GetName() string {
	return "SGD"
}
