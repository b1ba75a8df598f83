// Package preprocessing implements per-sample image transforms for training
// augmentation and evaluation normalization.
package preprocessing

import (
	"fmt"
	"math/rand"
)

// CIFAR-10 per-channel statistics.
var (
	CIFAR10Means = [3]float32{0.4914, 0.4822, 0.4465}
	CIFAR10Stds  = [3]float32{0.2023, 0.1994, 0.2010}
)

// Image is a CHW float32 image.
type Image struct {
	Data     []float32
	Channels int
	Height   int
	Width    int
}

// NewImage wraps pixel data in an Image, validating the element count.
func NewImage(data []float32, channels, height, width int) (*Image, error) {
	if len(data) != channels*height*width {
		return nil, fmt.Errorf("image data has %d elements, expected %d", len(data), channels*height*width)
	}
	return &Image{Data: data, Channels: channels, Height: height, Width: width}, nil
}

// Transform maps an image to a new image. Implementations must not modify
// the input; augmentations draw randomness from the supplied rng.
type Transform interface {
	Apply(img *Image, rng *rand.Rand) *Image
}

// Pipeline applies transforms in order.
type Pipeline struct {
	transforms []Transform
}

// NewPipeline creates a pipeline over the given transforms.
func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{transforms: transforms}
}

func (p *Pipeline) Apply(img *Image, rng *rand.Rand) *Image {
	for _, t := range p.transforms {
		img = t.Apply(img, rng)
	}
	return img
}

// NewTrainPipeline returns the CIFAR-10 training augmentation: random crop
// with 4 pixels of zero padding, random horizontal flip, and per-channel
// normalization.
func NewTrainPipeline() *Pipeline {
	return NewPipeline(
		&RandomCrop{Size: 32, Padding: 4},
		&RandomHorizontalFlip{Prob: 0.5},
		&Normalize{Means: CIFAR10Means, Stds: CIFAR10Stds},
	)
}

// NewEvalPipeline returns the CIFAR-10 evaluation transform: normalization
// only.
func NewEvalPipeline() *Pipeline {
	return NewPipeline(
		&Normalize{Means: CIFAR10Means, Stds: CIFAR10Stds},
	)
}

// RandomCrop zero-pads the image on all sides and crops a random window of
// the target size.
type RandomCrop struct {
	Size    int
	Padding int
}

func (t *RandomCrop) Apply(img *Image, rng *rand.Rand) *Image {
	padded := img.Height + 2*t.Padding
	// Offsets into the padded image.
	top := rng.Intn(padded - t.Size + 1)
	left := rng.Intn(padded - t.Size + 1)

	out := &Image{
		Data:     make([]float32, img.Channels*t.Size*t.Size),
		Channels: img.Channels,
		Height:   t.Size,
		Width:    t.Size,
	}
	for c := 0; c < img.Channels; c++ {
		for y := 0; y < t.Size; y++ {
			srcY := top + y - t.Padding
			if srcY < 0 || srcY >= img.Height {
				continue // stays zero
			}
			for x := 0; x < t.Size; x++ {
				srcX := left + x - t.Padding
				if srcX < 0 || srcX >= img.Width {
					continue
				}
				out.Data[(c*t.Size+y)*t.Size+x] = img.Data[(c*img.Height+srcY)*img.Width+srcX]
			}
		}
	}
	return out
}

// RandomHorizontalFlip mirrors the image left-right with the given
// probability.
type RandomHorizontalFlip struct {
	Prob float64
}

func (t *RandomHorizontalFlip) Apply(img *Image, rng *rand.Rand) *Image {
	if rng.Float64() >= t.Prob {
		return img
	}
	out := &Image{
		Data:     make([]float32, len(img.Data)),
		Channels: img.Channels,
		Height:   img.Height,
		Width:    img.Width,
	}
	for c := 0; c < img.Channels; c++ {
		for y := 0; y < img.Height; y++ {
			row := (c*img.Height + y) * img.Width
			for x := 0; x < img.Width; x++ {
				out.Data[row+x] = img.Data[row+img.Width-1-x]
			}
		}
	}
	return out
}

// Normalize subtracts the per-channel mean and divides by the per-channel
// standard deviation.
type Normalize struct {
	Means [3]float32
	Stds  [3]float32
}

func (t *Normalize) Apply(img *Image, rng *rand.Rand) *Image {
	out := &Image{
		Data:     make([]float32, len(img.Data)),
		Channels: img.Channels,
		Height:   img.Height,
		Width:    img.Width,
	}
	plane := img.Height * img.Width
	for c := 0; c < img.Channels; c++ {
		mean, std := t.Means[c], t.Stds[c]
		for i := 0; i < plane; i++ {
			out.Data[c*plane+i] = (img.Data[c*plane+i] - mean) / std
		}
	}
	return out
}
