// Package tensor implements the dense numeric tensors exchanged between the
// data pipeline, reward models, and the training loop. It is deliberately
// small: shape bookkeeping, the squeeze used to strip the loader's singleton
// dimension, and device placement.
package tensor

import (
	"fmt"

	"github.com/openrmt/openrmt/pkg/errors"
)

// Dense is a row-major dense tensor of float64 values.
type Dense struct {
	shape  []int
	data   []float64
	device Device
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) *Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Dense{
		shape:  append([]int(nil), shape...),
		data:   make([]float64, n),
		device: CPU(),
	}
}

// FromSlice creates a tensor wrapping the given backing slice.
// The slice length must match the product of the shape.
func FromSlice(data []float64, shape ...int) (*Dense, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return nil, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("shape %v requires %d values, got %d", shape, n, len(data)))
	}
	return &Dense{
		shape:  append([]int(nil), shape...),
		data:   data,
		device: CPU(),
	}, nil
}

// MustFromSlice is FromSlice that panics on shape mismatch. Test helper.
func MustFromSlice(data []float64, shape ...int) *Dense {
	t, err := FromSlice(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// Shape returns the tensor shape. The returned slice must not be mutated.
func (t *Dense) Shape() []int {
	return t.shape
}

// Rank returns the number of dimensions.
func (t *Dense) Rank() int {
	return len(t.shape)
}

// Len returns the total number of elements.
func (t *Dense) Len() int {
	return len(t.data)
}

// Dim returns the size of dimension i.
func (t *Dense) Dim(i int) int {
	return t.shape[i]
}

// Data returns the backing slice.
func (t *Dense) Data() []float64 {
	return t.data
}

// At returns the element at the given flat index.
func (t *Dense) At(i int) float64 {
	return t.data[i]
}

// Set stores v at the given flat index.
func (t *Dense) Set(i int, v float64) {
	t.data[i] = v
}

// Row returns row i of a rank-2 tensor as a slice view.
func (t *Dense) Row(i int) ([]float64, error) {
	if len(t.shape) != 2 {
		return nil, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("Row requires rank 2, got rank %d", len(t.shape)))
	}
	w := t.shape[1]
	return t.data[i*w : (i+1)*w], nil
}

// Squeeze removes dimension dim, which must have size 1. The result shares
// the backing data. Loaders emit [batch, 1, seq] tensors; the trainer
// squeezes dim 1 before use.
func (t *Dense) Squeeze(dim int) (*Dense, error) {
	if dim < 0 || dim >= len(t.shape) {
		return nil, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("squeeze dim %d out of range for shape %v", dim, t.shape))
	}
	if t.shape[dim] != 1 {
		return nil, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("squeeze dim %d has size %d, want 1", dim, t.shape[dim]))
	}

	shape := make([]int, 0, len(t.shape)-1)
	for i, d := range t.shape {
		if i != dim {
			shape = append(shape, d)
		}
	}
	return &Dense{shape: shape, data: t.data, device: t.device}, nil
}

// To places the tensor on the given device. The CPU backend shares the
// backing data; the call exists so the trainer states its placement
// explicitly, matching the device-transfer step of the loop.
func (t *Dense) To(d Device) *Dense {
	if t.device == d {
		return t
	}
	return &Dense{shape: t.shape, data: t.data, device: d}
}

// Device returns the tensor's current placement.
func (t *Dense) Device() Device {
	return t.device
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Dense{shape: append([]int(nil), t.shape...), data: data, device: t.device}
}

// Mean returns the arithmetic mean of all elements. Empty tensors yield NaN
// through the 0/0 division; callers own that edge.
func (t *Dense) Mean() float64 {
	var sum float64
	for _, v := range t.data {
		sum += v
	}
	return sum / float64(len(t.data))
}

func (t *Dense) String() string {
	return fmt.Sprintf("Dense%v", t.shape)
}
