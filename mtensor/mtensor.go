// Package mtensor implements meta tensors: shape-and-dtype descriptors that
// stand in for full tensor values, used to infer properties of a computation
// without allocating memory or executing it.
//
// A meta tensor lives on the virtual "meta" device. The compute helpers in
// this package (Elementwise, MatMul, the method registry) implement the
// shape/dtype rules of the corresponding real operations, so replaying a
// traced operation on meta tensors yields the metadata of its result.
package mtensor

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// Device names a compute target.
type Device string

const (
	// Meta is the virtual device meta tensors live on: no memory, no
	// computation, shape and dtype only.
	Meta Device = "meta"
	// CPU is the default concrete device.
	CPU Device = "cpu"
)

// Tensor is a meta tensor. It is immutable: operations return new tensors.
type Tensor struct {
	shape shapes.Shape
}

// New returns a meta tensor with the given shape.
func New(shape shapes.Shape) *Tensor {
	return &Tensor{shape: shape}
}

// FromDims returns a meta tensor of the given dtype and dimensions.
func FromDims(dtype dtypes.DType, dims ...int) *Tensor {
	return New(shapes.Make(dtype, dims...))
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the tensor's element type.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Device returns the device the tensor lives on. Always Meta.
func (t *Tensor) Device() Device { return Meta }

// Dim returns the tensor's rank.
func (t *Tensor) Dim() int { return t.shape.Rank() }

// Size returns the full list of dimensions ([]int) when called without
// arguments, or the size of the given axis (int) otherwise. Negative axes
// count from the end. It panics on an out-of-range axis.
func (t *Tensor) Size(axis ...int) any {
	if len(axis) == 0 {
		return slices.Clone(t.shape.Dimensions)
	}
	a := axis[0]
	if a < 0 {
		a += t.shape.Rank()
	}
	if a < 0 || a >= t.shape.Rank() {
		exceptions.Panicf("mtensor: axis %d out of range for shape %s", axis[0], t.shape)
	}
	return t.shape.Dimensions[a]
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("%s@%s", t.shape, Meta)
}
