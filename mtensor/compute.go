package mtensor

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// This file implements the shape/dtype rules of meta computation:
// broadcasting, dtype promotion, elementwise and matmul shapes, and the
// shape-manipulation operations.

// BroadcastDims returns the broadcast of the two dimension lists, following
// the usual elementwise rule: shapes are aligned to the right, the shorter
// one is padded with 1-dimensions on the left, and on each axis the
// dimensions must match or one of them must be 1.
func BroadcastDims(a, b []int) ([]int, error) {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for i := 0; i < rank; i++ {
		dimA, dimB := 1, 1
		if i >= rank-len(a) {
			dimA = a[i-(rank-len(a))]
		}
		if i >= rank-len(b) {
			dimB = b[i-(rank-len(b))]
		}
		switch {
		case dimA == dimB:
			out[i] = dimA
		case dimA == 1:
			out[i] = dimB
		case dimB == 1:
			out[i] = dimA
		default:
			return nil, errors.Errorf("dimensions %v and %v are not broadcastable (axis %d: %d vs %d)",
				a, b, i, dimA, dimB)
		}
	}
	return out, nil
}

// PromoteDTypes returns the common dtype of a mixed-dtype operation,
// preferring the higher-precision operand.
func PromoteDTypes(a, b dtypes.DType) dtypes.DType {
	if dtypePriority(b) > dtypePriority(a) {
		return b
	}
	return a
}

// dtypePriority returns a priority value for dtype promotion. Higher values
// are preferred in mixed-type operations.
func dtypePriority(dt dtypes.DType) int {
	switch dt {
	case dtypes.Complex128:
		return 110
	case dtypes.Complex64:
		return 105
	case dtypes.Float64:
		return 100
	case dtypes.Float32:
		return 90
	case dtypes.Float16, dtypes.BFloat16:
		return 80
	case dtypes.Int64:
		return 70
	case dtypes.Int32:
		return 60
	case dtypes.Int16:
		return 50
	case dtypes.Int8:
		return 40
	case dtypes.Uint64:
		return 35
	case dtypes.Uint32:
		return 30
	case dtypes.Uint16:
		return 25
	case dtypes.Uint8:
		return 20
	case dtypes.Bool:
		return 10
	default:
		return 0
	}
}

// Elementwise returns the meta result of a binary elementwise operation on
// a and b: broadcast dimensions, promoted dtype. It panics if the operands
// are not broadcastable.
func Elementwise(a, b *Tensor) *Tensor {
	dims, err := BroadcastDims(a.shape.Dimensions, b.shape.Dimensions)
	if err != nil {
		exceptions.Panicf("mtensor: elementwise operation on %s and %s: %v", a, b, err)
	}
	return FromDims(PromoteDTypes(a.DType(), b.DType()), dims...)
}

// MatMul returns the meta result of a matrix multiplication of a and b,
// with batch dimensions broadcast. Rank-1 operands follow the usual
// convention: a rank-1 lhs is treated as a row vector and the prepended
// dimension is dropped from the result, symmetrically for a rank-1 rhs.
func MatMul(a, b *Tensor) *Tensor {
	if a.Dim() == 0 || b.Dim() == 0 {
		exceptions.Panicf("mtensor: MatMul requires operands of rank >= 1, got %s and %s", a, b)
	}
	dtype := PromoteDTypes(a.DType(), b.DType())

	lhsDims := a.shape.Dimensions
	rhsDims := b.shape.Dimensions
	squeezeLhs, squeezeRhs := false, false
	if len(lhsDims) == 1 {
		lhsDims = []int{1, lhsDims[0]}
		squeezeLhs = true
	}
	if len(rhsDims) == 1 {
		rhsDims = []int{rhsDims[0], 1}
		squeezeRhs = true
	}

	contractLhs := lhsDims[len(lhsDims)-1]
	contractRhs := rhsDims[len(rhsDims)-2]
	if contractLhs != contractRhs {
		exceptions.Panicf("mtensor: MatMul contracting dimensions mismatch: %s x %s", a, b)
	}
	batch, err := BroadcastDims(lhsDims[:len(lhsDims)-2], rhsDims[:len(rhsDims)-2])
	if err != nil {
		exceptions.Panicf("mtensor: MatMul batch dimensions of %s and %s: %v", a, b, err)
	}

	rows := lhsDims[len(lhsDims)-2]
	cols := rhsDims[len(rhsDims)-1]
	var dims []int
	switch {
	case squeezeLhs && squeezeRhs:
		dims = batch // rank-1 x rank-1 -> scalar
	case squeezeLhs:
		dims = append(batch, cols)
	case squeezeRhs:
		dims = append(batch, rows)
	default:
		dims = append(batch, rows, cols)
	}
	return FromDims(dtype, dims...)
}

// Reshape returns a meta tensor with the given dimensions. At most one
// dimension may be -1, in which case it is inferred from the total size.
// It panics if the total sizes cannot match.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	total := t.shape.Size()
	known := 1
	inferAxis := -1
	for axis, d := range dims {
		if d == -1 {
			if inferAxis >= 0 {
				exceptions.Panicf("mtensor: Reshape(%v) has more than one -1 dimension", dims)
			}
			inferAxis = axis
			continue
		}
		if d < 0 {
			exceptions.Panicf("mtensor: Reshape(%v) has invalid dimension %d", dims, d)
		}
		known *= d
	}
	newDims := slices.Clone(dims)
	if inferAxis >= 0 {
		if known == 0 || total%known != 0 {
			exceptions.Panicf("mtensor: cannot infer -1 in Reshape(%v) of %s", dims, t)
		}
		newDims[inferAxis] = total / known
	} else if known != total {
		exceptions.Panicf("mtensor: Reshape(%v) changes total size of %s", dims, t)
	}
	return FromDims(t.DType(), newDims...)
}

// T returns a meta tensor with the dimensions reversed.
func (t *Tensor) T() *Tensor {
	dims := slices.Clone(t.shape.Dimensions)
	slices.Reverse(dims)
	return FromDims(t.DType(), dims...)
}

// Transpose returns a meta tensor with axes a and b swapped. Negative axes
// count from the end.
func (t *Tensor) Transpose(a, b int) *Tensor {
	rank := t.Dim()
	if a < 0 {
		a += rank
	}
	if b < 0 {
		b += rank
	}
	if a < 0 || a >= rank || b < 0 || b >= rank {
		exceptions.Panicf("mtensor: Transpose(%d, %d) out of range for %s", a, b, t)
	}
	dims := slices.Clone(t.shape.Dimensions)
	dims[a], dims[b] = dims[b], dims[a]
	return FromDims(t.DType(), dims...)
}

// Flatten returns a rank-1 meta tensor with the same total size.
func (t *Tensor) Flatten() *Tensor {
	return FromDims(t.DType(), t.shape.Size())
}

// Unsqueeze returns a meta tensor with a 1-dimension inserted at the given
// axis. Negative axes count from the end (of the result).
func (t *Tensor) Unsqueeze(axis int) *Tensor {
	rank := t.Dim()
	if axis < 0 {
		axis += rank + 1
	}
	if axis < 0 || axis > rank {
		exceptions.Panicf("mtensor: Unsqueeze(%d) out of range for %s", axis, t)
	}
	dims := make([]int, 0, rank+1)
	dims = append(dims, t.shape.Dimensions[:axis]...)
	dims = append(dims, 1)
	dims = append(dims, t.shape.Dimensions[axis:]...)
	return FromDims(t.DType(), dims...)
}

// Like returns a meta tensor with the same shape and dtype as t.
func (t *Tensor) Like() *Tensor {
	return New(t.shape.Clone())
}
