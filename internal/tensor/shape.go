package tensor

import (
	"fmt"
	"slices"
)

// Shape represents the dimensions of a tensor, outermost first.
type Shape []int

// NumElements returns the total number of elements. A scalar (empty shape)
// has one element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal reports whether two shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// ComputeStrides calculates row-major strides: stride[i] is the product of
// all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// BroadcastShapes applies NumPy broadcasting rules to a and b.
//
// Shapes are aligned from the right; a missing dimension counts as 1 and two
// dimensions are compatible when equal or when one of them is 1.
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(1, 16, 1, 1) + (2, 16, 8, 8) → (2, 16, 8, 8), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, error
//
// The boolean reports whether either operand has to be broadcast.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	rank := max(len(a), len(b))
	result := make(Shape, rank)
	needsBroadcast := len(a) != len(b)

	for i := 1; i <= rank; i++ {
		aDim, bDim := 1, 1
		if len(a)-i >= 0 {
			aDim = a[len(a)-i]
		}
		if len(b)-i >= 0 {
			bDim = b[len(b)-i]
		}

		switch {
		case aDim == bDim:
			result[rank-i] = aDim
		case aDim == 1:
			result[rank-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[rank-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, rank-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}
