// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API for the Lattice
// inference runtime.
//
// A Tensor is a dense, row-major, reference-counted buffer with a shape
// and one of four element types (float32, int32, uint8, bool). Tensors
// returned by the runtime are owned by the caller and released with
// Release; views created with View share the underlying buffer.
//
// Example:
//
//	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	defer x.Release()
//	fmt.Println(x.Shape(), x.AsFloat32())
package tensor

import (
	"github.com/lattice-ml/lattice/internal/tensor"
)

// Element is the constraint over supported element types.
type Element = tensor.Element

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape is the dimension list of a tensor. An empty Shape is a scalar
// with one element.
type Shape = tensor.Shape

// BroadcastError reports two shapes that cannot be broadcast together
// and the first offending dimension.
type BroadcastError = tensor.BroadcastError

// Tensor is a dense row-major tensor.
type Tensor = tensor.RawTensor

// New allocates a zero-filled tensor.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T Element](data []T, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// Scalar wraps a single value in a rank-0 tensor.
func Scalar[T Element](v T) *Tensor {
	return tensor.Scalar(v)
}

// Values returns the typed element slice of t. It panics if T does not
// match the tensor's data type.
func Values[T Element](t *Tensor) []T {
	return tensor.Values[T](t)
}

// BroadcastShapes returns the shape two operands broadcast to, applying
// the trailing-dimension rule.
func BroadcastShapes(a, b Shape) (Shape, error) {
	return tensor.BroadcastShapes(a, b)
}
