// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func TestReshapeView(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	shape := i32Tensor(t, []int32{3, 2}, 2)
	out := runOp(t, Reshape, nil, []*tensor.RawTensor{x, shape}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{3, 2}))
	// Reshape is a view: same buffer, same data order.
	out[0].AsFloat32()[0] = 99
	assert.Equal(t, float32(99), x.AsFloat32()[0])
}

func TestReshapeInferDimension(t *testing.T) {
	x := f32Tensor(t, make([]float32, 12), 3, 4)
	shape := i32Tensor(t, []int32{2, -1}, 2)
	out := runOp(t, Reshape, nil, []*tensor.RawTensor{x, shape}, 1)
	assert.True(t, out[0].Shape().Equal(tensor.Shape{2, 6}))
}

func TestReshapeElementCountMismatch(t *testing.T) {
	x := f32Tensor(t, make([]float32, 6), 2, 3)
	shape := i32Tensor(t, []int32{4, 2}, 2)
	err := runOpErr(t, Reshape, nil, []*tensor.RawTensor{x, shape}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestReshapeTwoInferredDims(t *testing.T) {
	x := f32Tensor(t, make([]float32, 12), 12)
	shape := i32Tensor(t, []int32{-1, -1}, 2)
	err := runOpErr(t, Reshape, nil, []*tensor.RawTensor{x, shape}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestReshapeInferUnknownWithoutValue(t *testing.T) {
	kernel, _ := Lookup(Reshape)
	out, err := kernel.Infer(nil, []TensorInfo{
		{DType: tensor.Float32, Shape: tensor.Shape{2, 3}},
		{DType: tensor.Int32, Shape: tensor.Shape{2}}, // no Value
	}, 1)
	require.NoError(t, err)
	assert.Nil(t, out[0].Shape, "shape must be deferred without a value")
	assert.Equal(t, tensor.Float32, out[0].DType)
}

func TestTranspose2D(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out := runOp(t, Transpose, nil, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out[0].AsFloat32())
}

func TestTransposePerm(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2)
	attrs := Attrs{IntsAttr("perm", 1, 0, 2)}
	out := runOp(t, Transpose, attrs, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 2, 2}))
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4, 7, 8}, out[0].AsFloat32())
}

func TestTransposeBadPerm(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4}, 2, 2)
	attrs := Attrs{IntsAttr("perm", 0, 0)}
	err := runOpErr(t, Transpose, attrs, []*tensor.RawTensor{x}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestSqueezeAll(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3}, 1, 3, 1)
	out := runOp(t, Squeeze, nil, []*tensor.RawTensor{x}, 1)
	assert.True(t, out[0].Shape().Equal(tensor.Shape{3}))
}

func TestSqueezeAxes(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3}, 1, 3, 1)
	attrs := Attrs{IntsAttr("axes", 0)}
	out := runOp(t, Squeeze, attrs, []*tensor.RawTensor{x}, 1)
	assert.True(t, out[0].Shape().Equal(tensor.Shape{3, 1}))
}

func TestSqueezeNonUnitAxis(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3}, 1, 3)
	attrs := Attrs{IntsAttr("axes", 1)}
	err := runOpErr(t, Squeeze, attrs, []*tensor.RawTensor{x}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestUnsqueeze(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3}, 3)
	attrs := Attrs{IntsAttr("axes", 0, 2)}
	out := runOp(t, Unsqueeze, attrs, []*tensor.RawTensor{x}, 1)
	assert.True(t, out[0].Shape().Equal(tensor.Shape{1, 3, 1}))
}

func TestConcatAxis0(t *testing.T) {
	a := f32Tensor(t, []float32{1, 2}, 1, 2)
	b := f32Tensor(t, []float32{3, 4, 5, 6}, 2, 2)
	out := runOp(t, Concat, nil, []*tensor.RawTensor{a, b}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out[0].AsFloat32())
}

func TestConcatAxis1(t *testing.T) {
	a := f32Tensor(t, []float32{1, 2, 5, 6}, 2, 2)
	b := f32Tensor(t, []float32{3, 7}, 2, 1)
	attrs := Attrs{IntAttr("axis", 1)}
	out := runOp(t, Concat, attrs, []*tensor.RawTensor{a, b}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, []float32{1, 2, 3, 5, 6, 7}, out[0].AsFloat32())
}

func TestConcatShapeMismatch(t *testing.T) {
	a := f32Tensor(t, []float32{1, 2}, 1, 2)
	b := f32Tensor(t, []float32{1, 2, 3}, 1, 3)
	err := runOpErr(t, Concat, nil, []*tensor.RawTensor{a, b}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestSplitEven(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 6)
	outs := runOp(t, Split, nil, []*tensor.RawTensor{x}, 3)
	assert.Equal(t, []float32{1, 2}, outs[0].AsFloat32())
	assert.Equal(t, []float32{3, 4}, outs[1].AsFloat32())
	assert.Equal(t, []float32{5, 6}, outs[2].AsFloat32())
}

func TestSplitSizes(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	attrs := Attrs{IntAttr("axis", 1), IntsAttr("split", 1, 2)}
	outs := runOp(t, Split, attrs, []*tensor.RawTensor{x}, 2)
	assert.Equal(t, []float32{1, 4}, outs[0].AsFloat32())
	assert.Equal(t, []float32{2, 3, 5, 6}, outs[1].AsFloat32())
}

func TestSplitUneven(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5}, 5)
	err := runOpErr(t, Split, nil, []*tensor.RawTensor{x}, 2)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestSlice(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3, 3)
	starts := i32Tensor(t, []int32{0, 1}, 2)
	ends := i32Tensor(t, []int32{2, 3}, 2)
	out := runOp(t, Slice, nil, []*tensor.RawTensor{x, starts, ends}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{2, 3, 5, 6}, out[0].AsFloat32())
}

func TestSliceNegativeAndClamped(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5}, 5)
	starts := i32Tensor(t, []int32{-3}, 1)
	ends := i32Tensor(t, []int32{100}, 1)
	out := runOp(t, Slice, nil, []*tensor.RawTensor{x, starts, ends}, 1)
	assert.Equal(t, []float32{3, 4, 5}, out[0].AsFloat32())
}

func TestSliceWithAxes(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	starts := i32Tensor(t, []int32{1}, 1)
	ends := i32Tensor(t, []int32{3}, 1)
	axes := i32Tensor(t, []int32{1}, 1)
	out := runOp(t, Slice, nil, []*tensor.RawTensor{x, starts, ends, axes}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{2, 3, 5, 6}, out[0].AsFloat32())
}

func TestSliceEmptyResult(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3}, 3)
	starts := i32Tensor(t, []int32{2}, 1)
	ends := i32Tensor(t, []int32{1}, 1)
	out := runOp(t, Slice, nil, []*tensor.RawTensor{x, starts, ends}, 1)
	assert.Equal(t, 0, out[0].NumElements())
}

func TestGather(t *testing.T) {
	x := f32Tensor(t, []float32{10, 20, 30, 40}, 4)
	idx := i32Tensor(t, []int32{3, 0, 0}, 3)
	out := runOp(t, Gather, nil, []*tensor.RawTensor{x, idx}, 1)
	assert.Equal(t, []float32{40, 10, 10}, out[0].AsFloat32())
}

func TestGatherAxis1(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	idx := i32Tensor(t, []int32{2, 0}, 2)
	attrs := Attrs{IntAttr("axis", 1)}
	out := runOp(t, Gather, attrs, []*tensor.RawTensor{x, idx}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{3, 1, 6, 4}, out[0].AsFloat32())
}

func TestGatherNegativeIndex(t *testing.T) {
	x := f32Tensor(t, []float32{10, 20, 30}, 3)
	idx := i32Tensor(t, []int32{-1}, 1)
	out := runOp(t, Gather, nil, []*tensor.RawTensor{x, idx}, 1)
	assert.Equal(t, []float32{30}, out[0].AsFloat32())
}

func TestGatherOutOfRange(t *testing.T) {
	x := f32Tensor(t, []float32{10, 20, 30}, 3)
	idx := i32Tensor(t, []int32{3}, 1)
	err := runOpErr(t, Gather, nil, []*tensor.RawTensor{x, idx}, 1)
	var ke *KernelError
	require.ErrorAs(t, err, &ke)
	assert.Contains(t, ke.Detail, "out of range")
}

func TestExpand(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3}, 3)
	shape := i32Tensor(t, []int32{2, 3}, 2)
	out := runOp(t, Expand, nil, []*tensor.RawTensor{x, shape}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3}, out[0].AsFloat32())
}

func TestExpandMutualBroadcast(t *testing.T) {
	// Requested shape [2,1] broadcasts against input [1,3] to [2,3].
	x := f32Tensor(t, []float32{1, 2, 3}, 1, 3)
	shape := i32Tensor(t, []int32{2, 1}, 2)
	out := runOp(t, Expand, nil, []*tensor.RawTensor{x, shape}, 1)
	assert.True(t, out[0].Shape().Equal(tensor.Shape{2, 3}))
}

func TestShapeOp(t *testing.T) {
	x := f32Tensor(t, make([]float32, 24), 2, 3, 4)
	out := runOp(t, Shape, nil, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, tensor.Int32, out[0].DType())
	assert.Equal(t, []int32{2, 3, 4}, out[0].AsInt32())
}

func TestIdentitySharesBuffer(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2}, 2)
	out := runOp(t, Identity, nil, []*tensor.RawTensor{x}, 1)
	out[0].AsFloat32()[1] = 42
	assert.Equal(t, float32(42), x.AsFloat32()[1])
}

func TestPad(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4}, 2, 2)
	attrs := Attrs{IntsAttr("pads", 0, 1, 0, 1)}
	out := runOp(t, Pad, attrs, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 4}))
	assert.Equal(t, []float32{0, 1, 2, 0, 0, 3, 4, 0}, out[0].AsFloat32())
}

func TestPadValue(t *testing.T) {
	x := f32Tensor(t, []float32{5}, 1)
	attrs := Attrs{IntsAttr("pads", 1, 1), FloatAttr("value", -1)}
	out := runOp(t, Pad, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []float32{-1, 5, -1}, out[0].AsFloat32())
}

func TestConstantOfShape(t *testing.T) {
	shape := i32Tensor(t, []int32{2, 2}, 2)
	attrs := Attrs{FloatAttr("value", 7)}
	out := runOp(t, ConstantOfShape, attrs, []*tensor.RawTensor{shape}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{7, 7, 7, 7}, out[0].AsFloat32())
}

func TestConstantOfShapeInt32(t *testing.T) {
	shape := i32Tensor(t, []int32{3}, 1)
	attrs := Attrs{IntAttr("dtype", int64(tensor.Int32)), FloatAttr("value", 5)}
	out := runOp(t, ConstantOfShape, attrs, []*tensor.RawTensor{shape}, 1)
	assert.Equal(t, []int32{5, 5, 5}, out[0].AsInt32())
}

func TestRangeFloat(t *testing.T) {
	start := tensor.Scalar[float32](1)
	limit := tensor.Scalar[float32](5)
	delta := tensor.Scalar[float32](1.5)
	t.Cleanup(func() { start.Release(); limit.Release(); delta.Release() })
	out := runOp(t, Range, nil, []*tensor.RawTensor{start, limit, delta}, 1)
	assert.InDeltaSlice(t, []float32{1, 2.5, 4}, out[0].AsFloat32(), 1e-6)
}

func TestRangeInt32Descending(t *testing.T) {
	start := tensor.Scalar[int32](5)
	limit := tensor.Scalar[int32](1)
	delta := tensor.Scalar[int32](-2)
	t.Cleanup(func() { start.Release(); limit.Release(); delta.Release() })
	out := runOp(t, Range, nil, []*tensor.RawTensor{start, limit, delta}, 1)
	assert.Equal(t, []int32{5, 3}, out[0].AsInt32())
}

func TestRangeZeroDelta(t *testing.T) {
	start := tensor.Scalar[float32](0)
	limit := tensor.Scalar[float32](1)
	delta := tensor.Scalar[float32](0)
	t.Cleanup(func() { start.Release(); limit.Release(); delta.Release() })
	err := runOpErr(t, Range, nil, []*tensor.RawTensor{start, limit, delta}, 1)
	var ke *KernelError
	assert.ErrorAs(t, err, &ke)
}

func TestCastFloatToInt32TruncatesTowardZero(t *testing.T) {
	x := f32Tensor(t, []float32{1.9, -1.9, 0.5, -0.5}, 4)
	attrs := Attrs{IntAttr("to", int64(tensor.Int32))}
	out := runOp(t, Cast, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []int32{1, -1, 0, 0}, out[0].AsInt32())
}

func TestCastToBool(t *testing.T) {
	x := f32Tensor(t, []float32{0, 0.5, -2}, 3)
	attrs := Attrs{IntAttr("to", int64(tensor.Bool))}
	out := runOp(t, Cast, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []bool{false, true, true}, out[0].AsBool())
}

func TestCastBoolToFloat(t *testing.T) {
	x := boolTensor(t, []bool{true, false}, 2)
	attrs := Attrs{IntAttr("to", int64(tensor.Float32))}
	out := runOp(t, Cast, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []float32{1, 0}, out[0].AsFloat32())
}

func TestCastSameTypeIsView(t *testing.T) {
	x := i32Tensor(t, []int32{1, 2}, 2)
	attrs := Attrs{IntAttr("to", int64(tensor.Int32))}
	out := runOp(t, Cast, attrs, []*tensor.RawTensor{x}, 1)
	out[0].AsInt32()[0] = 9
	assert.Equal(t, int32(9), x.AsInt32()[0])
}

func TestCastInvalidTarget(t *testing.T) {
	x := f32Tensor(t, []float32{1}, 1)
	attrs := Attrs{IntAttr("to", 200)}
	err := runOpErr(t, Cast, attrs, []*tensor.RawTensor{x}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}
