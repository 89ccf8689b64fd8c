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

func TestReduceSumAllAxes(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out := runOp(t, ReduceSum, nil, []*tensor.RawTensor{x}, 1)
	// Default keepdims keeps rank with all-1 dims.
	require.True(t, out[0].Shape().Equal(tensor.Shape{1, 1}))
	assert.Equal(t, []float32{21}, out[0].AsFloat32())
}

func TestReduceSumTrailingAxis(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	attrs := Attrs{IntsAttr("axes", 1), IntAttr("keepdims", 0)}
	out := runOp(t, ReduceSum, attrs, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2}))
	assert.Equal(t, []float32{6, 15}, out[0].AsFloat32())
}

func TestReduceSumLeadingAxisStrided(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	attrs := Attrs{IntsAttr("axes", 0), IntAttr("keepdims", 0)}
	out := runOp(t, ReduceSum, attrs, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{3}))
	assert.Equal(t, []float32{5, 7, 9}, out[0].AsFloat32())
}

func TestReduceMean(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4}, 2, 2)
	attrs := Attrs{IntsAttr("axes", 1), IntAttr("keepdims", 1)}
	out := runOp(t, ReduceMean, attrs, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 1}))
	assert.Equal(t, []float32{1.5, 3.5}, out[0].AsFloat32())
}

func TestReduceMaxMin(t *testing.T) {
	x := f32Tensor(t, []float32{3, -1, 7, 0, -5, 2}, 2, 3)
	attrs := Attrs{IntsAttr("axes", 1), IntAttr("keepdims", 0)}

	mx := runOp(t, ReduceMax, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []float32{7, 2}, mx[0].AsFloat32())

	mn := runOp(t, ReduceMin, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []float32{-1, -5}, mn[0].AsFloat32())
}

func TestReduceNegativeAxis(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4}, 2, 2)
	attrs := Attrs{IntsAttr("axes", -1), IntAttr("keepdims", 0)}
	out := runOp(t, ReduceSum, attrs, []*tensor.RawTensor{x}, 1)
	assert.Equal(t, []float32{3, 7}, out[0].AsFloat32())
}

func TestReduceMiddleAxisOfRank3(t *testing.T) {
	// Shape [2,2,2]: reducing the middle axis exercises the strided path.
	x := f32Tensor(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2)
	attrs := Attrs{IntsAttr("axes", 1), IntAttr("keepdims", 0)}
	out := runOp(t, ReduceSum, attrs, []*tensor.RawTensor{x}, 1)
	require.True(t, out[0].Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{4, 6, 12, 14}, out[0].AsFloat32())
}

func TestReduceAxisOutOfRange(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2}, 2)
	attrs := Attrs{IntsAttr("axes", 3)}
	err := runOpErr(t, ReduceSum, attrs, []*tensor.RawTensor{x}, 1)
	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Detail, "out of range")
}

func TestReduceDuplicateAxis(t *testing.T) {
	x := f32Tensor(t, []float32{1, 2, 3, 4}, 2, 2)
	attrs := Attrs{IntsAttr("axes", 0, 0)}
	err := runOpErr(t, ReduceSum, attrs, []*tensor.RawTensor{x}, 1)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestReduceEmptyAxisFails(t *testing.T) {
	x, err := tensor.NewRaw(tensor.Shape{0, 3}, tensor.Float32)
	require.NoError(t, err)
	t.Cleanup(x.Release)
	attrs := Attrs{IntsAttr("axes", 0)}
	kernel, _ := Lookup(ReduceMean)
	_, execErr := kernel.Exec(testCtx(), attrs, []*tensor.RawTensor{x}, 1)
	var ke *KernelError
	assert.ErrorAs(t, execErr, &ke)
}
