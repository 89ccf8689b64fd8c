// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ml/lattice/internal/engine"
	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/parallel"
	"github.com/lattice-ml/lattice/internal/tensor"
)

// buildMLP serializes a tiny two-layer perceptron:
// y = relu(x @ w1) @ w2.
func buildMLP(t *testing.T) []byte {
	t.Helper()
	w1, err := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{2, 2})
	require.NoError(t, err)
	defer w1.Release()
	w2, err := tensor.FromSlice([]float32{1, 1, 1, -1}, tensor.Shape{2, 2})
	require.NoError(t, err)
	defer w2.Release()

	b := NewBuilder()
	x := b.Value("x", tensor.Float32, []int{1, 2})
	c1 := b.Constant("w1", w1)
	c2 := b.Constant("w2", w2)
	h := b.Value("hidden", tensor.Float32, []int{1, 2})
	a := b.Value("act", tensor.Float32, []int{1, 2})
	y := b.Value("y", tensor.Float32, []int{1, 2})
	b.Operator("fc1", ops.MatMul, nil, []int{x, c1}, []int{h})
	b.Operator("relu", ops.Relu, nil, []int{h}, []int{a})
	b.Operator("fc2", ops.MatMul, nil, []int{a, c2}, []int{y})
	b.SetInputs(x)
	b.SetOutputs(y)
	return b.Finish()
}

func TestModelRun(t *testing.T) {
	m, err := New(buildMLP(t), Options{Pool: parallel.Serial()})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{3, -2}, tensor.Shape{1, 2})
	require.NoError(t, err)
	defer x.Release()

	outs, err := m.Run(context.Background(), map[string]*tensor.RawTensor{"x": x})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	defer outs["y"].Release()

	// relu([3,-2]) = [3,0]; [3,0] @ [[1,1],[1,-1]] = [3,3].
	assert.Equal(t, []float32{3, 3}, outs["y"].AsFloat32())
}

func TestModelRunRepeatedAndParallel(t *testing.T) {
	data := buildMLP(t)
	serial, err := New(data, Options{Pool: parallel.Serial()})
	require.NoError(t, err)
	par, err := New(data, Options{Pool: parallel.New(4)})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2})
	require.NoError(t, err)
	defer x.Release()
	in := map[string]*tensor.RawTensor{"x": x}

	want, err := serial.Run(context.Background(), in)
	require.NoError(t, err)
	defer want["y"].Release()

	for i := 0; i < 3; i++ {
		got, err := par.Run(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, want["y"].AsFloat32(), got["y"].AsFloat32())
		got["y"].Release()
	}
}

func TestModelRunUnknownInputName(t *testing.T) {
	m, err := New(buildMLP(t), Options{})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2})
	require.NoError(t, err)
	defer x.Release()

	_, err = m.Run(context.Background(), map[string]*tensor.RawTensor{"bogus": x})
	var re *engine.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, engine.InputMismatch, re.Kind)
	assert.Equal(t, "bogus", re.Name)
}

func TestModelRunMissingInput(t *testing.T) {
	m, err := New(buildMLP(t), Options{})
	require.NoError(t, err)
	_, err = m.Run(context.Background(), nil)
	var re *engine.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, engine.InputMismatch, re.Kind)
}

func TestModelRunTimed(t *testing.T) {
	m, err := New(buildMLP(t), Options{Pool: parallel.Serial()})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 2})
	require.NoError(t, err)
	defer x.Release()

	outs, timings, err := m.RunTimed(context.Background(), map[string]*tensor.RawTensor{"x": x})
	require.NoError(t, err)
	defer outs["y"].Release()

	require.Len(t, timings, 3)
	assert.Equal(t, "fc1", timings[0].Name)
	assert.Equal(t, "relu", timings[1].Name)
	assert.Equal(t, "fc2", timings[2].Name)
	assert.Equal(t, "MatMul", timings[0].Op)
}

func TestModelInputsOutputs(t *testing.T) {
	m, err := New(buildMLP(t), Options{})
	require.NoError(t, err)

	ins := m.Inputs()
	require.Len(t, ins, 1)
	assert.Equal(t, "x", ins[0].Name)
	assert.Equal(t, tensor.Float32, ins[0].DType)
	assert.Equal(t, []int{1, 2}, ins[0].Dims)

	outs := m.Outputs()
	require.Len(t, outs, 1)
	assert.Equal(t, "y", outs[0].Name)
}

func TestModelConcurrentRuns(t *testing.T) {
	m, err := New(buildMLP(t), Options{})
	require.NoError(t, err)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			x, err := tensor.FromSlice([]float32{2, 2}, tensor.Shape{1, 2})
			if err != nil {
				done <- err
				return
			}
			defer x.Release()
			outs, err := m.Run(context.Background(), map[string]*tensor.RawTensor{"x": x})
			if err != nil {
				done <- err
				return
			}
			outs["y"].Release()
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
