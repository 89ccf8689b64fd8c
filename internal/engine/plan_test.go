// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/tensor"
)

func valNode(name string, dt tensor.DataType, dims ...int) graph.Node {
	return graph.Node{Kind: graph.ValueNode, Name: name, DType: dt, Dims: dims}
}

func opNode(name string, op ops.OpType, in, out []int) graph.Node {
	return graph.Node{Kind: graph.OperatorNode, Name: name, Op: op, Inputs: in, Outputs: out}
}

// diamondGraph builds y = relu(x) + sigmoid(x).
func diamondGraph(t *testing.T) *graph.Graph {
	t.Helper()
	nodes := []graph.Node{
		valNode("x", tensor.Float32, 4), // 0
		valNode("l", tensor.Float32, 4), // 1
		valNode("r", tensor.Float32, 4), // 2
		valNode("y", tensor.Float32, 4), // 3
		opNode("left", ops.Relu, []int{0}, []int{1}),     // 4
		opNode("right", ops.Sigmoid, []int{0}, []int{2}), // 5
		opNode("join", ops.Add, []int{1, 2}, []int{3}),   // 6
	}
	g, err := graph.New(nodes, []int{0}, []int{3})
	require.NoError(t, err)
	return g
}

// chainGraph builds y = relu(relu(x)).
func chainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	nodes := []graph.Node{
		valNode("x", tensor.Float32, 4), // 0
		valNode("m", tensor.Float32, 4), // 1
		valNode("y", tensor.Float32, 4), // 2
		opNode("relu1", ops.Relu, []int{0}, []int{1}), // 3
		opNode("relu2", ops.Relu, []int{1}, []int{2}), // 4
	}
	g, err := graph.New(nodes, []int{0}, []int{2})
	require.NoError(t, err)
	return g
}

func TestNewPlanDiamond(t *testing.T) {
	g := diamondGraph(t)
	p, err := NewPlan(g, []int{3})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5, 6}, p.Order())
	assert.Equal(t, [][]int{{4, 5}, {6}}, p.Levels())

	// x feeds both branches; intermediates have one consumer each; the
	// target carries an extra count so it survives the run.
	assert.Equal(t, 2, p.Refcount(0))
	assert.Equal(t, 1, p.Refcount(1))
	assert.Equal(t, 1, p.Refcount(2))
	assert.Equal(t, 1, p.Refcount(3))
}

func TestNewPlanIntermediateTarget(t *testing.T) {
	g := chainGraph(t)
	p, err := NewPlan(g, []int{1, 2})
	require.NoError(t, err)
	// m is read by relu2 and requested as a target.
	assert.Equal(t, 2, p.Refcount(1))
	assert.Equal(t, [][]int{{3}, {4}}, p.Levels())
}

func TestNewPlanDuplicateTarget(t *testing.T) {
	g := chainGraph(t)
	p, err := NewPlan(g, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Refcount(2))
}

func TestNewPlanOmitsUnreachable(t *testing.T) {
	g := diamondGraph(t)
	// Only the left branch is needed for node 1.
	p, err := NewPlan(g, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, p.Order())
	assert.Equal(t, 1, p.Refcount(0))
	assert.Equal(t, 0, p.Refcount(2))
}

func TestNewPlanInputTarget(t *testing.T) {
	g := chainGraph(t)
	p, err := NewPlan(g, []int{0})
	require.NoError(t, err)
	assert.Empty(t, p.Order())
	assert.Empty(t, p.Levels())
}

func TestNewPlanOutOfRangeTarget(t *testing.T) {
	g := chainGraph(t)
	_, err := NewPlan(g, []int{99})
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, UnknownOutput, re.Kind)
}

func TestNewPlanOperatorTarget(t *testing.T) {
	g := chainGraph(t)
	_, err := NewPlan(g, []int{3})
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, UnknownOutput, re.Kind)
}
