// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"context"

	"github.com/lattice-ml/lattice/internal/engine"
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/tensor"
)

// Options configures execution for a loaded model.
type Options = engine.Options

// ValueInfo describes one model input or output. A -1 dim is dynamic
// and fixed only at run time.
type ValueInfo struct {
	Name  string
	DType tensor.DataType
	Dims  []int
}

// Model is a loaded graph bound to an execution plan for its declared
// outputs. A Model is safe for concurrent Run calls: the graph and plan
// are immutable and each run keeps its own value table.
type Model struct {
	g        *graph.Graph
	plan     *engine.Plan
	eng      *engine.Engine
	inputIDs map[string]int
}

// New loads an LGRF container and prepares it for execution.
func New(data []byte, opts Options) (*Model, error) {
	g, err := Load(data)
	if err != nil {
		return nil, err
	}
	plan, err := engine.NewPlan(g, g.Outputs)
	if err != nil {
		return nil, err
	}
	m := &Model{
		g:        g,
		plan:     plan,
		eng:      engine.New(opts),
		inputIDs: make(map[string]int, len(g.Inputs)),
	}
	for _, id := range g.Inputs {
		m.inputIDs[g.Nodes[id].Name] = id
	}
	return m, nil
}

// Graph exposes the underlying graph for introspection.
func (m *Model) Graph() *graph.Graph { return m.g }

// Plan exposes the prepared execution schedule.
func (m *Model) Plan() *engine.Plan { return m.plan }

// Inputs describes the model inputs in declaration order.
func (m *Model) Inputs() []ValueInfo {
	return m.valueInfos(m.g.Inputs)
}

// Outputs describes the model outputs in declaration order.
func (m *Model) Outputs() []ValueInfo {
	return m.valueInfos(m.g.Outputs)
}

func (m *Model) valueInfos(ids []int) []ValueInfo {
	out := make([]ValueInfo, len(ids))
	for i, id := range ids {
		n := &m.g.Nodes[id]
		info := ValueInfo{Name: n.Name, DType: n.DType, Dims: append([]int(nil), n.Dims...)}
		if n.Kind == graph.ConstantNode {
			info.DType = n.Const.DType()
			info.Dims = append([]int(nil), n.Const.Shape()...)
		}
		out[i] = info
	}
	return out
}

// Run executes the model with inputs keyed by input name and returns
// the outputs keyed by output name. The caller owns the returned
// tensors.
func (m *Model) Run(ctx context.Context, inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	outs, _, err := m.run(ctx, inputs, false)
	return outs, err
}

// RunTimed is Run plus per-operator timings in execution order.
func (m *Model) RunTimed(ctx context.Context, inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, []engine.NodeTiming, error) {
	return m.run(ctx, inputs, true)
}

func (m *Model) run(ctx context.Context, inputs map[string]*tensor.RawTensor, timed bool) (map[string]*tensor.RawTensor, []engine.NodeTiming, error) {
	byID := make(map[int]*tensor.RawTensor, len(inputs))
	for name, t := range inputs {
		id, ok := m.inputIDs[name]
		if !ok {
			return nil, nil, &engine.RunError{Kind: engine.InputMismatch, Node: -1, Name: name, Detail: "no such model input"}
		}
		byID[id] = t
	}

	var (
		outs    []*tensor.RawTensor
		timings []engine.NodeTiming
		err     error
	)
	if timed {
		outs, timings, err = m.eng.RunTimed(ctx, m.plan, byID)
	} else {
		outs, err = m.eng.Run(ctx, m.plan, byID)
	}
	if err != nil {
		return nil, nil, err
	}
	result := make(map[string]*tensor.RawTensor, len(outs))
	for i, id := range m.g.Outputs {
		result[m.g.Nodes[id].Name] = outs[i]
	}
	return result, timings, nil
}
