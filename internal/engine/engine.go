// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine executes a graph plan: operators run in the plan's
// deterministic order, intermediate buffers are released as soon as
// their last consumer has run, and independent operators within a
// dependency level are dispatched across a worker pool.
package engine

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/parallel"
	"github.com/lattice-ml/lattice/internal/tensor"
)

// Options configures an Engine.
type Options struct {
	// Pool runs element loops and level dispatch. Defaults to the shared
	// pool sized to the machine.
	Pool *parallel.Pool
	// DisableInPlace turns off the buffer-stealing path for unary
	// operators whose input has no other consumers.
	DisableInPlace bool
}

// NodeTiming records how long one operator took during a timed run.
type NodeTiming struct {
	Node     int
	Op       string
	Name     string
	Duration time.Duration
}

type Engine struct {
	pool    *parallel.Pool
	inPlace bool
}

func New(opts Options) *Engine {
	pool := opts.Pool
	if pool == nil {
		pool = parallel.Default()
	}
	return &Engine{pool: pool, inPlace: !opts.DisableInPlace}
}

// Run executes the plan with the given inputs, keyed by input node
// index. It returns one tensor per plan target, in target order; the
// caller owns the returned tensors and releases them when done. On any
// failure every allocated buffer is released and no outputs are
// returned.
func (e *Engine) Run(ctx context.Context, p *Plan, inputs map[int]*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	outs, _, err := e.run(ctx, p, inputs, false)
	return outs, err
}

// RunTimed is Run plus a per-operator timing record in execution order.
func (e *Engine) RunTimed(ctx context.Context, p *Plan, inputs map[int]*tensor.RawTensor) ([]*tensor.RawTensor, []NodeTiming, error) {
	return e.run(ctx, p, inputs, true)
}

func (e *Engine) run(ctx context.Context, p *Plan, inputs map[int]*tensor.RawTensor, timed bool) ([]*tensor.RawTensor, []NodeTiming, error) {
	g := p.Graph()
	if err := validateInputs(g, inputs); err != nil {
		return nil, nil, err
	}
	start := time.Now()

	values := make([]*tensor.RawTensor, len(g.Nodes))
	for i := range g.Nodes {
		if g.Nodes[i].Kind == graph.ConstantNode {
			values[i] = g.Nodes[i].Const
		}
	}
	for id, t := range inputs {
		values[id] = t
	}
	refcounts := make([]int, len(g.Nodes))
	copy(refcounts, p.refcounts)

	var timings []NodeTiming
	if timed {
		timings = make([]NodeTiming, 0, len(p.order))
	}

	// releaseAll drops every operator-produced value still held; used on
	// the failure paths so a failed run leaks nothing.
	releaseAll := func() {
		for i, v := range values {
			if v != nil && g.Producer(i) != -1 {
				v.Release()
				values[i] = nil
			}
		}
	}

	opCtx := &ops.Context{Pool: e.pool}
	for _, level := range p.Levels() {
		if err := ctx.Err(); err != nil {
			releaseAll()
			return nil, nil, &RunError{Kind: Canceled, Node: -1, Err: err}
		}

		results := make([][]*tensor.RawTensor, len(level))
		errs := make([]*RunError, len(level))
		elapsed := make([]time.Duration, len(level))
		exec := func(i int) {
			nodeStart := time.Now()
			results[i], errs[i] = e.execNode(opCtx, g, values, refcounts, level[i])
			elapsed[i] = time.Since(nodeStart)
		}
		if len(level) > 1 && e.pool.Workers() > 1 {
			e.pool.ForEager(len(level), exec)
		} else {
			for i := range level {
				exec(i)
			}
		}

		// Publish results and pick errors in node-index order so a run
		// with several failures always reports the same one.
		var firstErr *RunError
		for i, op := range level {
			if errs[i] != nil {
				if firstErr == nil {
					firstErr = errs[i]
				}
				continue
			}
			node := &g.Nodes[op]
			for oi, out := range node.Outputs {
				values[out] = results[i][oi]
				if refcounts[out] == 0 {
					// Output nothing consumes, released immediately.
					values[out].Release()
					values[out] = nil
				}
			}
			if timed {
				timings = append(timings, NodeTiming{Node: op, Op: node.Op.String(), Name: node.Name, Duration: elapsed[i]})
			}
			if klog.V(3).Enabled() {
				klog.Infof("node %d %s %q: %v", op, node.Op, node.Name, elapsed[i])
			}
		}
		if firstErr != nil {
			releaseAll()
			return nil, nil, firstErr
		}

		// Decrement consumer counts and free dead intermediates.
		for _, op := range level {
			for _, in := range g.Nodes[op].Inputs {
				if in == -1 {
					continue
				}
				refcounts[in]--
				if refcounts[in] == 0 && g.Producer(in) != -1 && values[in] != nil {
					values[in].Release()
					values[in] = nil
				}
			}
		}
	}

	outs := make([]*tensor.RawTensor, len(p.targets))
	for i, t := range p.targets {
		v := values[t]
		if g.Producer(t) == -1 {
			// Inputs and constants stay owned by the caller or graph;
			// hand out a view so every returned tensor is releasable.
			view, err := v.View(v.Shape())
			if err != nil {
				releaseAll()
				return nil, nil, runErrf(KernelFailure, t, g.Nodes[t].Name, "viewing output: %v", err)
			}
			v = view
		}
		outs[i] = v
	}
	klog.V(2).Infof("ran %d operators in %v", len(p.order), time.Since(start))
	return outs, timings, nil
}

// execNode runs one operator: shape inference first, then either the
// in-place fast path or the regular kernel.
func (e *Engine) execNode(opCtx *ops.Context, g *graph.Graph, values []*tensor.RawTensor, refcounts []int, op int) ([]*tensor.RawTensor, *RunError) {
	node := &g.Nodes[op]
	kernel, ok := ops.Lookup(node.Op)
	if !ok {
		return nil, runErrf(KernelFailure, op, node.Name, "unknown operator %d", node.Op)
	}

	ins := make([]*tensor.RawTensor, 0, len(node.Inputs))
	releasable := make([]bool, 0, len(node.Inputs))
	for _, in := range node.Inputs {
		if in == -1 {
			continue
		}
		if values[in] == nil {
			return nil, runErrf(KernelFailure, op, node.Name, "input node %d has no value", in)
		}
		ins = append(ins, values[in])
		releasable = append(releasable, g.Producer(in) != -1 && refcounts[in] == 1)
	}
	nout := len(node.Outputs)

	infos := make([]ops.TensorInfo, len(ins))
	for i, t := range ins {
		infos[i] = ops.Info(t)
	}
	if _, err := kernel.Infer(node.Attrs, infos, nout); err != nil {
		return nil, &RunError{Kind: KernelFailure, Node: op, Name: node.Name, Err: err}
	}

	// In-place path: the first input came from an operator, this node is
	// its last consumer and nothing else shares the buffer, so the
	// kernel may overwrite it.
	if e.inPlace && kernel.InPlace != nil && nout == 1 && len(ins) >= 1 &&
		releasable[0] && ins[0].IsUnique() {
		if err := kernel.InPlace(opCtx, node.Attrs, ins[0], ins[1:]); err != nil {
			return nil, &RunError{Kind: KernelFailure, Node: op, Name: node.Name, Err: err}
		}
		ins[0].Retain()
		return []*tensor.RawTensor{ins[0]}, nil
	}

	outs, err := kernel.Exec(opCtx, node.Attrs, ins, nout)
	if err != nil {
		return nil, &RunError{Kind: KernelFailure, Node: op, Name: node.Name, Err: err}
	}
	if len(outs) != nout {
		for _, o := range outs {
			o.Release()
		}
		return nil, runErrf(KernelFailure, op, node.Name, "kernel returned %d outputs, expected %d", len(outs), nout)
	}
	return outs, nil
}

// validateInputs checks that every graph input is supplied with the
// declared dtype and shape (dynamic dimensions accept any size) and
// that no stray node indices are passed.
func validateInputs(g *graph.Graph, inputs map[int]*tensor.RawTensor) error {
	isInput := make(map[int]bool, len(g.Inputs))
	for _, id := range g.Inputs {
		isInput[id] = true
		node := &g.Nodes[id]
		t, ok := inputs[id]
		if !ok || t == nil {
			return runErrf(InputMismatch, id, node.Name, "missing input")
		}
		if t.DType() != node.DType {
			return runErrf(InputMismatch, id, node.Name, "dtype %s, expected %s", t.DType(), node.DType)
		}
		shape := t.Shape()
		if len(shape) != len(node.Dims) {
			return runErrf(InputMismatch, id, node.Name, "rank %d, expected %d", len(shape), len(node.Dims))
		}
		for d, want := range node.Dims {
			if want != -1 && shape[d] != want {
				return runErrf(InputMismatch, id, node.Name, "dimension %d is %d, expected %d", d, shape[d], want)
			}
		}
	}
	for id := range inputs {
		if !isInput[id] {
			name := ""
			if id >= 0 && id < len(g.Nodes) {
				name = g.Nodes[id].Name
			}
			return runErrf(InputMismatch, id, name, "node is not a graph input")
		}
	}
	return nil
}
