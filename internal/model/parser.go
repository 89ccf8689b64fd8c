// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/tensor"
)

// Load parses an LGRF container into a validated graph. The version
// field is checked before any node data is touched, so a reader built
// for v1 never misparses a future container. Loading also runs shape
// inference over every operator whose input shapes are statically
// known and rejects models whose declared shapes contradict it.
func Load(data []byte) (*graph.Graph, error) {
	r := newReader(data)
	if string(r.bytes(magicLen)) != magic {
		return nil, loadErrf(ErrMalformed, "bad magic")
	}
	if v := r.u32(); r.err == nil && v != Version {
		return nil, loadErrf(ErrVersion, "version %d, reader supports %d", v, Version)
	}
	if r.err != nil {
		return nil, &LoadError{Class: ErrMalformed, Err: r.err}
	}

	nodeCount := r.count(2)
	nodes := make([]graph.Node, 0, nodeCount)
	for i := 0; i < nodeCount && r.err == nil; i++ {
		n, err := parseNode(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	inputs := parseIndexList(r)
	outputs := parseIndexList(r)
	if r.err != nil {
		return nil, &LoadError{Class: ErrMalformed, Err: r.err}
	}

	g, err := graph.New(nodes, inputs, outputs)
	if err != nil {
		return nil, &LoadError{Class: ErrInvalidGraph, Err: err}
	}
	if err := staticShapeCheck(g); err != nil {
		return nil, err
	}
	return g, nil
}

func parseNode(r *reader) (graph.Node, error) {
	var n graph.Node
	kind := r.u8()
	n.Name = r.str()
	switch kind {
	case kindValue:
		n.Kind = graph.ValueNode
		n.DType = tensor.DataType(r.u8())
		if r.err == nil && !n.DType.Valid() {
			return n, loadErrf(ErrMalformed, "value %q: invalid dtype code %d", n.Name, n.DType)
		}
		rank := r.u32()
		if r.err == nil && rank > maxRank {
			return n, loadErrf(ErrMalformed, "value %q: rank %d exceeds limit", n.Name, rank)
		}
		n.Dims = make([]int, rank)
		for i := range n.Dims {
			d := r.i32()
			if r.err == nil && d < -1 {
				return n, loadErrf(ErrMalformed, "value %q: invalid dimension %d", n.Name, d)
			}
			n.Dims[i] = int(d)
		}

	case kindConstant:
		n.Kind = graph.ConstantNode
		dt := tensor.DataType(r.u8())
		if r.err == nil && !dt.Valid() {
			return n, loadErrf(ErrMalformed, "constant %q: invalid dtype code %d", n.Name, dt)
		}
		rank := r.u32()
		if r.err == nil && rank > maxRank {
			return n, loadErrf(ErrMalformed, "constant %q: rank %d exceeds limit", n.Name, rank)
		}
		shape := make(tensor.Shape, rank)
		elems := 1
		for i := range shape {
			d := r.u32()
			shape[i] = int(d)
			elems *= int(d)
			if r.err == nil && elems > r.remaining() {
				return n, loadErrf(ErrMalformed, "constant %q: payload exceeds remaining input", n.Name)
			}
		}
		payload := r.bytes(elems * dt.Size())
		if r.err != nil {
			break
		}
		t, err := tensor.NewRaw(shape, dt)
		if err != nil {
			return n, loadErrf(ErrMalformed, "constant %q: %v", n.Name, err)
		}
		copy(t.Data(), payload)
		n.Const = t

	case kindOperator:
		n.Kind = graph.OperatorNode
		opName := r.str()
		if r.err == nil {
			op, ok := ops.FromName(opName)
			if !ok {
				return n, loadErrf(ErrUnsupportedOp, "%q (operator node %q)", opName, n.Name)
			}
			n.Op = op
		}
		attrCount := r.count(6)
		for i := 0; i < attrCount && r.err == nil; i++ {
			a, err := parseAttr(r, n.Name)
			if err != nil {
				return n, err
			}
			n.Attrs = append(n.Attrs, a)
		}
		n.Inputs = parseInputList(r)
		n.Outputs = parseIndexList(r)

	default:
		return n, loadErrf(ErrMalformed, "unknown node kind %d", kind)
	}
	if r.err != nil {
		return n, &LoadError{Class: ErrMalformed, Err: r.err}
	}
	return n, nil
}

func parseAttr(r *reader, node string) (ops.Attr, error) {
	name := r.str()
	tag := r.u8()
	switch tag {
	case attrTagInt:
		return ops.IntAttr(name, r.i64()), nil
	case attrTagFloat:
		return ops.FloatAttr(name, r.f32()), nil
	case attrTagInts:
		vals := make([]int64, r.count(8))
		for i := range vals {
			vals[i] = r.i64()
		}
		return ops.IntsAttr(name, vals...), nil
	case attrTagFloats:
		vals := make([]float32, r.count(4))
		for i := range vals {
			vals[i] = r.f32()
		}
		return ops.FloatsAttr(name, vals...), nil
	case attrTagString:
		return ops.StringAttr(name, r.str()), nil
	default:
		if r.err != nil {
			return ops.Attr{}, &LoadError{Class: ErrMalformed, Err: r.err}
		}
		return ops.Attr{}, loadErrf(ErrMalformed, "operator %q: unknown attribute tag %d", node, tag)
	}
}

func parseIndexList(r *reader) []int {
	out := make([]int, r.count(4))
	for i := range out {
		out[i] = int(r.u32())
	}
	return out
}

// parseInputList is parseIndexList with the absent-input marker mapped
// to -1.
func parseInputList(r *reader) []int {
	out := make([]int, r.count(4))
	for i := range out {
		v := r.u32()
		if v == absentInput {
			out[i] = -1
		} else {
			out[i] = int(v)
		}
	}
	return out
}

// staticShapeCheck runs each operator's shape inference wherever every
// input shape is known at load time, and checks the result against the
// declared dims of the output value nodes. Operators fed by dynamic
// inputs are skipped; they are checked again at run time.
func staticShapeCheck(g *graph.Graph) error {
	infos := make([]ops.TensorInfo, len(g.Nodes))
	known := make([]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		switch n.Kind {
		case graph.ConstantNode:
			infos[i] = ops.Info(n.Const)
			known[i] = true
		case graph.ValueNode:
			if g.Producer(i) != -1 {
				continue
			}
			static := true
			for _, d := range n.Dims {
				if d == -1 {
					static = false
					break
				}
			}
			if static {
				infos[i] = ops.TensorInfo{DType: n.DType, Shape: tensor.Shape(n.Dims).Clone()}
				known[i] = true
			}
		}
	}

	var produced []int
	for i := range g.Nodes {
		if g.Producer(i) != -1 {
			produced = append(produced, i)
		}
	}
	for _, op := range g.TopoOrder(produced) {
		node := &g.Nodes[op]
		var in []ops.TensorInfo
		ready := true
		for _, id := range node.Inputs {
			if id == -1 {
				continue
			}
			if !known[id] {
				ready = false
				break
			}
			in = append(in, infos[id])
		}
		if !ready {
			continue
		}
		kernel, _ := ops.Lookup(node.Op)
		out, err := kernel.Infer(node.Attrs, in, len(node.Outputs))
		if err != nil {
			return &LoadError{Class: ErrInvalidGraph, Detail: "operator " + node.Name, Err: err}
		}
		for oi, id := range node.Outputs {
			if out[oi].Shape == nil {
				continue
			}
			decl := g.Nodes[id].Dims
			if len(decl) != len(out[oi].Shape) {
				return loadErrf(ErrInvalidGraph, "value %q: declared rank %d, inferred rank %d", g.Nodes[id].Name, len(decl), len(out[oi].Shape))
			}
			for d, want := range decl {
				if want != -1 && out[oi].Shape[d] != want {
					return loadErrf(ErrInvalidGraph, "value %q: declared dimension %d is %d, inferred %d", g.Nodes[id].Name, d, want, out[oi].Shape[d])
				}
			}
			infos[id] = ops.TensorInfo{DType: out[oi].DType, Shape: out[oi].Shape}
			known[id] = true
		}
	}
	return nil
}
