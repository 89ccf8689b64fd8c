// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"encoding/binary"
	"math"

	"github.com/lattice-ml/lattice/internal/graph"
	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/tensor"
)

// Builder assembles an LGRF container in memory. It is the write side
// of Load, used by tooling and tests; node methods return the index the
// node will have in the loaded graph.
type Builder struct {
	nodes   []graph.Node
	inputs  []int
	outputs []int
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Value adds a value node. A -1 dim marks a dynamic dimension.
func (b *Builder) Value(name string, dt tensor.DataType, dims []int) int {
	b.nodes = append(b.nodes, graph.Node{
		Kind:  graph.ValueNode,
		Name:  name,
		DType: dt,
		Dims:  append([]int(nil), dims...),
	})
	return len(b.nodes) - 1
}

// Constant adds a constant node holding t. The builder keeps a
// reference to t until Finish.
func (b *Builder) Constant(name string, t *tensor.RawTensor) int {
	b.nodes = append(b.nodes, graph.Node{
		Kind:  graph.ConstantNode,
		Name:  name,
		Const: t,
	})
	return len(b.nodes) - 1
}

// Operator adds an operator node. An input of -1 marks an absent
// optional input.
func (b *Builder) Operator(name string, op ops.OpType, attrs ops.Attrs, inputs, outputs []int) int {
	b.nodes = append(b.nodes, graph.Node{
		Kind:    graph.OperatorNode,
		Name:    name,
		Op:      op,
		Attrs:   attrs,
		Inputs:  append([]int(nil), inputs...),
		Outputs: append([]int(nil), outputs...),
	})
	return len(b.nodes) - 1
}

func (b *Builder) SetInputs(ids ...int)  { b.inputs = ids }
func (b *Builder) SetOutputs(ids ...int) { b.outputs = ids }

// Finish serializes the container.
func (b *Builder) Finish() []byte {
	w := &writer{}
	w.raw([]byte(magic))
	w.u32(Version)
	w.u32(uint32(len(b.nodes)))
	for i := range b.nodes {
		writeNode(w, &b.nodes[i])
	}
	writeIndexList(w, b.inputs)
	writeIndexList(w, b.outputs)
	return w.buf
}

func writeNode(w *writer, n *graph.Node) {
	switch n.Kind {
	case graph.ValueNode:
		w.u8(kindValue)
		w.str(n.Name)
		w.u8(uint8(n.DType))
		w.u32(uint32(len(n.Dims)))
		for _, d := range n.Dims {
			w.u32(uint32(int32(d)))
		}
	case graph.ConstantNode:
		w.u8(kindConstant)
		w.str(n.Name)
		w.u8(uint8(n.Const.DType()))
		shape := n.Const.Shape()
		w.u32(uint32(len(shape)))
		for _, d := range shape {
			w.u32(uint32(d))
		}
		w.raw(n.Const.Data())
	case graph.OperatorNode:
		w.u8(kindOperator)
		w.str(n.Name)
		w.str(n.Op.String())
		w.u32(uint32(len(n.Attrs)))
		for _, a := range n.Attrs {
			writeAttr(w, a)
		}
		w.u32(uint32(len(n.Inputs)))
		for _, in := range n.Inputs {
			if in == -1 {
				w.u32(absentInput)
			} else {
				w.u32(uint32(in))
			}
		}
		writeIndexList(w, n.Outputs)
	}
}

func writeAttr(w *writer, a ops.Attr) {
	w.str(a.Name)
	switch a.Kind {
	case ops.AttrInt:
		w.u8(attrTagInt)
		w.u64(uint64(a.I))
	case ops.AttrFloat:
		w.u8(attrTagFloat)
		w.f32(a.F)
	case ops.AttrInts:
		w.u8(attrTagInts)
		w.u32(uint32(len(a.Ints)))
		for _, v := range a.Ints {
			w.u64(uint64(v))
		}
	case ops.AttrFloats:
		w.u8(attrTagFloats)
		w.u32(uint32(len(a.Floats)))
		for _, v := range a.Floats {
			w.f32(v)
		}
	case ops.AttrString:
		w.u8(attrTagString)
		w.str(a.S)
	}
}

func writeIndexList(w *writer, ids []int) {
	w.u32(uint32(len(ids)))
	for _, id := range ids {
		w.u32(uint32(id))
	}
}

type writer struct {
	buf []byte
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}
