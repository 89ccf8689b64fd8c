// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph holds the in-memory representation of a loaded model: a
// flat node table with value, constant and operator nodes, plus the
// producer/consumer index derived from it.
package graph

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/tensor"
)

type NodeKind uint8

const (
	ValueNode NodeKind = iota
	ConstantNode
	OperatorNode
)

func (k NodeKind) String() string {
	switch k {
	case ValueNode:
		return "value"
	case ConstantNode:
		return "constant"
	case OperatorNode:
		return "operator"
	default:
		return "unknown"
	}
}

// Node is one entry in the node table. Which fields are meaningful
// depends on Kind: value nodes carry DType and Dims (-1 marks a dynamic
// dimension), constant nodes carry Const, operator nodes carry Op, Attrs
// and the input/output node indices. An input index of -1 marks an
// absent optional input.
type Node struct {
	Kind NodeKind
	Name string

	DType tensor.DataType
	Dims  []int

	Const *tensor.RawTensor

	Op      ops.OpType
	Attrs   ops.Attrs
	Inputs  []int
	Outputs []int
}

// ValidationError reports a structural problem found while building a
// graph.
type ValidationError struct {
	Node   int
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Node >= 0 {
		return fmt.Sprintf("graph: node %d: %s", e.Node, e.Detail)
	}
	return "graph: " + e.Detail
}

func validationErrf(node int, format string, args ...any) error {
	return &ValidationError{Node: node, Detail: fmt.Sprintf(format, args...)}
}

// Graph is an immutable, validated node table. Inputs and Outputs index
// into Nodes; producer and consumers are derived during construction.
type Graph struct {
	Nodes   []Node
	Inputs  []int
	Outputs []int

	producer  []int   // per node: operator index that writes it, or -1
	consumers [][]int // per node: operator indices that read it
}

// New validates the node table and builds the producer/consumer index.
// It rejects out-of-range references, operators reading or writing
// non-value nodes, doubly-produced values, undriven interior values and
// cycles.
func New(nodes []Node, inputs, outputs []int) (*Graph, error) {
	g := &Graph{
		Nodes:     nodes,
		Inputs:    inputs,
		Outputs:   outputs,
		producer:  make([]int, len(nodes)),
		consumers: make([][]int, len(nodes)),
	}
	for i := range g.producer {
		g.producer[i] = -1
	}

	for i := range nodes {
		n := &nodes[i]
		if n.Kind != OperatorNode {
			continue
		}
		kernel, ok := ops.Lookup(n.Op)
		if !ok {
			return nil, validationErrf(i, "unknown operator %d", n.Op)
		}
		nin := 0
		for _, in := range n.Inputs {
			if in == -1 {
				continue
			}
			nin++
			if in < 0 || in >= len(nodes) {
				return nil, validationErrf(i, "input index %d out of range", in)
			}
			if nodes[in].Kind == OperatorNode {
				return nil, validationErrf(i, "input %d is an operator node", in)
			}
			g.consumers[in] = append(g.consumers[in], i)
		}
		if err := kernel.CheckArity(nin, len(n.Outputs)); err != nil {
			return nil, validationErrf(i, "%v", err)
		}
		for _, out := range n.Outputs {
			if out < 0 || out >= len(nodes) {
				return nil, validationErrf(i, "output index %d out of range", out)
			}
			if nodes[out].Kind != ValueNode {
				return nil, validationErrf(i, "output %d is a %s node", out, nodes[out].Kind)
			}
			if g.producer[out] != -1 {
				return nil, validationErrf(i, "value %d already produced by operator %d", out, g.producer[out])
			}
			g.producer[out] = i
		}
	}

	isInput := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		if in < 0 || in >= len(nodes) {
			return nil, validationErrf(-1, "input index %d out of range", in)
		}
		if nodes[in].Kind != ValueNode {
			return nil, validationErrf(-1, "input %d is a %s node", in, nodes[in].Kind)
		}
		if g.producer[in] != -1 {
			return nil, validationErrf(-1, "input %d is produced by operator %d", in, g.producer[in])
		}
		if isInput[in] {
			return nil, validationErrf(-1, "duplicate input %d", in)
		}
		isInput[in] = true
	}
	for _, out := range outputs {
		if out < 0 || out >= len(nodes) {
			return nil, validationErrf(-1, "output index %d out of range", out)
		}
		if nodes[out].Kind == OperatorNode {
			return nil, validationErrf(-1, "output %d is an operator node", out)
		}
	}

	// Interior values must be driven by an operator or declared as inputs.
	for i := range nodes {
		if nodes[i].Kind == ValueNode && g.producer[i] == -1 && !isInput[i] && len(g.consumers[i]) > 0 {
			return nil, validationErrf(i, "value %q has consumers but no producer", nodes[i].Name)
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// Producer returns the operator node index producing node i, or -1.
func (g *Graph) Producer(i int) int { return g.producer[i] }

// Consumers returns the operator node indices reading node i.
func (g *Graph) Consumers(i int) []int { return g.consumers[i] }

// FindNode returns the index of the first node with the given name.
func (g *Graph) FindNode(name string) (int, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// checkAcyclic DFS-walks operators from every graph output; a gray node
// seen again means a cycle.
func (g *Graph) checkAcyclic() error {
	color := make([]uint8, len(g.Nodes))
	var visit func(op int) error
	visit = func(op int) error {
		switch color[op] {
		case colorBlack:
			return nil
		case colorGray:
			return validationErrf(op, "cycle detected through operator %q", g.Nodes[op].Name)
		}
		color[op] = colorGray
		for _, in := range g.Nodes[op].Inputs {
			if in == -1 {
				continue
			}
			if p := g.producer[in]; p != -1 {
				if err := visit(p); err != nil {
					return err
				}
			}
		}
		color[op] = colorBlack
		return nil
	}
	for i := range g.Nodes {
		if g.Nodes[i].Kind == OperatorNode {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopoOrder returns the operator indices needed to produce the target
// nodes, in a deterministic execution order: dependencies first, ties
// broken by node index. Operators not reachable from any target are
// omitted.
func (g *Graph) TopoOrder(targets []int) []int {
	visited := make([]bool, len(g.Nodes))
	var order []int
	var visit func(op int)
	visit = func(op int) {
		if visited[op] {
			return
		}
		visited[op] = true
		for _, in := range g.Nodes[op].Inputs {
			if in == -1 {
				continue
			}
			if p := g.producer[in]; p != -1 {
				visit(p)
			}
		}
		order = append(order, op)
	}
	for _, t := range targets {
		if p := g.producer[t]; p != -1 {
			visit(p)
		}
	}
	return order
}
