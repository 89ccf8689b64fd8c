// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"sort"

	"github.com/lattice-ml/lattice/internal/graph"
)

// Plan is the reusable execution schedule for one set of requested
// outputs: the deterministic operator order, the same operators grouped
// into dependency levels for parallel dispatch, and the static consumer
// count for every node. Building a plan does no allocation work for
// tensors; the same plan serves any number of runs.
type Plan struct {
	g       *graph.Graph
	targets []int

	order     []int
	levels    [][]int
	refcounts []int
}

// NewPlan schedules the operators needed to produce targets. Targets
// must be value or constant nodes; operators not reachable from any
// target are excluded.
func NewPlan(g *graph.Graph, targets []int) (*Plan, error) {
	for _, t := range targets {
		if t < 0 || t >= len(g.Nodes) {
			return nil, runErrf(UnknownOutput, t, "", "output index out of range")
		}
		if g.Nodes[t].Kind == graph.OperatorNode {
			return nil, runErrf(UnknownOutput, t, g.Nodes[t].Name, "output is an operator node")
		}
	}
	p := &Plan{
		g:         g,
		targets:   append([]int(nil), targets...),
		order:     g.TopoOrder(targets),
		refcounts: make([]int, len(g.Nodes)),
	}

	scheduled := make(map[int]bool, len(p.order))
	for _, op := range p.order {
		scheduled[op] = true
	}

	// Static consumer counts: one per read by a scheduled operator, plus
	// one per occurrence in the target list so outputs survive the run.
	for _, op := range p.order {
		for _, in := range p.g.Nodes[op].Inputs {
			if in != -1 {
				p.refcounts[in]++
			}
		}
	}
	for _, t := range targets {
		p.refcounts[t]++
	}

	// Dependency levels: an operator's level is one past the deepest
	// producer among its inputs. Operators in one level are independent
	// and sorted by node index.
	depth := make(map[int]int, len(p.order))
	maxDepth := 0
	for _, op := range p.order {
		d := 0
		for _, in := range p.g.Nodes[op].Inputs {
			if in == -1 {
				continue
			}
			if prod := g.Producer(in); prod != -1 && scheduled[prod] {
				if pd := depth[prod] + 1; pd > d {
					d = pd
				}
			}
		}
		depth[op] = d
		if d > maxDepth {
			maxDepth = d
		}
	}
	if len(p.order) > 0 {
		p.levels = make([][]int, maxDepth+1)
		for _, op := range p.order {
			p.levels[depth[op]] = append(p.levels[depth[op]], op)
		}
		for _, level := range p.levels {
			sort.Ints(level)
		}
	}
	return p, nil
}

// Graph returns the graph this plan was built for.
func (p *Plan) Graph() *graph.Graph { return p.g }

// Targets returns the node indices the plan produces.
func (p *Plan) Targets() []int { return p.targets }

// Order returns the scheduled operator indices in execution order.
func (p *Plan) Order() []int { return p.order }

// Levels returns the operators grouped by dependency depth.
func (p *Plan) Levels() [][]int { return p.levels }

// Refcount returns the static consumer count for node i.
func (p *Plan) Refcount(i int) int { return p.refcounts[i] }
