// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model loads LGRF model files and runs them.
//
// A loaded Model is immutable and safe for concurrent Run calls. Inputs
// and outputs are keyed by the names declared in the model file.
//
// Example:
//
//	m, err := model.Load(data)
//	if err != nil {
//		return err
//	}
//	x, _ := tensor.FromSlice([]float32{...}, tensor.Shape{1, 3, 224, 224})
//	defer x.Release()
//	outs, err := m.Run(ctx, map[string]*tensor.Tensor{"input": x})
package model

import (
	"github.com/lattice-ml/lattice/internal/engine"
	"github.com/lattice-ml/lattice/internal/model"
	"github.com/lattice-ml/lattice/internal/ops"
	"github.com/lattice-ml/lattice/internal/parallel"
)

// Model is a loaded graph bound to an execution plan.
type Model = model.Model

// ValueInfo describes one model input or output; a -1 dim is dynamic.
type ValueInfo = model.ValueInfo

// NodeTiming is one entry of a timed run, in execution order.
type NodeTiming = engine.NodeTiming

// Config controls how a model executes.
type Config struct {
	// Workers bounds operator and data parallelism. Zero means one
	// worker per CPU; one disables parallelism.
	Workers int
	// DisableInPlace turns off buffer reuse for unary operators.
	DisableInPlace bool
}

// Load parses an LGRF container and prepares it for execution with the
// default configuration.
func Load(data []byte) (*Model, error) {
	return LoadWithConfig(data, Config{})
}

// LoadWithConfig is Load with explicit execution settings.
func LoadWithConfig(data []byte, cfg Config) (*Model, error) {
	opts := model.Options{DisableInPlace: cfg.DisableInPlace}
	switch {
	case cfg.Workers == 1:
		opts.Pool = parallel.Serial()
	case cfg.Workers > 1:
		opts.Pool = parallel.New(cfg.Workers)
	}
	return model.New(data, opts)
}

// Load failure classes; test with errors.Is.
var (
	ErrMalformed     = model.ErrMalformed
	ErrVersion       = model.ErrVersion
	ErrUnsupportedOp = model.ErrUnsupportedOp
	ErrInvalidGraph  = model.ErrInvalidGraph
)

// LoadError is the error type returned by Load.
type LoadError = model.LoadError

// RunError is the error type returned by Model.Run.
type RunError = engine.RunError

// Run failure kinds.
const (
	InputMismatch = engine.InputMismatch
	UnknownOutput = engine.UnknownOutput
	KernelFailure = engine.KernelFailure
	Canceled      = engine.Canceled
)

// Builder assembles LGRF model bytes in memory; the write side of Load.
type Builder = model.Builder

// NewBuilder returns an empty model builder.
func NewBuilder() *Builder {
	return model.NewBuilder()
}

// Op identifies an operator kind.
type Op = ops.OpType

// Attr is one operator attribute; Attrs is an attribute list.
type (
	Attr  = ops.Attr
	Attrs = ops.Attrs
)

// OpByName resolves an operator by its LGRF name, e.g. "MatMul".
func OpByName(name string) (Op, bool) {
	return ops.FromName(name)
}

// Attribute constructors for use with Builder.Operator.
var (
	IntAttr    = ops.IntAttr
	FloatAttr  = ops.FloatAttr
	IntsAttr   = ops.IntsAttr
	FloatsAttr = ops.FloatsAttr
	StringAttr = ops.StringAttr
)

// VectorInfo describes the numeric tier compiled into this binary.
func VectorInfo() string {
	return ops.VectorInfo()
}
