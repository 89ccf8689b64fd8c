// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops implements the operator kernel library: for every supported
// operator there is one shape-inference function and one execution
// function, resolved through a single dispatch table built at init time.
// Kernels are pure: they never mutate their inputs (in-place variants are
// opt-in and invoked by the executor only when it owns the buffer).
package ops

import (
	"github.com/lattice-ml/lattice/internal/parallel"
	"github.com/lattice-ml/lattice/internal/tensor"
)

// OpType identifies an operator kind. The set is closed; adding an
// operator means adding a variant here plus its kernel registration,
// never touching the executor.
type OpType uint16

// Supported operators.
const (
	Add OpType = iota
	Sub
	Mul
	Div
	Pow
	Equal
	Less
	Where

	Relu
	LeakyRelu
	Sigmoid
	Tanh
	Sqrt
	Exp
	Log
	Erf
	Cos
	Sin
	Neg
	Abs
	Clip
	Softmax

	MatMul
	Gemm

	Conv
	MaxPool
	AveragePool
	GlobalAveragePool
	BatchNormalization
	Resize

	ReduceMean
	ReduceSum
	ReduceMax
	ReduceMin

	Reshape
	Transpose
	Squeeze
	Unsqueeze
	Concat
	Split
	Slice
	Gather
	Expand
	Shape
	Identity
	Pad
	ConstantOfShape
	Range
	Cast

	QuantizeLinear
	DequantizeLinear

	opCount
)

// TensorInfo describes a tensor for shape inference: its type, its shape,
// and, when statically or dynamically known, its value. Operators with
// data-dependent output shapes (Reshape, Slice, Expand, ...) read Value;
// it is nil when the value is not yet known, in which case inference for
// those operators is deferred to run time.
type TensorInfo struct {
	DType tensor.DataType
	Shape tensor.Shape
	Value *tensor.RawTensor
}

// Info builds a TensorInfo from a concrete tensor.
func Info(t *tensor.RawTensor) TensorInfo {
	return TensorInfo{DType: t.DType(), Shape: t.Shape(), Value: t}
}

// Context carries execution capabilities into kernels. Kernels parallelize
// internal loops through the pool; each parallel unit writes a disjoint
// output region.
type Context struct {
	Pool *parallel.Pool
}

// InferFunc predicts output types and shapes from input descriptions.
// nout is the number of outputs the graph declares for the node; most
// operators ignore it, variadic-output operators (Split) need it.
type InferFunc func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error)

// ExecFunc computes output tensors from input tensors. It must return
// tensors whose shapes match what InferFunc predicted for the same inputs.
type ExecFunc func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error)

// InPlaceFunc overwrites first with the operator's result. Only set for
// operators whose output aliases the first input elementwise.
type InPlaceFunc func(ctx *Context, attrs Attrs, first *tensor.RawTensor, rest []*tensor.RawTensor) error

// Kernel bundles the functions and arity constraints for one operator.
type Kernel struct {
	Name      string
	MinInputs int
	MaxInputs int // -1 = unbounded (Concat)
	Outputs   int // -1 = variable, taken from the node (Split)
	Infer     InferFunc
	Exec      ExecFunc
	InPlace   InPlaceFunc
}

var table [opCount]Kernel

func register(op OpType, k Kernel) {
	if table[op].Name != "" {
		panic("duplicate kernel registration: " + k.Name)
	}
	table[op] = k
}

// Lookup returns the kernel for op. ok is false for unknown opcodes, which
// the loader reports as unsupported-operator errors.
func Lookup(op OpType) (*Kernel, bool) {
	if op >= opCount || table[op].Name == "" {
		return nil, false
	}
	return &table[op], true
}

// String returns the operator's name, or a placeholder for unknown opcodes.
func (op OpType) String() string {
	if op < opCount && table[op].Name != "" {
		return table[op].Name
	}
	return "opcode(" + itoa(uint16(op)) + ")"
}

// FromName resolves an operator name to its OpType.
func FromName(name string) (OpType, bool) {
	for op := OpType(0); op < opCount; op++ {
		if table[op].Name == name {
			return op, true
		}
	}
	return 0, false
}

// Count returns the number of registered operators.
func Count() int {
	return int(opCount)
}

// CheckArity validates an input/output count against the kernel's declared
// arity. Used by the loader for static validation and by the executor
// before dispatch.
func (k *Kernel) CheckArity(nin, nout int) error {
	if nin < k.MinInputs || (k.MaxInputs >= 0 && nin > k.MaxInputs) {
		return &ShapeError{Op: k.Name, Detail: "wrong number of inputs: " + itoa(uint16(nin))}
	}
	if k.Outputs >= 0 && nout != k.Outputs {
		return &ShapeError{Op: k.Name, Detail: "wrong number of outputs: " + itoa(uint16(nout))}
	}
	return nil
}

// itoa avoids pulling strconv into the hot String path for tiny numbers.
func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
