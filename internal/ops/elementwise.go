// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

// Integer semantics for this family: int32 Add/Sub/Mul wrap (two's
// complement); int32 Div rejects a zero divisor with a KernelError.
// Float kernels follow IEEE-754 (division by zero produces ±Inf).

func init() {
	registerArith(Add, func(a, b float32) float32 { return a + b }, func(a, b int32) int32 { return a + b }, vecAdd)
	registerArith(Sub, func(a, b float32) float32 { return a - b }, func(a, b int32) int32 { return a - b }, vecSub)
	registerArith(Mul, func(a, b float32) float32 { return a * b }, func(a, b int32) int32 { return a * b }, vecMul)
	registerArith(Div, func(a, b float32) float32 { return a / b }, nil, vecDiv)

	register(Pow, Kernel{
		Name: "Pow", MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferBroadcastPair(Pow, tensor.Float32),
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			out, err := broadcastOutput(Pow, in[0], in[1], in[0].DType())
			if err != nil {
				return nil, err
			}
			binaryEval(in[0], in[1], out, func(a, b float32) float32 {
				return float32(math.Pow(float64(a), float64(b)))
			})
			return []*tensor.RawTensor{out}, nil
		},
	})

	registerCompare(Equal, func(a, b float32) bool { return a == b }, func(a, b int32) bool { return a == b })
	registerCompare(Less, func(a, b float32) bool { return a < b }, func(a, b int32) bool { return a < b })

	register(Where, Kernel{
		Name: "Where", MinInputs: 3, MaxInputs: 3, Outputs: 1,
		Infer: inferWhere,
		Exec:  execWhere,
	})
}

// broadcastStrides returns per-output-dimension element strides into a
// source of shape src broadcast to shape out; broadcast dimensions get
// stride 0 so the same source element repeats.
func broadcastStrides(src, out tensor.Shape) []int {
	srcStrides := src.ComputeStrides()
	strides := make([]int, len(out))
	offset := len(out) - len(src)
	for i := range out {
		if i < offset {
			continue
		}
		if src[i-offset] == 1 && out[i] != 1 {
			continue
		}
		strides[i] = srcStrides[i-offset]
	}
	return strides
}

// flatIndex maps a flat output index to a flat source index by decomposing
// it against the output strides and recomposing with the source strides.
func flatIndex(i int, outStrides, srcStrides []int) int {
	idx := 0
	for d := range outStrides {
		q := i / outStrides[d]
		i -= q * outStrides[d]
		idx += q * srcStrides[d]
	}
	return idx
}

func binaryEval[T tensor.Element](a, b, out *tensor.RawTensor, f func(T, T) T) {
	av, bv, ov := tensor.Values[T](a), tensor.Values[T](b), tensor.Values[T](out)
	if a.Shape().Equal(b.Shape()) {
		for i := range ov {
			ov[i] = f(av[i], bv[i])
		}
		return
	}
	outStrides := out.Shape().ComputeStrides()
	as := broadcastStrides(a.Shape(), out.Shape())
	bs := broadcastStrides(b.Shape(), out.Shape())
	for i := range ov {
		ov[i] = f(av[flatIndex(i, outStrides, as)], bv[flatIndex(i, outStrides, bs)])
	}
}

func binaryCmp[T tensor.Element](a, b, out *tensor.RawTensor, f func(T, T) bool) {
	av, bv := tensor.Values[T](a), tensor.Values[T](b)
	ov := out.AsBool()
	if a.Shape().Equal(b.Shape()) {
		for i := range ov {
			ov[i] = f(av[i], bv[i])
		}
		return
	}
	outStrides := out.Shape().ComputeStrides()
	as := broadcastStrides(a.Shape(), out.Shape())
	bs := broadcastStrides(b.Shape(), out.Shape())
	for i := range ov {
		ov[i] = f(av[flatIndex(i, outStrides, as)], bv[flatIndex(i, outStrides, bs)])
	}
}

// inferBroadcastPair checks a two-input broadcast operator. want restricts
// the input dtype; pass the zero DataType sentinel anyDType to accept
// float32 and int32.
const anyDType = tensor.DataType(0xFF)

func inferBroadcastPair(op OpType, want tensor.DataType) InferFunc {
	return func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
		if in[0].DType != in[1].DType {
			return nil, shapeErrf(op, "input dtypes differ: %s vs %s", in[0].DType, in[1].DType)
		}
		if want != anyDType && in[0].DType != want {
			return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType)
		}
		if want == anyDType && in[0].DType != tensor.Float32 && in[0].DType != tensor.Int32 {
			return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType)
		}
		shape, err := tensor.BroadcastShapes(in[0].Shape, in[1].Shape)
		if err != nil {
			return nil, broadcastErr(op, err)
		}
		return []TensorInfo{{DType: in[0].DType, Shape: shape}}, nil
	}
}

func broadcastOutput(op OpType, a, b *tensor.RawTensor, dt tensor.DataType) (*tensor.RawTensor, error) {
	shape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, broadcastErr(op, err)
	}
	out, err := tensor.NewRaw(shape, dt)
	if err != nil {
		return nil, kernelErrf(op, "allocating output: %v", err)
	}
	return out, nil
}

func registerArith(op OpType, f32 func(float32, float32) float32, i32 func(int32, int32) int32, fast func(dst, a, b []float32)) {
	name := map[OpType]string{Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div"}[op]
	register(op, Kernel{
		Name: name, MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferBroadcastPair(op, anyDType),
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			a, b := in[0], in[1]
			if a.DType() != b.DType() {
				return nil, shapeErrf(op, "input dtypes differ: %s vs %s", a.DType(), b.DType())
			}
			out, err := broadcastOutput(op, a, b, a.DType())
			if err != nil {
				return nil, err
			}
			switch a.DType() {
			case tensor.Float32:
				if a.Shape().Equal(b.Shape()) {
					fast(out.AsFloat32(), a.AsFloat32(), b.AsFloat32())
				} else {
					binaryEval(a, b, out, f32)
				}
			case tensor.Int32:
				if op == Div {
					for _, v := range b.AsInt32() {
						if v == 0 {
							return nil, kernelErrf(op, "integer division by zero")
						}
					}
					binaryEval(a, b, out, func(x, y int32) int32 { return x / y })
				} else {
					binaryEval(a, b, out, i32)
				}
			default:
				return nil, shapeErrf(op, "unsupported dtype %s", a.DType())
			}
			return []*tensor.RawTensor{out}, nil
		},
	})
}

func registerCompare(op OpType, f32 func(float32, float32) bool, i32 func(int32, int32) bool) {
	name := map[OpType]string{Equal: "Equal", Less: "Less"}[op]
	register(op, Kernel{
		Name: name, MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
			out, err := inferBroadcastPair(op, anyDType)(attrs, in, nout)
			if err != nil {
				return nil, err
			}
			out[0].DType = tensor.Bool
			return out, nil
		},
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			a, b := in[0], in[1]
			if a.DType() != b.DType() {
				return nil, shapeErrf(op, "input dtypes differ: %s vs %s", a.DType(), b.DType())
			}
			out, err := broadcastOutput(op, a, b, tensor.Bool)
			if err != nil {
				return nil, err
			}
			switch a.DType() {
			case tensor.Float32:
				binaryCmp(a, b, out, f32)
			case tensor.Int32:
				binaryCmp(a, b, out, i32)
			default:
				return nil, shapeErrf(op, "unsupported dtype %s", a.DType())
			}
			return []*tensor.RawTensor{out}, nil
		},
	})
}

func inferWhere(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[0].DType != tensor.Bool {
		return nil, shapeErrf(Where, "condition must be bool, got %s", in[0].DType)
	}
	if in[1].DType != in[2].DType {
		return nil, shapeErrf(Where, "branch dtypes differ: %s vs %s", in[1].DType, in[2].DType)
	}
	shape, err := tensor.BroadcastShapes(in[1].Shape, in[2].Shape)
	if err != nil {
		return nil, broadcastErr(Where, err)
	}
	shape, err = tensor.BroadcastShapes(in[0].Shape, shape)
	if err != nil {
		return nil, broadcastErr(Where, err)
	}
	return []TensorInfo{{DType: in[1].DType, Shape: shape}}, nil
}

func execWhere(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	cond, x, y := in[0], in[1], in[2]
	infos := []TensorInfo{Info(cond), Info(x), Info(y)}
	predicted, err := inferWhere(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(predicted[0].Shape, x.DType())
	if err != nil {
		return nil, kernelErrf(Where, "allocating output: %v", err)
	}
	switch x.DType() {
	case tensor.Float32:
		whereEval[float32](cond, x, y, out)
	case tensor.Int32:
		whereEval[int32](cond, x, y, out)
	case tensor.Uint8:
		whereEval[uint8](cond, x, y, out)
	case tensor.Bool:
		whereEval[bool](cond, x, y, out)
	}
	return []*tensor.RawTensor{out}, nil
}

func whereEval[T tensor.Element](cond, x, y, out *tensor.RawTensor) {
	cv := cond.AsBool()
	xv, yv, ov := tensor.Values[T](x), tensor.Values[T](y), tensor.Values[T](out)
	outStrides := out.Shape().ComputeStrides()
	cs := broadcastStrides(cond.Shape(), out.Shape())
	xs := broadcastStrides(x.Shape(), out.Shape())
	ys := broadcastStrides(y.Shape(), out.Shape())
	for i := range ov {
		if cv[flatIndex(i, outStrides, cs)] {
			ov[i] = xv[flatIndex(i, outStrides, xs)]
		} else {
			ov[i] = yv[flatIndex(i, outStrides, ys)]
		}
	}
}
