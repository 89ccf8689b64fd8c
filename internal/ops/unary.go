// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	registerUnaryFloat(Relu, "Relu", func(x float32) float32 {
		if x < 0 {
			return 0
		}
		return x
	})
	registerUnaryFloat(Sigmoid, "Sigmoid", func(x float32) float32 {
		return float32(1 / (1 + math.Exp(float64(-x))))
	})
	registerUnaryFloat(Tanh, "Tanh", func(x float32) float32 {
		return float32(math.Tanh(float64(x)))
	})
	registerUnaryFloat(Sqrt, "Sqrt", func(x float32) float32 {
		return float32(math.Sqrt(float64(x)))
	})
	registerUnaryFloat(Exp, "Exp", func(x float32) float32 {
		return float32(math.Exp(float64(x)))
	})
	registerUnaryFloat(Log, "Log", func(x float32) float32 {
		return float32(math.Log(float64(x)))
	})
	registerUnaryFloat(Erf, "Erf", func(x float32) float32 {
		return float32(math.Erf(float64(x)))
	})
	registerUnaryFloat(Cos, "Cos", func(x float32) float32 {
		return float32(math.Cos(float64(x)))
	})
	registerUnaryFloat(Sin, "Sin", func(x float32) float32 {
		return float32(math.Sin(float64(x)))
	})

	// Neg and Abs also accept int32; negation of MinInt32 wraps.
	registerUnaryNumeric(Neg, "Neg",
		func(x float32) float32 { return -x },
		func(x int32) int32 { return -x })
	registerUnaryNumeric(Abs, "Abs",
		func(x float32) float32 { return float32(math.Abs(float64(x))) },
		func(x int32) int32 {
			if x < 0 {
				return -x
			}
			return x
		})

	register(Clip, Kernel{
		Name: "Clip", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferUnaryFloat(Clip),
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			return execUnaryFloat(Clip, clipFunc(attrs), in)
		},
		InPlace: func(ctx *Context, attrs Attrs, first *tensor.RawTensor, rest []*tensor.RawTensor) error {
			return inPlaceUnaryFloat(Clip, clipFunc(attrs), first)
		},
	})

	register(LeakyRelu, Kernel{
		Name: "LeakyRelu", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferUnaryFloat(LeakyRelu),
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			return execUnaryFloat(LeakyRelu, leakyReluFunc(attrs), in)
		},
		InPlace: func(ctx *Context, attrs Attrs, first *tensor.RawTensor, rest []*tensor.RawTensor) error {
			return inPlaceUnaryFloat(LeakyRelu, leakyReluFunc(attrs), first)
		},
	})

	register(Softmax, Kernel{
		Name: "Softmax", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferUnaryFloat(Softmax),
		Exec:  execSoftmax,
	})
}

func clipFunc(attrs Attrs) func(float32) float32 {
	minVal := attrs.Float("min", float32(math.Inf(-1)))
	maxVal := attrs.Float("max", float32(math.Inf(1)))
	return func(x float32) float32 {
		return min(max(x, minVal), maxVal)
	}
}

func leakyReluFunc(attrs Attrs) func(float32) float32 {
	alpha := attrs.Float("alpha", 0.01)
	return func(x float32) float32 {
		if x < 0 {
			return alpha * x
		}
		return x
	}
}

func inferUnaryFloat(op OpType) InferFunc {
	return func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
		if in[0].DType != tensor.Float32 {
			return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType)
		}
		return []TensorInfo{{DType: tensor.Float32, Shape: in[0].Shape.Clone()}}, nil
	}
}

func execUnaryFloat(op OpType, f func(float32) float32, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if in[0].DType() != tensor.Float32 {
		return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType())
	}
	out, err := tensor.NewRaw(in[0].Shape(), tensor.Float32)
	if err != nil {
		return nil, kernelErrf(op, "allocating output: %v", err)
	}
	src, dst := in[0].AsFloat32(), out.AsFloat32()
	for i := range src {
		dst[i] = f(src[i])
	}
	return []*tensor.RawTensor{out}, nil
}

func inPlaceUnaryFloat(op OpType, f func(float32) float32, t *tensor.RawTensor) error {
	if t.DType() != tensor.Float32 {
		return shapeErrf(op, "unsupported dtype %s", t.DType())
	}
	vals := t.AsFloat32()
	for i := range vals {
		vals[i] = f(vals[i])
	}
	return nil
}

func registerUnaryFloat(op OpType, name string, f func(float32) float32) {
	register(op, Kernel{
		Name: name, MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferUnaryFloat(op),
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			return execUnaryFloat(op, f, in)
		},
		InPlace: func(ctx *Context, attrs Attrs, first *tensor.RawTensor, rest []*tensor.RawTensor) error {
			return inPlaceUnaryFloat(op, f, first)
		},
	})
}

func registerUnaryNumeric(op OpType, name string, f32 func(float32) float32, i32 func(int32) int32) {
	register(op, Kernel{
		Name: name, MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
			if in[0].DType != tensor.Float32 && in[0].DType != tensor.Int32 {
				return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType)
			}
			return []TensorInfo{{DType: in[0].DType, Shape: in[0].Shape.Clone()}}, nil
		},
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			out, err := tensor.NewRaw(in[0].Shape(), in[0].DType())
			if err != nil {
				return nil, kernelErrf(op, "allocating output: %v", err)
			}
			switch in[0].DType() {
			case tensor.Float32:
				src, dst := in[0].AsFloat32(), out.AsFloat32()
				for i := range src {
					dst[i] = f32(src[i])
				}
			case tensor.Int32:
				src, dst := in[0].AsInt32(), out.AsInt32()
				for i := range src {
					dst[i] = i32(src[i])
				}
			default:
				return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType())
			}
			return []*tensor.RawTensor{out}, nil
		},
	})
}

// execSoftmax normalizes along the axis attribute (default: last axis).
// The max-subtraction pass keeps exp in range; the denominator uses the
// vectorized sum, which may reassociate additions relative to the
// portable tier.
func execSoftmax(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x := in[0]
	if x.DType() != tensor.Float32 {
		return nil, shapeErrf(Softmax, "unsupported dtype %s", x.DType())
	}
	shape := x.Shape()
	axis := int(attrs.Int("axis", int64(len(shape)-1)))
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis >= len(shape) {
		return nil, shapeErrf(Softmax, "axis %d out of range for rank %d", attrs.Int("axis", -1), len(shape))
	}

	out, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(Softmax, "allocating output: %v", err)
	}

	axisSize := shape[axis]
	inner := 1
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	outer := x.NumElements() / max(axisSize*inner, 1)

	src, dst := x.AsFloat32(), out.AsFloat32()
	ctx.Pool.For(outer, func(o int) {
		base := o * axisSize * inner
		for in0 := 0; in0 < inner; in0++ {
			maxVal := float32(math.Inf(-1))
			for k := 0; k < axisSize; k++ {
				if v := src[base+k*inner+in0]; v > maxVal {
					maxVal = v
				}
			}
			var sum float32
			for k := 0; k < axisSize; k++ {
				e := float32(math.Exp(float64(src[base+k*inner+in0] - maxVal)))
				dst[base+k*inner+in0] = e
				sum += e
			}
			for k := 0; k < axisSize; k++ {
				dst[base+k*inner+in0] /= sum
			}
		}
	})
	return []*tensor.RawTensor{out}, nil
}
