// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	register(QuantizeLinear, Kernel{
		Name: "QuantizeLinear", MinInputs: 2, MaxInputs: 3, Outputs: 1,
		Infer: inferQuantize,
		Exec:  execQuantize,
	})
	register(DequantizeLinear, Kernel{
		Name: "DequantizeLinear", MinInputs: 2, MaxInputs: 3, Outputs: 1,
		Infer: inferDequantize,
		Exec:  execDequantize,
	})
}

// Per-tensor quantization only: scale is a float32 scalar and the
// optional zero point a uint8 scalar.
func quantParams(op OpType, in []TensorInfo) error {
	if len(in[1].Shape) != 0 && in[1].Shape.NumElements() != 1 {
		return shapeErrf(op, "scale must be a scalar")
	}
	if in[1].DType != tensor.Float32 {
		return shapeErrf(op, "scale must be float32, got %s", in[1].DType)
	}
	if len(in) == 3 {
		if len(in[2].Shape) != 0 && in[2].Shape.NumElements() != 1 {
			return shapeErrf(op, "zero point must be a scalar")
		}
		if in[2].DType != tensor.Uint8 {
			return shapeErrf(op, "zero point must be uint8, got %s", in[2].DType)
		}
	}
	return nil
}

func inferQuantize(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[0].DType != tensor.Float32 {
		return nil, shapeErrf(QuantizeLinear, "input must be float32, got %s", in[0].DType)
	}
	if err := quantParams(QuantizeLinear, in); err != nil {
		return nil, err
	}
	return []TensorInfo{{DType: tensor.Uint8, Shape: in[0].Shape.Clone()}}, nil
}

// execQuantize computes round(x/scale) + zeroPoint with round-half-to-even
// and saturates to [0, 255].
func execQuantize(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	if _, err := inferQuantize(attrs, infos, nout); err != nil {
		return nil, err
	}
	scale := in[1].AsFloat32()[0]
	if scale == 0 {
		return nil, kernelErrf(QuantizeLinear, "scale must be non-zero")
	}
	var zp float64
	if len(in) == 3 {
		zp = float64(in[2].AsUint8()[0])
	}
	out, err := tensor.NewRaw(in[0].Shape(), tensor.Uint8)
	if err != nil {
		return nil, kernelErrf(QuantizeLinear, "allocating output: %v", err)
	}
	src, dst := in[0].AsFloat32(), out.AsUint8()
	for i, v := range src {
		q := math.RoundToEven(float64(v)/float64(scale)) + zp
		dst[i] = uint8(min(max(q, 0), 255))
	}
	return []*tensor.RawTensor{out}, nil
}

func inferDequantize(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[0].DType != tensor.Uint8 {
		return nil, shapeErrf(DequantizeLinear, "input must be uint8, got %s", in[0].DType)
	}
	if err := quantParams(DequantizeLinear, in); err != nil {
		return nil, err
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: in[0].Shape.Clone()}}, nil
}

func execDequantize(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	if _, err := inferDequantize(attrs, infos, nout); err != nil {
		return nil, err
	}
	scale := in[1].AsFloat32()[0]
	var zp int32
	if len(in) == 3 {
		zp = int32(in[2].AsUint8()[0])
	}
	out, err := tensor.NewRaw(in[0].Shape(), tensor.Float32)
	if err != nil {
		return nil, kernelErrf(DequantizeLinear, "allocating output: %v", err)
	}
	src, dst := in[0].AsUint8(), out.AsFloat32()
	for i, v := range src {
		dst[i] = float32(int32(v)-zp) * scale
	}
	return []*tensor.RawTensor{out}, nil
}
