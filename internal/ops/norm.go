// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	register(BatchNormalization, Kernel{
		Name: "BatchNormalization", MinInputs: 5, MaxInputs: 5, Outputs: 1,
		Infer: inferBatchNorm,
		Exec:  execBatchNorm,
	})
}

// Inputs are X, scale, bias, running mean, running variance. Only the
// inference form is supported: the statistics come from the model, never
// from the batch.
func inferBatchNorm(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	x := in[0]
	if x.DType != tensor.Float32 {
		return nil, shapeErrf(BatchNormalization, "unsupported dtype %s", x.DType)
	}
	if len(x.Shape) < 2 {
		return nil, shapeErrf(BatchNormalization, "input must have rank >= 2, got rank %d", len(x.Shape))
	}
	c := x.Shape[1]
	names := []string{"scale", "bias", "mean", "variance"}
	for i, name := range names {
		p := in[i+1]
		if p.DType != tensor.Float32 {
			return nil, shapeErrf(BatchNormalization, "%s must be float32, got %s", name, p.DType)
		}
		if len(p.Shape) != 1 || p.Shape[0] != c {
			return nil, shapeErrf(BatchNormalization, "%s must have shape [%d]", name, c)
		}
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: x.Shape.Clone()}}, nil
}

func execBatchNorm(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	if _, err := inferBatchNorm(attrs, infos, nout); err != nil {
		return nil, err
	}
	x := in[0]
	scale, bias := in[1].AsFloat32(), in[2].AsFloat32()
	mean, variance := in[3].AsFloat32(), in[4].AsFloat32()
	eps := attrs.Float("epsilon", 1e-5)

	shape := x.Shape()
	n, c := shape[0], shape[1]
	inner := 1
	for _, d := range shape[2:] {
		inner *= d
	}

	out, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(BatchNormalization, "allocating output: %v", err)
	}
	xv, ov := x.AsFloat32(), out.AsFloat32()

	// Fold scale/sqrt(var+eps) once per channel, then apply per element.
	ctx.Pool.For(n*c, func(nc int) {
		ch := nc % c
		a := scale[ch] / float32(math.Sqrt(float64(variance[ch]+eps)))
		b := bias[ch] - a*mean[ch]
		base := nc * inner
		for i := 0; i < inner; i++ {
			ov[base+i] = a*xv[base+i] + b
		}
	})
	return []*tensor.RawTensor{out}, nil
}
