// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	registerReduce(ReduceMean, "ReduceMean")
	registerReduce(ReduceSum, "ReduceSum")
	registerReduce(ReduceMax, "ReduceMax")
	registerReduce(ReduceMin, "ReduceMin")
}

func registerReduce(op OpType, name string) {
	register(op, Kernel{
		Name: name, MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferReduce(op),
		Exec:  execReduce(op),
	})
}

// resolveAxes normalizes the axes attribute: negative axes count from the
// end, an absent attribute means all axes. The result is a sorted bitmask.
func resolveAxes(op OpType, attrs Attrs, rank int) ([]bool, error) {
	reduced := make([]bool, rank)
	axes := attrs.IntList("axes")
	if axes == nil {
		for i := range reduced {
			reduced[i] = true
		}
		return reduced, nil
	}
	for _, a := range axes {
		ax := int(a)
		if ax < 0 {
			ax += rank
		}
		if ax < 0 || ax >= rank {
			return nil, shapeErrf(op, "axis %d out of range for rank %d", a, rank)
		}
		if reduced[ax] {
			return nil, shapeErrf(op, "duplicate axis %d", a)
		}
		reduced[ax] = true
	}
	return reduced, nil
}

func reducedShape(shape tensor.Shape, reduced []bool, keepDims bool) tensor.Shape {
	out := tensor.Shape{}
	for i, d := range shape {
		switch {
		case !reduced[i]:
			out = append(out, d)
		case keepDims:
			out = append(out, 1)
		}
	}
	return out
}

func inferReduce(op OpType) InferFunc {
	return func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
		if in[0].DType != tensor.Float32 {
			return nil, shapeErrf(op, "unsupported dtype %s", in[0].DType)
		}
		reduced, err := resolveAxes(op, attrs, len(in[0].Shape))
		if err != nil {
			return nil, err
		}
		keep := attrs.Int("keepdims", 1) != 0
		return []TensorInfo{{DType: tensor.Float32, Shape: reducedShape(in[0].Shape, reduced, keep)}}, nil
	}
}

// execReduce walks the output positions and accumulates the reduced slice
// for each. The common trailing-axes case reduces a contiguous run and
// uses vecSum (reassociating on the vectorized tier); the general case
// strides through the input.
func execReduce(op OpType) ExecFunc {
	return func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
		x := in[0]
		predicted, err := inferReduce(op)(attrs, []TensorInfo{Info(x)}, nout)
		if err != nil {
			return nil, err
		}
		shape := x.Shape()
		reduced, _ := resolveAxes(op, attrs, len(shape))

		reduceCount := 1
		for i, d := range shape {
			if reduced[i] {
				reduceCount *= d
			}
		}
		if reduceCount == 0 {
			return nil, kernelErrf(op, "cannot reduce over an empty axis")
		}

		out, err := tensor.NewRaw(predicted[0].Shape, tensor.Float32)
		if err != nil {
			return nil, kernelErrf(op, "allocating output: %v", err)
		}
		src, dst := x.AsFloat32(), out.AsFloat32()

		if contiguousTail(reduced) {
			ctx.Pool.For(len(dst), func(o int) {
				dst[o] = reduceRun(op, src[o*reduceCount:(o+1)*reduceCount])
			})
			return []*tensor.RawTensor{out}, nil
		}

		// Strided case: enumerate kept and reduced index spaces separately.
		strides := shape.ComputeStrides()
		var keptDims, keptStrides, redDims, redStrides []int
		for i, d := range shape {
			if reduced[i] {
				redDims = append(redDims, d)
				redStrides = append(redStrides, strides[i])
			} else {
				keptDims = append(keptDims, d)
				keptStrides = append(keptStrides, strides[i])
			}
		}
		buf := make([]float32, reduceCount)
		for o := range dst {
			base := composeIndex(o, keptDims, keptStrides)
			for r := 0; r < reduceCount; r++ {
				buf[r] = src[base+composeIndex(r, redDims, redStrides)]
			}
			dst[o] = reduceRun(op, buf)
		}
		return []*tensor.RawTensor{out}, nil
	}
}

// contiguousTail reports whether the reduced axes form a suffix of the
// shape, so each output element reduces one contiguous run.
func contiguousTail(reduced []bool) bool {
	seen := false
	for _, r := range reduced {
		if r {
			seen = true
		} else if seen {
			return false
		}
	}
	return seen
}

// composeIndex converts a flat index over dims into a flat source offset
// using the matching strides.
func composeIndex(i int, dims, strides []int) int {
	idx := 0
	for d := len(dims) - 1; d >= 0; d-- {
		idx += (i % dims[d]) * strides[d]
		i /= dims[d]
	}
	return idx
}

func reduceRun(op OpType, vals []float32) float32 {
	switch op {
	case ReduceSum:
		return vecSum(vals)
	case ReduceMean:
		return vecSum(vals) / float32(len(vals))
	case ReduceMax:
		m := float32(math.Inf(-1))
		for _, v := range vals {
			if v > m {
				m = v
			}
		}
		return m
	default: // ReduceMin
		m := float32(math.Inf(1))
		for _, v := range vals {
			if v < m {
				m = v
			}
		}
		return m
	}
}
