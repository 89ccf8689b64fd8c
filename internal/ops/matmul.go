// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	register(MatMul, Kernel{
		Name: "MatMul", MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferMatMul,
		Exec:  execMatMul,
	})
	register(Gemm, Kernel{
		Name: "Gemm", MinInputs: 2, MaxInputs: 3, Outputs: 1,
		Infer: inferGemm,
		Exec:  execGemm,
	})
}

// gemmF32 computes dst += a @ b for row-major [m,k] x [k,n]. dst must be
// zero-initialized. The row-times-scalar (axpy) formulation accumulates
// each output element in the same k order on both numeric tiers, so
// MatMul is bit-identical between builds.
func gemmF32(ctx *Context, dst, a, b []float32, m, k, n int) {
	ctx.Pool.For(m, func(i int) {
		row := dst[i*n : (i+1)*n]
		arow := a[i*k : (i+1)*k]
		for kk := 0; kk < k; kk++ {
			vecAxpy(row, b[kk*n:(kk+1)*n], arow[kk])
		}
	})
}

// matMulDims resolves the batch/matrix dimensions for MatMul operands of
// rank 2 or 3; rank-3 batches must match (or one operand is rank 2 and is
// shared across the batch).
func matMulDims(aShape, bShape tensor.Shape) (batch, m, k, n int, outShape tensor.Shape, err error) {
	ra, rb := len(aShape), len(bShape)
	if ra != 2 && ra != 3 || rb != 2 && rb != 3 {
		return 0, 0, 0, 0, nil, shapeErrf(MatMul, "inputs must have rank 2 or 3, got %d and %d", ra, rb)
	}
	m, k = aShape[ra-2], aShape[ra-1]
	kb, n := bShape[rb-2], bShape[rb-1]
	if k != kb {
		return 0, 0, 0, 0, nil, shapeErrf(MatMul, "inner dimensions do not match: %d vs %d", k, kb)
	}
	batch = 1
	switch {
	case ra == 3 && rb == 3:
		if aShape[0] != bShape[0] {
			return 0, 0, 0, 0, nil, shapeErrf(MatMul, "batch dimensions do not match: %d vs %d", aShape[0], bShape[0])
		}
		batch = aShape[0]
		outShape = tensor.Shape{batch, m, n}
	case ra == 3:
		batch = aShape[0]
		outShape = tensor.Shape{batch, m, n}
	case rb == 3:
		batch = bShape[0]
		outShape = tensor.Shape{batch, m, n}
	default:
		outShape = tensor.Shape{m, n}
	}
	return batch, m, k, n, outShape, nil
}

func inferMatMul(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[0].DType != tensor.Float32 || in[1].DType != tensor.Float32 {
		return nil, shapeErrf(MatMul, "unsupported dtypes %s, %s", in[0].DType, in[1].DType)
	}
	_, _, _, _, outShape, err := matMulDims(in[0].Shape, in[1].Shape)
	if err != nil {
		return nil, err
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: outShape}}, nil
}

func execMatMul(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	a, b := in[0], in[1]
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		return nil, shapeErrf(MatMul, "unsupported dtypes %s, %s", a.DType(), b.DType())
	}
	batch, m, k, n, outShape, err := matMulDims(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(MatMul, "allocating output: %v", err)
	}
	av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	for bi := 0; bi < batch; bi++ {
		as := av
		if len(a.Shape()) == 3 {
			as = av[bi*m*k : (bi+1)*m*k]
		}
		bs := bv
		if len(b.Shape()) == 3 {
			bs = bv[bi*k*n : (bi+1)*k*n]
		}
		gemmF32(ctx, ov[bi*m*n:(bi+1)*m*n], as, bs, m, k, n)
	}
	return []*tensor.RawTensor{out}, nil
}

func transpose2D(src []float32, rows, cols int) []float32 {
	dst := make([]float32, len(src))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return dst
}

func gemmOperand(shape tensor.Shape, trans bool) (rows, cols int, err error) {
	if len(shape) != 2 {
		return 0, 0, shapeErrf(Gemm, "inputs must be rank 2, got rank %d", len(shape))
	}
	if trans {
		return shape[1], shape[0], nil
	}
	return shape[0], shape[1], nil
}

func inferGemm(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[0].DType != tensor.Float32 || in[1].DType != tensor.Float32 {
		return nil, shapeErrf(Gemm, "unsupported dtypes %s, %s", in[0].DType, in[1].DType)
	}
	m, k, err := gemmOperand(in[0].Shape, attrs.Int("transA", 0) != 0)
	if err != nil {
		return nil, err
	}
	kb, n, err := gemmOperand(in[1].Shape, attrs.Int("transB", 0) != 0)
	if err != nil {
		return nil, err
	}
	if k != kb {
		return nil, shapeErrf(Gemm, "inner dimensions do not match: %d vs %d", k, kb)
	}
	if len(in) == 3 {
		if _, err := tensor.BroadcastShapes(in[2].Shape, tensor.Shape{m, n}); err != nil {
			return nil, broadcastErr(Gemm, err)
		}
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: tensor.Shape{m, n}}}, nil
}

// execGemm computes alpha * A' @ B' + beta * C. Transposed operands are
// materialized before the multiply; the multiply itself shares MatMul's
// accumulation order, so only the transpose copies add cost.
func execGemm(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	predicted, err := inferGemm(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	outShape := predicted[0].Shape
	m, n := outShape[0], outShape[1]

	alpha := attrs.Float("alpha", 1)
	beta := attrs.Float("beta", 1)

	av := in[0].AsFloat32()
	if attrs.Int("transA", 0) != 0 {
		av = transpose2D(av, in[0].Shape()[0], in[0].Shape()[1])
	}
	bv := in[1].AsFloat32()
	if attrs.Int("transB", 0) != 0 {
		bv = transpose2D(bv, in[1].Shape()[0], in[1].Shape()[1])
	}
	// k comes from the operand shape, not len/m: m may legitimately be 0.
	_, k, _ := gemmOperand(in[0].Shape(), attrs.Int("transA", 0) != 0)

	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(Gemm, "allocating output: %v", err)
	}
	ov := out.AsFloat32()
	gemmF32(ctx, ov, av, bv, m, k, n)
	if alpha != 1 {
		for i := range ov {
			ov[i] *= alpha
		}
	}
	if len(in) == 3 && beta != 0 {
		c := in[2]
		outStrides := outShape.ComputeStrides()
		cs := broadcastStrides(c.Shape(), outShape)
		cv := c.AsFloat32()
		for i := range ov {
			ov[i] += beta * cv[flatIndex(i, outStrides, cs)]
		}
	}
	return []*tensor.RawTensor{out}, nil
}
