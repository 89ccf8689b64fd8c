// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

// Layout operators. Reshape, Squeeze, Unsqueeze and Identity return views
// over the input buffer; everything else copies. Operators that take a
// runtime shape or index tensor (Reshape, Slice, Expand, ConstantOfShape,
// Range) report an unknown output shape (nil) from Infer when that tensor
// value is not yet available.

func init() {
	register(Reshape, Kernel{
		Name: "Reshape", MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferReshape,
		Exec:  execReshape,
	})
	register(Transpose, Kernel{
		Name: "Transpose", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferTranspose,
		Exec:  execTranspose,
	})
	register(Squeeze, Kernel{
		Name: "Squeeze", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferSqueeze,
		Exec:  viewExec(Squeeze, inferSqueeze),
	})
	register(Unsqueeze, Kernel{
		Name: "Unsqueeze", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferUnsqueeze,
		Exec:  viewExec(Unsqueeze, inferUnsqueeze),
	})
	register(Concat, Kernel{
		Name: "Concat", MinInputs: 1, MaxInputs: -1, Outputs: 1,
		Infer: inferConcat,
		Exec:  execConcat,
	})
	register(Split, Kernel{
		Name: "Split", MinInputs: 1, MaxInputs: 1, Outputs: -1,
		Infer: inferSplit,
		Exec:  execSplit,
	})
	register(Slice, Kernel{
		Name: "Slice", MinInputs: 3, MaxInputs: 4, Outputs: 1,
		Infer: inferSlice,
		Exec:  execSlice,
	})
	register(Gather, Kernel{
		Name: "Gather", MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferGather,
		Exec:  execGather,
	})
	register(Expand, Kernel{
		Name: "Expand", MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferExpand,
		Exec:  execExpand,
	})
	register(Shape, Kernel{
		Name: "Shape", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
			return []TensorInfo{{DType: tensor.Int32, Shape: tensor.Shape{len(in[0].Shape)}}}, nil
		},
		Exec: execShape,
	})
	register(Identity, Kernel{
		Name: "Identity", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
			return []TensorInfo{{DType: in[0].DType, Shape: in[0].Shape.Clone()}}, nil
		},
		Exec: func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
			v, err := in[0].View(in[0].Shape())
			if err != nil {
				return nil, kernelErrf(Identity, "%v", err)
			}
			return []*tensor.RawTensor{v}, nil
		},
	})
	register(Pad, Kernel{
		Name: "Pad", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferPad,
		Exec:  execPad,
	})
	register(ConstantOfShape, Kernel{
		Name: "ConstantOfShape", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferConstantOfShape,
		Exec:  execConstantOfShape,
	})
	register(Range, Kernel{
		Name: "Range", MinInputs: 3, MaxInputs: 3, Outputs: 1,
		Infer: inferRange,
		Exec:  execRange,
	})
	register(Cast, Kernel{
		Name: "Cast", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferCast,
		Exec:  execCast,
	})
}

// intsFrom reads a 1-D int32 tensor as []int.
func intsFrom(op OpType, t *tensor.RawTensor, name string) ([]int, error) {
	if t.DType() != tensor.Int32 {
		return nil, shapeErrf(op, "%s must be int32, got %s", name, t.DType())
	}
	if len(t.Shape()) > 1 {
		return nil, shapeErrf(op, "%s must have rank <= 1, got rank %d", name, len(t.Shape()))
	}
	vals := t.AsInt32()
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, nil
}

func viewExec(op OpType, infer InferFunc) ExecFunc {
	return func(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
		infos := make([]TensorInfo, len(in))
		for i, t := range in {
			infos[i] = Info(t)
		}
		predicted, err := infer(attrs, infos, nout)
		if err != nil {
			return nil, err
		}
		v, err := in[0].View(predicted[0].Shape)
		if err != nil {
			return nil, kernelErrf(op, "%v", err)
		}
		return []*tensor.RawTensor{v}, nil
	}
}

// resolveReshape expands a requested shape against the input element
// count. One entry may be -1 and is inferred from the rest.
func resolveReshape(want []int, numEl int) (tensor.Shape, error) {
	out := make(tensor.Shape, len(want))
	infer := -1
	known := 1
	for i, d := range want {
		switch {
		case d == -1:
			if infer != -1 {
				return nil, shapeErrf(Reshape, "at most one dimension may be -1")
			}
			infer = i
		case d < 0:
			return nil, shapeErrf(Reshape, "invalid dimension %d", d)
		default:
			known *= d
		}
		out[i] = d
	}
	if infer != -1 {
		if known == 0 || numEl%known != 0 {
			return nil, shapeErrf(Reshape, "cannot infer dimension: %d elements do not divide by %d", numEl, known)
		}
		out[infer] = numEl / known
	}
	if out.NumElements() != numEl {
		return nil, shapeErrf(Reshape, "shape %v does not match %d elements", out, numEl)
	}
	return out, nil
}

func inferReshape(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[1].Value == nil {
		return []TensorInfo{{DType: in[0].DType}}, nil
	}
	want, err := intsFrom(Reshape, in[1].Value, "shape input")
	if err != nil {
		return nil, err
	}
	shape, err := resolveReshape(want, in[0].Shape.NumElements())
	if err != nil {
		return nil, err
	}
	return []TensorInfo{{DType: in[0].DType, Shape: shape}}, nil
}

func execReshape(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	want, err := intsFrom(Reshape, in[1], "shape input")
	if err != nil {
		return nil, err
	}
	shape, err := resolveReshape(want, in[0].NumElements())
	if err != nil {
		return nil, err
	}
	v, err := in[0].View(shape)
	if err != nil {
		return nil, kernelErrf(Reshape, "%v", err)
	}
	return []*tensor.RawTensor{v}, nil
}

func transposePerm(attrs Attrs, rank int) ([]int, error) {
	perm := attrs.IntList("perm")
	if perm == nil {
		out := make([]int, rank)
		for i := range out {
			out[i] = rank - 1 - i
		}
		return out, nil
	}
	if len(perm) != rank {
		return nil, shapeErrf(Transpose, "perm has %d entries for rank %d", len(perm), rank)
	}
	seen := make([]bool, rank)
	out := make([]int, rank)
	for i, p := range perm {
		ax := int(p)
		if ax < 0 || ax >= rank || seen[ax] {
			return nil, shapeErrf(Transpose, "perm %v is not a permutation of rank %d", perm, rank)
		}
		seen[ax] = true
		out[i] = ax
	}
	return out, nil
}

func inferTranspose(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	perm, err := transposePerm(attrs, len(in[0].Shape))
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(perm))
	for i, p := range perm {
		shape[i] = in[0].Shape[p]
	}
	return []TensorInfo{{DType: in[0].DType, Shape: shape}}, nil
}

func execTranspose(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x := in[0]
	perm, err := transposePerm(attrs, len(x.Shape()))
	if err != nil {
		return nil, err
	}
	outShape := make(tensor.Shape, len(perm))
	for i, p := range perm {
		outShape[i] = x.Shape()[p]
	}
	out, err := tensor.NewRaw(outShape, x.DType())
	if err != nil {
		return nil, kernelErrf(Transpose, "allocating output: %v", err)
	}
	srcStrides := x.Shape().ComputeStrides()
	permStrides := make([]int, len(perm))
	for i, p := range perm {
		permStrides[i] = srcStrides[p]
	}
	outStrides := outShape.ComputeStrides()
	sz := x.DType().Size()
	src, dst := x.Data(), out.Data()
	for i := 0; i < x.NumElements(); i++ {
		j := flatIndex(i, outStrides, permStrides)
		copy(dst[i*sz:(i+1)*sz], src[j*sz:(j+1)*sz])
	}
	return []*tensor.RawTensor{out}, nil
}

func inferSqueeze(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	shape := in[0].Shape
	axes := attrs.IntList("axes")
	out := tensor.Shape{}
	if axes == nil {
		for _, d := range shape {
			if d != 1 {
				out = append(out, d)
			}
		}
		return []TensorInfo{{DType: in[0].DType, Shape: out}}, nil
	}
	drop := make([]bool, len(shape))
	for _, a := range axes {
		ax := int(a)
		if ax < 0 {
			ax += len(shape)
		}
		if ax < 0 || ax >= len(shape) {
			return nil, shapeErrf(Squeeze, "axis %d out of range for rank %d", a, len(shape))
		}
		if shape[ax] != 1 {
			return nil, shapeErrf(Squeeze, "axis %d has size %d, expected 1", a, shape[ax])
		}
		drop[ax] = true
	}
	for i, d := range shape {
		if !drop[i] {
			out = append(out, d)
		}
	}
	return []TensorInfo{{DType: in[0].DType, Shape: out}}, nil
}

func inferUnsqueeze(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	axes := attrs.IntList("axes")
	if len(axes) == 0 {
		return nil, shapeErrf(Unsqueeze, "axes attribute is required")
	}
	outRank := len(in[0].Shape) + len(axes)
	insert := make([]bool, outRank)
	for _, a := range axes {
		ax := int(a)
		if ax < 0 {
			ax += outRank
		}
		if ax < 0 || ax >= outRank {
			return nil, shapeErrf(Unsqueeze, "axis %d out of range for output rank %d", a, outRank)
		}
		if insert[ax] {
			return nil, shapeErrf(Unsqueeze, "duplicate axis %d", a)
		}
		insert[ax] = true
	}
	out := make(tensor.Shape, 0, outRank)
	si := 0
	for i := 0; i < outRank; i++ {
		if insert[i] {
			out = append(out, 1)
		} else {
			out = append(out, in[0].Shape[si])
			si++
		}
	}
	return []TensorInfo{{DType: in[0].DType, Shape: out}}, nil
}

func inferConcat(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	rank := len(in[0].Shape)
	axis := int(attrs.Int("axis", 0))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, shapeErrf(Concat, "axis %d out of range for rank %d", attrs.Int("axis", 0), rank)
	}
	out := in[0].Shape.Clone()
	for i, t := range in[1:] {
		if t.DType != in[0].DType {
			return nil, shapeErrf(Concat, "input %d dtype %s differs from %s", i+1, t.DType, in[0].DType)
		}
		if len(t.Shape) != rank {
			return nil, shapeErrf(Concat, "input %d rank %d differs from %d", i+1, len(t.Shape), rank)
		}
		for d := 0; d < rank; d++ {
			if d == axis {
				continue
			}
			if t.Shape[d] != out[d] {
				return nil, shapeErrf(Concat, "input %d dimension %d is %d, expected %d", i+1, d, t.Shape[d], out[d])
			}
		}
		out[axis] += t.Shape[axis]
	}
	return []TensorInfo{{DType: in[0].DType, Shape: out}}, nil
}

func execConcat(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	predicted, err := inferConcat(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	outShape := predicted[0].Shape
	rank := len(outShape)
	axis := int(attrs.Int("axis", 0))
	if axis < 0 {
		axis += rank
	}
	out, err := tensor.NewRaw(outShape, in[0].DType())
	if err != nil {
		return nil, kernelErrf(Concat, "allocating output: %v", err)
	}

	outer := 1
	for _, d := range outShape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range outShape[axis+1:] {
		inner *= d
	}
	sz := in[0].DType().Size()
	dst := out.Data()
	rowBytes := outShape[axis] * inner * sz
	off := 0
	for _, t := range in {
		src := t.Data()
		block := t.Shape()[axis] * inner * sz
		for o := 0; o < outer; o++ {
			copy(dst[o*rowBytes+off:], src[o*block:(o+1)*block])
		}
		off += block
	}
	return []*tensor.RawTensor{out}, nil
}

// splitSizes resolves the per-output sizes along the split axis. Without a
// split attribute the axis must divide evenly among the outputs.
func splitSizes(attrs Attrs, dim, nout int) ([]int, error) {
	if s := attrs.IntList("split"); s != nil {
		if len(s) != nout {
			return nil, shapeErrf(Split, "split has %d entries for %d outputs", len(s), nout)
		}
		sizes := make([]int, nout)
		total := 0
		for i, v := range s {
			if v < 0 {
				return nil, shapeErrf(Split, "split sizes must be non-negative")
			}
			sizes[i] = int(v)
			total += int(v)
		}
		if total != dim {
			return nil, shapeErrf(Split, "split sizes sum to %d, expected %d", total, dim)
		}
		return sizes, nil
	}
	if nout < 1 || dim%nout != 0 {
		return nil, shapeErrf(Split, "axis size %d does not divide evenly into %d outputs", dim, nout)
	}
	sizes := make([]int, nout)
	for i := range sizes {
		sizes[i] = dim / nout
	}
	return sizes, nil
}

func inferSplit(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	rank := len(in[0].Shape)
	axis := int(attrs.Int("axis", 0))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, shapeErrf(Split, "axis %d out of range for rank %d", attrs.Int("axis", 0), rank)
	}
	sizes, err := splitSizes(attrs, in[0].Shape[axis], nout)
	if err != nil {
		return nil, err
	}
	out := make([]TensorInfo, nout)
	for i, s := range sizes {
		shape := in[0].Shape.Clone()
		shape[axis] = s
		out[i] = TensorInfo{DType: in[0].DType, Shape: shape}
	}
	return out, nil
}

func execSplit(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x := in[0]
	predicted, err := inferSplit(attrs, []TensorInfo{Info(x)}, nout)
	if err != nil {
		return nil, err
	}
	rank := len(x.Shape())
	axis := int(attrs.Int("axis", 0))
	if axis < 0 {
		axis += rank
	}
	outer := 1
	for _, d := range x.Shape()[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range x.Shape()[axis+1:] {
		inner *= d
	}
	sz := x.DType().Size()
	src := x.Data()
	rowBytes := x.Shape()[axis] * inner * sz

	outs := make([]*tensor.RawTensor, nout)
	off := 0
	for i, info := range predicted {
		out, err := tensor.NewRaw(info.Shape, x.DType())
		if err != nil {
			for _, o := range outs[:i] {
				o.Release()
			}
			return nil, kernelErrf(Split, "allocating output: %v", err)
		}
		block := info.Shape[axis] * inner * sz
		dst := out.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*block:(o+1)*block], src[o*rowBytes+off:])
		}
		off += block
		outs[i] = out
	}
	return outs, nil
}

// sliceRanges resolves starts/ends/axes into per-dimension [start, end)
// ranges. Negative indices count from the end of the dimension; values
// are clamped to the dimension bounds.
func sliceRanges(shape tensor.Shape, starts, ends, axes []int) ([][2]int, error) {
	if len(starts) != len(ends) {
		return nil, shapeErrf(Slice, "starts and ends lengths differ: %d vs %d", len(starts), len(ends))
	}
	if axes == nil {
		axes = make([]int, len(starts))
		for i := range axes {
			axes[i] = i
		}
	} else if len(axes) != len(starts) {
		return nil, shapeErrf(Slice, "axes length %d differs from starts length %d", len(axes), len(starts))
	}
	ranges := make([][2]int, len(shape))
	for i, d := range shape {
		ranges[i] = [2]int{0, d}
	}
	for i, ax := range axes {
		if ax < 0 {
			ax += len(shape)
		}
		if ax < 0 || ax >= len(shape) {
			return nil, shapeErrf(Slice, "axis %d out of range for rank %d", axes[i], len(shape))
		}
		d := shape[ax]
		s, e := starts[i], ends[i]
		if s < 0 {
			s += d
		}
		if e < 0 {
			e += d
		}
		s = min(max(s, 0), d)
		e = min(max(e, 0), d)
		if e < s {
			e = s
		}
		ranges[ax] = [2]int{s, e}
	}
	return ranges, nil
}

func inferSlice(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[1].Value == nil || in[2].Value == nil || (len(in) == 4 && in[3].Value == nil) {
		return []TensorInfo{{DType: in[0].DType}}, nil
	}
	starts, err := intsFrom(Slice, in[1].Value, "starts")
	if err != nil {
		return nil, err
	}
	ends, err := intsFrom(Slice, in[2].Value, "ends")
	if err != nil {
		return nil, err
	}
	var axes []int
	if len(in) == 4 {
		if axes, err = intsFrom(Slice, in[3].Value, "axes"); err != nil {
			return nil, err
		}
	}
	ranges, err := sliceRanges(in[0].Shape, starts, ends, axes)
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(ranges))
	for i, r := range ranges {
		shape[i] = r[1] - r[0]
	}
	return []TensorInfo{{DType: in[0].DType, Shape: shape}}, nil
}

func execSlice(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	predicted, err := inferSlice(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	x := in[0]
	starts, _ := intsFrom(Slice, in[1], "starts")
	ends, _ := intsFrom(Slice, in[2], "ends")
	var axes []int
	if len(in) == 4 {
		axes, _ = intsFrom(Slice, in[3], "axes")
	}
	ranges, err := sliceRanges(x.Shape(), starts, ends, axes)
	if err != nil {
		return nil, err
	}
	outShape := predicted[0].Shape
	out, err := tensor.NewRaw(outShape, x.DType())
	if err != nil {
		return nil, kernelErrf(Slice, "allocating output: %v", err)
	}
	srcStrides := x.Shape().ComputeStrides()
	outStrides := outShape.ComputeStrides()
	base := 0
	for i, r := range ranges {
		base += r[0] * srcStrides[i]
	}
	sz := x.DType().Size()
	src, dst := x.Data(), out.Data()
	for i := 0; i < outShape.NumElements(); i++ {
		j := base + flatIndex(i, outStrides, srcStrides)
		copy(dst[i*sz:(i+1)*sz], src[j*sz:(j+1)*sz])
	}
	return []*tensor.RawTensor{out}, nil
}

func inferGather(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[1].DType != tensor.Int32 {
		return nil, shapeErrf(Gather, "indices must be int32, got %s", in[1].DType)
	}
	rank := len(in[0].Shape)
	axis := int(attrs.Int("axis", 0))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, shapeErrf(Gather, "axis %d out of range for rank %d", attrs.Int("axis", 0), rank)
	}
	shape := make(tensor.Shape, 0, rank-1+len(in[1].Shape))
	shape = append(shape, in[0].Shape[:axis]...)
	shape = append(shape, in[1].Shape...)
	shape = append(shape, in[0].Shape[axis+1:]...)
	return []TensorInfo{{DType: in[0].DType, Shape: shape}}, nil
}

func execGather(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x, idx := in[0], in[1]
	predicted, err := inferGather(attrs, []TensorInfo{Info(x), Info(idx)}, nout)
	if err != nil {
		return nil, err
	}
	rank := len(x.Shape())
	axis := int(attrs.Int("axis", 0))
	if axis < 0 {
		axis += rank
	}
	dim := x.Shape()[axis]
	out, err := tensor.NewRaw(predicted[0].Shape, x.DType())
	if err != nil {
		return nil, kernelErrf(Gather, "allocating output: %v", err)
	}
	outer := 1
	for _, d := range x.Shape()[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range x.Shape()[axis+1:] {
		inner *= d
	}
	sz := x.DType().Size()
	src, dst := x.Data(), out.Data()
	indices := idx.AsInt32()
	rowBytes := inner * sz
	for o := 0; o < outer; o++ {
		for ii, rawIdx := range indices {
			j := int(rawIdx)
			if j < 0 {
				j += dim
			}
			if j < 0 || j >= dim {
				return nil, kernelErrf(Gather, "index %d out of range for axis size %d", rawIdx, dim)
			}
			srcOff := (o*dim + j) * rowBytes
			dstOff := (o*len(indices) + ii) * rowBytes
			copy(dst[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
		}
	}
	return []*tensor.RawTensor{out}, nil
}

func inferExpand(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[1].Value == nil {
		return []TensorInfo{{DType: in[0].DType}}, nil
	}
	want, err := intsFrom(Expand, in[1].Value, "shape input")
	if err != nil {
		return nil, err
	}
	shape, err := tensor.BroadcastShapes(in[0].Shape, tensor.Shape(want))
	if err != nil {
		return nil, broadcastErr(Expand, err)
	}
	return []TensorInfo{{DType: in[0].DType, Shape: shape}}, nil
}

func execExpand(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x := in[0]
	want, err := intsFrom(Expand, in[1], "shape input")
	if err != nil {
		return nil, err
	}
	outShape, err := tensor.BroadcastShapes(x.Shape(), tensor.Shape(want))
	if err != nil {
		return nil, broadcastErr(Expand, err)
	}
	out, err := tensor.NewRaw(outShape, x.DType())
	if err != nil {
		return nil, kernelErrf(Expand, "allocating output: %v", err)
	}
	outStrides := outShape.ComputeStrides()
	srcStrides := broadcastStrides(x.Shape(), outShape)
	sz := x.DType().Size()
	src, dst := x.Data(), out.Data()
	for i := 0; i < outShape.NumElements(); i++ {
		j := flatIndex(i, outStrides, srcStrides)
		copy(dst[i*sz:(i+1)*sz], src[j*sz:(j+1)*sz])
	}
	return []*tensor.RawTensor{out}, nil
}

func execShape(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	shape := in[0].Shape()
	dims := make([]int32, len(shape))
	for i, d := range shape {
		dims[i] = int32(d)
	}
	out, err := tensor.FromSlice(dims, tensor.Shape{len(dims)})
	if err != nil {
		return nil, kernelErrf(Shape, "%v", err)
	}
	return []*tensor.RawTensor{out}, nil
}

// padWidths reads the pads attribute: rank leading widths then rank
// trailing widths.
func padWidths(attrs Attrs, rank int) ([]int, []int, error) {
	pads := attrs.IntList("pads")
	if len(pads) != 2*rank {
		return nil, nil, shapeErrf(Pad, "pads must have %d entries for rank %d, got %d", 2*rank, rank, len(pads))
	}
	before := make([]int, rank)
	after := make([]int, rank)
	for i := 0; i < rank; i++ {
		before[i], after[i] = int(pads[i]), int(pads[rank+i])
		if before[i] < 0 || after[i] < 0 {
			return nil, nil, shapeErrf(Pad, "pads must be non-negative")
		}
	}
	return before, after, nil
}

func inferPad(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	if in[0].DType != tensor.Float32 {
		return nil, shapeErrf(Pad, "unsupported dtype %s", in[0].DType)
	}
	before, after, err := padWidths(attrs, len(in[0].Shape))
	if err != nil {
		return nil, err
	}
	shape := in[0].Shape.Clone()
	for i := range shape {
		shape[i] += before[i] + after[i]
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: shape}}, nil
}

func execPad(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x := in[0]
	predicted, err := inferPad(attrs, []TensorInfo{Info(x)}, nout)
	if err != nil {
		return nil, err
	}
	before, _, _ := padWidths(attrs, len(x.Shape()))
	value := attrs.Float("value", 0)

	outShape := predicted[0].Shape
	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(Pad, "allocating output: %v", err)
	}
	dst := out.AsFloat32()
	if value != 0 {
		for i := range dst {
			dst[i] = value
		}
	}
	src := x.AsFloat32()
	srcStrides := x.Shape().ComputeStrides()
	outStrides := outShape.ComputeStrides()
	base := 0
	for i, b := range before {
		base += b * outStrides[i]
	}
	for i := range src {
		dst[base+flatIndex(i, srcStrides, outStrides)] = src[i]
	}
	return []*tensor.RawTensor{out}, nil
}

func constantOfShapeDType(attrs Attrs) (tensor.DataType, error) {
	dt := tensor.DataType(attrs.Int("dtype", int64(tensor.Float32)))
	if dt != tensor.Float32 && dt != tensor.Int32 {
		return 0, shapeErrf(ConstantOfShape, "unsupported dtype code %d", attrs.Int("dtype", -1))
	}
	return dt, nil
}

func inferConstantOfShape(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	dt, err := constantOfShapeDType(attrs)
	if err != nil {
		return nil, err
	}
	if in[0].Value == nil {
		return []TensorInfo{{DType: dt}}, nil
	}
	dims, err := intsFrom(ConstantOfShape, in[0].Value, "shape input")
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		return nil, shapeErrf(ConstantOfShape, "%v", err)
	}
	return []TensorInfo{{DType: dt, Shape: shape.Clone()}}, nil
}

func execConstantOfShape(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	dt, err := constantOfShapeDType(attrs)
	if err != nil {
		return nil, err
	}
	dims, err := intsFrom(ConstantOfShape, in[0], "shape input")
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		return nil, shapeErrf(ConstantOfShape, "%v", err)
	}
	out, err := tensor.NewRaw(shape.Clone(), dt)
	if err != nil {
		return nil, kernelErrf(ConstantOfShape, "allocating output: %v", err)
	}
	value := attrs.Float("value", 0)
	switch dt {
	case tensor.Float32:
		dst := out.AsFloat32()
		for i := range dst {
			dst[i] = value
		}
	case tensor.Int32:
		dst := out.AsInt32()
		v := int32(value)
		for i := range dst {
			dst[i] = v
		}
	}
	return []*tensor.RawTensor{out}, nil
}

func rangeCount(start, limit, delta float64) int {
	n := math.Ceil((limit - start) / delta)
	if n < 0 {
		return 0
	}
	return int(n)
}

func inferRange(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	dt := in[0].DType
	if dt != tensor.Float32 && dt != tensor.Int32 {
		return nil, shapeErrf(Range, "unsupported dtype %s", dt)
	}
	for i, t := range in {
		if t.DType != dt {
			return nil, shapeErrf(Range, "input %d dtype %s differs from %s", i, t.DType, dt)
		}
		if len(t.Shape) != 0 && t.Shape.NumElements() != 1 {
			return nil, shapeErrf(Range, "inputs must be scalars")
		}
	}
	if in[0].Value == nil || in[1].Value == nil || in[2].Value == nil {
		return []TensorInfo{{DType: dt}}, nil
	}
	start, limit, delta := scalarF64(in[0].Value), scalarF64(in[1].Value), scalarF64(in[2].Value)
	if delta == 0 {
		return nil, kernelErrf(Range, "delta must be non-zero")
	}
	return []TensorInfo{{DType: dt, Shape: tensor.Shape{rangeCount(start, limit, delta)}}}, nil
}

func scalarF64(t *tensor.RawTensor) float64 {
	switch t.DType() {
	case tensor.Float32:
		return float64(t.AsFloat32()[0])
	default:
		return float64(t.AsInt32()[0])
	}
}

func execRange(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := []TensorInfo{Info(in[0]), Info(in[1]), Info(in[2])}
	predicted, err := inferRange(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	dt := in[0].DType()
	out, err := tensor.NewRaw(predicted[0].Shape, dt)
	if err != nil {
		return nil, kernelErrf(Range, "allocating output: %v", err)
	}
	switch dt {
	case tensor.Float32:
		start, delta := in[0].AsFloat32()[0], in[2].AsFloat32()[0]
		dst := out.AsFloat32()
		for i := range dst {
			dst[i] = start + float32(i)*delta
		}
	case tensor.Int32:
		start, delta := in[0].AsInt32()[0], in[2].AsInt32()[0]
		dst := out.AsInt32()
		for i := range dst {
			dst[i] = start + int32(i)*delta
		}
	}
	return []*tensor.RawTensor{out}, nil
}

func castTarget(attrs Attrs) (tensor.DataType, error) {
	dt := tensor.DataType(attrs.Int("to", -1))
	if !dt.Valid() {
		return 0, shapeErrf(Cast, "invalid target dtype code %d", attrs.Int("to", -1))
	}
	return dt, nil
}

func inferCast(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	dt, err := castTarget(attrs)
	if err != nil {
		return nil, err
	}
	return []TensorInfo{{DType: dt, Shape: in[0].Shape.Clone()}}, nil
}

// execCast converts element-wise. Float to integer truncates toward zero;
// casts to bool test against zero; bool casts to 0 or 1.
func execCast(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	to, err := castTarget(attrs)
	if err != nil {
		return nil, err
	}
	x := in[0]
	if x.DType() == to {
		v, err := x.View(x.Shape())
		if err != nil {
			return nil, kernelErrf(Cast, "%v", err)
		}
		return []*tensor.RawTensor{v}, nil
	}
	out, err := tensor.NewRaw(x.Shape(), to)
	if err != nil {
		return nil, kernelErrf(Cast, "allocating output: %v", err)
	}
	n := x.NumElements()
	get := castReader(x)
	switch to {
	case tensor.Float32:
		dst := out.AsFloat32()
		for i := 0; i < n; i++ {
			dst[i] = float32(get(i))
		}
	case tensor.Int32:
		dst := out.AsInt32()
		for i := 0; i < n; i++ {
			dst[i] = int32(math.Trunc(get(i)))
		}
	case tensor.Uint8:
		dst := out.AsUint8()
		for i := 0; i < n; i++ {
			dst[i] = uint8(int64(math.Trunc(get(i))))
		}
	case tensor.Bool:
		dst := out.AsBool()
		for i := 0; i < n; i++ {
			dst[i] = get(i) != 0
		}
	}
	return []*tensor.RawTensor{out}, nil
}

// castReader returns an accessor that widens any element to float64.
// Truncation toward zero happens in the integer target branches.
func castReader(t *tensor.RawTensor) func(int) float64 {
	switch t.DType() {
	case tensor.Float32:
		v := t.AsFloat32()
		return func(i int) float64 { return float64(v[i]) }
	case tensor.Int32:
		v := t.AsInt32()
		return func(i int) float64 { return float64(v[i]) }
	case tensor.Uint8:
		v := t.AsUint8()
		return func(i int) float64 { return float64(v[i]) }
	default:
		v := t.AsBool()
		return func(i int) float64 {
			if v[i] {
				return 1
			}
			return 0
		}
	}
}
