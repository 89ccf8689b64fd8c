// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	register(Conv, Kernel{
		Name: "Conv", MinInputs: 2, MaxInputs: 3, Outputs: 1,
		Infer: inferConv,
		Exec:  execConv,
	})
	register(MaxPool, Kernel{
		Name: "MaxPool", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferPool(MaxPool),
		Exec:  execMaxPool,
	})
	register(AveragePool, Kernel{
		Name: "AveragePool", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferPool(AveragePool),
		Exec:  execAveragePool,
	})
	register(GlobalAveragePool, Kernel{
		Name: "GlobalAveragePool", MinInputs: 1, MaxInputs: 1, Outputs: 1,
		Infer: inferGlobalAveragePool,
		Exec:  execGlobalAveragePool,
	})
}

// conv2DParams holds the resolved spatial attributes shared by Conv and
// the pooling operators. Pads follow the [top, left, bottom, right]
// convention.
type conv2DParams struct {
	strideH, strideW int
	padT, padL       int
	padB, padR       int
	dilH, dilW       int
}

func spatialAttrs(op OpType, attrs Attrs) (conv2DParams, error) {
	p := conv2DParams{strideH: 1, strideW: 1, dilH: 1, dilW: 1}
	if s := attrs.IntList("strides"); s != nil {
		if len(s) != 2 {
			return p, shapeErrf(op, "strides must have 2 entries, got %d", len(s))
		}
		p.strideH, p.strideW = int(s[0]), int(s[1])
	}
	if pads := attrs.IntList("pads"); pads != nil {
		if len(pads) != 4 {
			return p, shapeErrf(op, "pads must have 4 entries, got %d", len(pads))
		}
		p.padT, p.padL, p.padB, p.padR = int(pads[0]), int(pads[1]), int(pads[2]), int(pads[3])
	}
	if d := attrs.IntList("dilations"); d != nil {
		if len(d) != 2 {
			return p, shapeErrf(op, "dilations must have 2 entries, got %d", len(d))
		}
		p.dilH, p.dilW = int(d[0]), int(d[1])
	}
	if p.strideH < 1 || p.strideW < 1 || p.dilH < 1 || p.dilW < 1 {
		return p, shapeErrf(op, "strides and dilations must be positive")
	}
	if p.padT < 0 || p.padL < 0 || p.padB < 0 || p.padR < 0 {
		return p, shapeErrf(op, "pads must be non-negative")
	}
	return p, nil
}

func convOutSize(in, kernel, pad0, pad1, stride, dilation int) int {
	effective := dilation*(kernel-1) + 1
	return (in+pad0+pad1-effective)/stride + 1
}

func inferConv(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	x, w := in[0], in[1]
	if x.DType != tensor.Float32 || w.DType != tensor.Float32 {
		return nil, shapeErrf(Conv, "unsupported dtypes %s, %s", x.DType, w.DType)
	}
	if len(x.Shape) != 4 {
		return nil, shapeErrf(Conv, "input must have rank 4 (NCHW), got rank %d", len(x.Shape))
	}
	if len(w.Shape) != 4 {
		return nil, shapeErrf(Conv, "weight must have rank 4, got rank %d", len(w.Shape))
	}
	p, err := spatialAttrs(Conv, attrs)
	if err != nil {
		return nil, err
	}
	group := int(attrs.Int("group", 1))
	if group < 1 {
		return nil, shapeErrf(Conv, "group must be positive, got %d", group)
	}
	n, c, h, wd := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	m, wc, kh, kw := w.Shape[0], w.Shape[1], w.Shape[2], w.Shape[3]
	if c%group != 0 || m%group != 0 {
		return nil, shapeErrf(Conv, "channels %d and filters %d must be divisible by group %d", c, m, group)
	}
	if wc != c/group {
		return nil, shapeErrf(Conv, "weight channel dim %d does not match input channels %d / group %d", wc, c, group)
	}
	if len(in) == 3 {
		if in[2].DType != tensor.Float32 {
			return nil, shapeErrf(Conv, "bias must be float32, got %s", in[2].DType)
		}
		if len(in[2].Shape) != 1 || in[2].Shape[0] != m {
			return nil, shapeErrf(Conv, "bias must have shape [%d]", m)
		}
	}
	outH := convOutSize(h, kh, p.padT, p.padB, p.strideH, p.dilH)
	outW := convOutSize(wd, kw, p.padL, p.padR, p.strideW, p.dilW)
	if outH < 1 || outW < 1 {
		return nil, shapeErrf(Conv, "kernel [%d %d] does not fit input [%d %d] with the given padding", kh, kw, h, wd)
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: tensor.Shape{n, m, outH, outW}}}, nil
}

// execConv lowers each (image, group) pair to an im2col patch matrix with
// one contiguous row per output position, then takes a vecDot per
// (filter, position). The dot reassociates additions on the vectorized
// tier.
func execConv(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	predicted, err := inferConv(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	outShape := predicted[0].Shape
	p, _ := spatialAttrs(Conv, attrs)
	group := int(attrs.Int("group", 1))

	x, w := in[0], in[1]
	n, c, h, wd := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	m, kh, kw := w.Shape()[0], w.Shape()[2], w.Shape()[3]
	outH, outW := outShape[2], outShape[3]
	cg, mg := c/group, m/group
	patch := cg * kh * kw
	positions := outH * outW

	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(Conv, "allocating output: %v", err)
	}
	xv, wv, ov := x.AsFloat32(), w.AsFloat32(), out.AsFloat32()
	var bias []float32
	if len(in) == 3 {
		bias = in[2].AsFloat32()
	}

	col := make([]float32, positions*patch)
	for ni := 0; ni < n; ni++ {
		for g := 0; g < group; g++ {
			img := xv[(ni*c+g*cg)*h*wd:]
			im2col(col, img, cg, h, wd, kh, kw, outH, outW, p)
			wg := wv[g*mg*patch:]
			og := ov[(ni*m+g*mg)*positions:]
			ctx.Pool.For(mg, func(mi int) {
				wrow := wg[mi*patch : (mi+1)*patch]
				var b float32
				if bias != nil {
					b = bias[g*mg+mi]
				}
				dst := og[mi*positions : (mi+1)*positions]
				for pos := 0; pos < positions; pos++ {
					dst[pos] = vecDot(wrow, col[pos*patch:(pos+1)*patch]) + b
				}
			})
		}
	}
	return []*tensor.RawTensor{out}, nil
}

// im2col writes one row per output position, laid out [channel, kh, kw]
// to match the weight layout. Out-of-bounds taps read as zero.
func im2col(col, img []float32, c, h, w, kh, kw, outH, outW int, p conv2DParams) {
	i := 0
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			for ch := 0; ch < c; ch++ {
				for ky := 0; ky < kh; ky++ {
					y := oy*p.strideH - p.padT + ky*p.dilH
					for kx := 0; kx < kw; kx++ {
						x := ox*p.strideW - p.padL + kx*p.dilW
						if y >= 0 && y < h && x >= 0 && x < w {
							col[i] = img[(ch*h+y)*w+x]
						} else {
							col[i] = 0
						}
						i++
					}
				}
			}
		}
	}
}

func inferPool(op OpType) InferFunc {
	return func(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
		x := in[0]
		if x.DType != tensor.Float32 {
			return nil, shapeErrf(op, "unsupported dtype %s", x.DType)
		}
		if len(x.Shape) != 4 {
			return nil, shapeErrf(op, "input must have rank 4 (NCHW), got rank %d", len(x.Shape))
		}
		ks := attrs.IntList("kernel_shape")
		if len(ks) != 2 {
			return nil, shapeErrf(op, "kernel_shape must have 2 entries, got %d", len(ks))
		}
		kh, kw := int(ks[0]), int(ks[1])
		if kh < 1 || kw < 1 {
			return nil, shapeErrf(op, "kernel_shape must be positive")
		}
		p, err := spatialAttrs(op, attrs)
		if err != nil {
			return nil, err
		}
		outH := convOutSize(x.Shape[2], kh, p.padT, p.padB, p.strideH, 1)
		outW := convOutSize(x.Shape[3], kw, p.padL, p.padR, p.strideW, 1)
		if outH < 1 || outW < 1 {
			return nil, shapeErrf(op, "kernel [%d %d] does not fit input [%d %d] with the given padding", kh, kw, x.Shape[2], x.Shape[3])
		}
		return []TensorInfo{{DType: tensor.Float32, Shape: tensor.Shape{x.Shape[0], x.Shape[1], outH, outW}}}, nil
	}
}

func execMaxPool(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	return execPool(ctx, MaxPool, attrs, in[0], func(vals []float32, _ int) float32 {
		m := float32(math.Inf(-1))
		for _, v := range vals {
			if v > m {
				m = v
			}
		}
		return m
	})
}

func execAveragePool(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	// Padded positions are excluded from the divisor. A window lying
	// entirely in padding averages nothing and is defined as zero.
	return execPool(ctx, AveragePool, attrs, in[0], func(vals []float32, count int) float32 {
		if count == 0 {
			return 0
		}
		return vecSum(vals) / float32(count)
	})
}

func execPool(ctx *Context, op OpType, attrs Attrs, x *tensor.RawTensor, agg func([]float32, int) float32) ([]*tensor.RawTensor, error) {
	predicted, err := inferPool(op)(attrs, []TensorInfo{Info(x)}, 1)
	if err != nil {
		return nil, err
	}
	outShape := predicted[0].Shape
	ks := attrs.IntList("kernel_shape")
	kh, kw := int(ks[0]), int(ks[1])
	p, _ := spatialAttrs(op, attrs)

	n, c, h, w := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	outH, outW := outShape[2], outShape[3]

	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(op, "allocating output: %v", err)
	}
	xv, ov := x.AsFloat32(), out.AsFloat32()
	ctx.Pool.For(n*c, func(nc int) {
		img := xv[nc*h*w : (nc+1)*h*w]
		dst := ov[nc*outH*outW:]
		window := make([]float32, 0, kh*kw)
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				window = window[:0]
				for ky := 0; ky < kh; ky++ {
					y := oy*p.strideH - p.padT + ky
					if y < 0 || y >= h {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						xp := ox*p.strideW - p.padL + kx
						if xp < 0 || xp >= w {
							continue
						}
						window = append(window, img[y*w+xp])
					}
				}
				dst[oy*outW+ox] = agg(window, len(window))
			}
		}
	})
	return []*tensor.RawTensor{out}, nil
}

func inferGlobalAveragePool(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	x := in[0]
	if x.DType != tensor.Float32 {
		return nil, shapeErrf(GlobalAveragePool, "unsupported dtype %s", x.DType)
	}
	if len(x.Shape) != 4 {
		return nil, shapeErrf(GlobalAveragePool, "input must have rank 4 (NCHW), got rank %d", len(x.Shape))
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: tensor.Shape{x.Shape[0], x.Shape[1], 1, 1}}}, nil
}

func execGlobalAveragePool(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	x := in[0]
	predicted, err := inferGlobalAveragePool(attrs, []TensorInfo{Info(x)}, nout)
	if err != nil {
		return nil, err
	}
	n, c, h, w := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	out, err := tensor.NewRaw(predicted[0].Shape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(GlobalAveragePool, "allocating output: %v", err)
	}
	xv, ov := x.AsFloat32(), out.AsFloat32()
	area := h * w
	if area == 0 {
		return nil, kernelErrf(GlobalAveragePool, "empty spatial dimensions")
	}
	ctx.Pool.For(n*c, func(nc int) {
		ov[nc] = vecSum(xv[nc*area:(nc+1)*area]) / float32(area)
	})
	return []*tensor.RawTensor{out}, nil
}
