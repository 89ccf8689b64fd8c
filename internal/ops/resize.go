// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"math"

	"github.com/lattice-ml/lattice/internal/tensor"
)

func init() {
	register(Resize, Kernel{
		Name: "Resize", MinInputs: 2, MaxInputs: 2, Outputs: 1,
		Infer: inferResize,
		Exec:  execResize,
	})
}

// Resize scales the spatial dims of an NCHW image. The second input is
// either per-dimension scale factors (float32) or explicit output sizes
// (int32); only height and width may change. Mode attributes:
// mode "nearest" (default) or "linear",
// coordinate_transformation_mode "half_pixel" (default) or "asymmetric",
// nearest_mode "round_prefer_floor" (default), "round_prefer_ceil",
// "floor" or "ceil".

func resizeModes(attrs Attrs) (mode, coordMode, nearestMode string, err error) {
	mode = attrs.Str("mode", "nearest")
	if mode != "nearest" && mode != "linear" {
		return "", "", "", shapeErrf(Resize, "unsupported mode %q", mode)
	}
	coordMode = attrs.Str("coordinate_transformation_mode", "half_pixel")
	if coordMode != "half_pixel" && coordMode != "asymmetric" {
		return "", "", "", shapeErrf(Resize, "unsupported coordinate_transformation_mode %q", coordMode)
	}
	nearestMode = attrs.Str("nearest_mode", "round_prefer_floor")
	switch nearestMode {
	case "round_prefer_floor", "round_prefer_ceil", "floor", "ceil":
	default:
		return "", "", "", shapeErrf(Resize, "unsupported nearest_mode %q", nearestMode)
	}
	return mode, coordMode, nearestMode, nil
}

// resizeOutShape resolves the output shape from the scales or sizes
// tensor. Scales produce floor(in * scale) per dimension.
func resizeOutShape(xs tensor.Shape, target *tensor.RawTensor) (tensor.Shape, error) {
	if target.NumElements() != len(xs) {
		return nil, shapeErrf(Resize, "scales/sizes must have %d entries, got %d", len(xs), target.NumElements())
	}
	out := make(tensor.Shape, len(xs))
	switch target.DType() {
	case tensor.Float32:
		for i, s := range target.AsFloat32() {
			if s < 0 {
				return nil, shapeErrf(Resize, "scales must be non-negative")
			}
			out[i] = int(math.Floor(float64(s) * float64(xs[i])))
		}
	case tensor.Int32:
		for i, d := range target.AsInt32() {
			if d < 0 {
				return nil, shapeErrf(Resize, "sizes must be non-negative")
			}
			out[i] = int(d)
		}
	}
	if out[0] != xs[0] || out[1] != xs[1] {
		return nil, shapeErrf(Resize, "only height and width dimensions can be resized")
	}
	return out, nil
}

func inferResize(attrs Attrs, in []TensorInfo, nout int) ([]TensorInfo, error) {
	x := in[0]
	if x.DType != tensor.Float32 {
		return nil, shapeErrf(Resize, "unsupported dtype %s", x.DType)
	}
	if len(x.Shape) != 4 {
		return nil, shapeErrf(Resize, "input must have rank 4 (NCHW), got rank %d", len(x.Shape))
	}
	if _, _, _, err := resizeModes(attrs); err != nil {
		return nil, err
	}
	t := in[1]
	if len(t.Shape) > 1 {
		return nil, shapeErrf(Resize, "scales/sizes must have rank <= 1, got rank %d", len(t.Shape))
	}
	if t.DType != tensor.Float32 && t.DType != tensor.Int32 {
		return nil, shapeErrf(Resize, "scales must be float32 or sizes int32, got %s", t.DType)
	}
	if t.Value == nil {
		return []TensorInfo{{DType: tensor.Float32}}, nil
	}
	shape, err := resizeOutShape(x.Shape, t.Value)
	if err != nil {
		return nil, err
	}
	return []TensorInfo{{DType: tensor.Float32, Shape: shape}}, nil
}

// resizeCoord maps an output coordinate to a fractional input coordinate;
// invScale is input size over output size. Half-pixel treats samples as
// pixel centers, matching OpenCV and PyTorch.
func resizeCoord(dst int, invScale float32, halfPixel bool) float32 {
	if halfPixel {
		return invScale*(float32(dst)+0.5) - 0.5
	}
	return invScale * float32(dst)
}

func resizeRound(coord float32, mode string) int {
	frac := coord - float32(math.Floor(float64(coord)))
	switch mode {
	case "floor":
		return int(coord)
	case "ceil":
		return int(math.Ceil(float64(coord)))
	case "round_prefer_ceil":
		if frac == 0.5 {
			return int(math.Ceil(float64(coord)))
		}
		return int(math.Round(float64(coord)))
	default: // round_prefer_floor; math.Round rounds halves away from zero
		if frac == 0.5 {
			return int(math.Floor(float64(coord)))
		}
		return int(math.Round(float64(coord)))
	}
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nearestResize(img, dst []float32, h, w, outH, outW int, invY, invX float32, halfPixel bool, mode string) {
	for oy := 0; oy < outH; oy++ {
		y := resizeRound(clamp32(resizeCoord(oy, invY, halfPixel), 0, float32(h-1)), mode)
		for ox := 0; ox < outW; ox++ {
			x := resizeRound(clamp32(resizeCoord(ox, invX, halfPixel), 0, float32(w-1)), mode)
			dst[oy*outW+ox] = img[y*w+x]
		}
	}
}

func bilinearResize(img, dst []float32, h, w, outH, outW int, invY, invX float32, halfPixel bool) {
	for oy := 0; oy < outH; oy++ {
		inY := clamp32(resizeCoord(oy, invY, halfPixel), 0, float32(h-1))
		y1 := int(inY)
		y2 := min(y1+1, h-1)
		wy := inY - float32(y1)
		for ox := 0; ox < outW; ox++ {
			inX := clamp32(resizeCoord(ox, invX, halfPixel), 0, float32(w-1))
			x1 := int(inX)
			x2 := min(x1+1, w-1)
			wx := inX - float32(x1)

			top := (1-wx)*img[y1*w+x1] + wx*img[y1*w+x2]
			bottom := (1-wx)*img[y2*w+x1] + wx*img[y2*w+x2]
			dst[oy*outW+ox] = (1-wy)*top + wy*bottom
		}
	}
}

func execResize(ctx *Context, attrs Attrs, in []*tensor.RawTensor, nout int) ([]*tensor.RawTensor, error) {
	infos := make([]TensorInfo, len(in))
	for i, t := range in {
		infos[i] = Info(t)
	}
	predicted, err := inferResize(attrs, infos, nout)
	if err != nil {
		return nil, err
	}
	mode, coordMode, nearestMode, _ := resizeModes(attrs)

	x := in[0]
	outShape := predicted[0].Shape
	out, err := tensor.NewRaw(outShape, tensor.Float32)
	if err != nil {
		return nil, kernelErrf(Resize, "allocating output: %v", err)
	}
	if out.NumElements() == 0 {
		return []*tensor.RawTensor{out}, nil
	}
	n, c, h, w := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	outH, outW := outShape[2], outShape[3]
	if h == 0 || w == 0 {
		out.Release()
		return nil, kernelErrf(Resize, "cannot resize an empty image to a non-empty output")
	}
	invY := float32(h) / float32(outH)
	invX := float32(w) / float32(outW)
	halfPixel := coordMode == "half_pixel"

	xv, ov := x.AsFloat32(), out.AsFloat32()
	ctx.Pool.For(n*c, func(nc int) {
		img := xv[nc*h*w : (nc+1)*h*w]
		dst := ov[nc*outH*outW : (nc+1)*outH*outW]
		if mode == "linear" {
			bilinearResize(img, dst, h, w, outH, outW, invY, invX, halfPixel)
		} else {
			nearestResize(img, dst, h, w, outH, outW, invY, invX, halfPixel, nearestMode)
		}
	})
	return []*tensor.RawTensor{out}, nil
}
