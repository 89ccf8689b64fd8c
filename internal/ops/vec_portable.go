// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

//go:build portable

package ops

// Portable scalar numeric tier, selected with -tags portable. Straight
// left-to-right loops; the reference semantics the vectorized tier is
// validated against.

// VectorInfo describes the numeric tier compiled into this binary.
func VectorInfo() string {
	return "portable scalar"
}

func vecDot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func vecSum(a []float32) float32 {
	var s float32
	for i := range a {
		s += a[i]
	}
	return s
}

func vecAxpy(dst, x []float32, alpha float32) {
	for i := range dst {
		dst[i] += alpha * x[i]
	}
}

func vecAdd(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
}

func vecSub(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] - b[i]
	}
}

func vecMul(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] * b[i]
	}
}

func vecDiv(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] / b[i]
	}
}
