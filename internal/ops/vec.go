// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

//go:build !portable

package ops

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Vectorized numeric tier. These loops are written so the compiler can keep
// the independent accumulators in vector registers. vecDot and vecSum
// reassociate floating-point additions relative to the portable tier;
// operators built on them (Conv, MatMul with transposed operands, Reduce*,
// pooling averages, Softmax) document this. All other helpers preserve
// per-element evaluation order and are bit-identical to the portable tier.

// VectorInfo describes the numeric tier compiled into this binary and the
// CPU features detected at startup.
func VectorInfo() string {
	switch {
	case runtime.GOARCH == "amd64" && cpu.X86.HasAVX2:
		return "vectorized (amd64, AVX2)"
	case runtime.GOARCH == "amd64":
		return "vectorized (amd64, SSE2)"
	case runtime.GOARCH == "arm64" && cpu.ARM64.HasASIMD:
		return "vectorized (arm64, ASIMD)"
	default:
		return "vectorized (" + runtime.GOARCH + ")"
	}
}

func vecDot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	s := (s0 + s1) + (s2 + s3)
	for ; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

func vecSum(a []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i]
		s1 += a[i+1]
		s2 += a[i+2]
		s3 += a[i+3]
	}
	s := (s0 + s1) + (s2 + s3)
	for ; i < n; i++ {
		s += a[i]
	}
	return s
}

// vecAxpy computes dst[i] += alpha*x[i]. Per-element order matches the
// portable tier exactly.
func vecAxpy(dst, x []float32, alpha float32) {
	n := len(dst)
	i := 0
	for ; i+4 <= n; i += 4 {
		dst[i] += alpha * x[i]
		dst[i+1] += alpha * x[i+1]
		dst[i+2] += alpha * x[i+2]
		dst[i+3] += alpha * x[i+3]
	}
	for ; i < n; i++ {
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
