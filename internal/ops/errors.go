// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/tensor"
)

// ShapeError reports a shape or type violation detected during inference
// or execution. It names the operator and, for broadcast failures, the
// offending dimension.
type ShapeError struct {
	Op     string
	Detail string
}

func (e *ShapeError) Error() string {
	return e.Op + ": " + e.Detail
}

func shapeErrf(op OpType, format string, args ...any) *ShapeError {
	return &ShapeError{Op: op.String(), Detail: fmt.Sprintf(format, args...)}
}

// broadcastErr converts a tensor.BroadcastError into a ShapeError that
// names the operator and the first mismatched dimension.
func broadcastErr(op OpType, err error) error {
	if be, ok := err.(*tensor.BroadcastError); ok {
		return &ShapeError{
			Op: op.String(),
			Detail: fmt.Sprintf("cannot broadcast %v with %v: dimension %d mismatch",
				be.A, be.B, be.Dim),
		}
	}
	return &ShapeError{Op: op.String(), Detail: err.Error()}
}

// KernelError reports a numeric or domain violation inside a kernel, such
// as integer division by zero or an out-of-range gather index.
type KernelError struct {
	Op     string
	Detail string
}

func (e *KernelError) Error() string {
	return e.Op + ": " + e.Detail
}

func kernelErrf(op OpType, format string, args ...any) *KernelError {
	return &KernelError{Op: op.String(), Detail: fmt.Sprintf(format, args...)}
}
