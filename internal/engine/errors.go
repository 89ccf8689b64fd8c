// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import "fmt"

// RunErrorKind classifies why a run failed. A run either produces every
// requested output or fails with a RunError; there are no partial
// results.
type RunErrorKind uint8

const (
	// InputMismatch: a supplied input has the wrong dtype or shape, or a
	// required input is missing.
	InputMismatch RunErrorKind = iota
	// UnknownOutput: a requested output does not name a graph node.
	UnknownOutput
	// KernelFailure: an operator's shape inference or kernel returned an
	// error.
	KernelFailure
	// Canceled: the context was canceled or its deadline expired.
	Canceled
)

func (k RunErrorKind) String() string {
	switch k {
	case InputMismatch:
		return "input mismatch"
	case UnknownOutput:
		return "unknown output"
	case KernelFailure:
		return "kernel failure"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// RunError is the single error type returned by Engine.Run. Node is the
// graph node index involved, or -1 when no single node applies.
type RunError struct {
	Kind   RunErrorKind
	Node   int
	Name   string
	Detail string
	Err    error
}

func (e *RunError) Error() string {
	msg := "run: " + e.Kind.String()
	if e.Name != "" {
		msg += fmt.Sprintf(" at %q (node %d)", e.Name, e.Node)
	} else if e.Node >= 0 {
		msg += fmt.Sprintf(" at node %d", e.Node)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }

func runErrf(kind RunErrorKind, node int, name, format string, args ...any) *RunError {
	return &RunError{Kind: kind, Node: node, Name: name, Detail: fmt.Sprintf(format, args...)}
}
