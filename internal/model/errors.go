// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"errors"
	"fmt"
)

// Sentinel failure classes for Load; test with errors.Is.
var (
	ErrMalformed     = errors.New("malformed container")
	ErrVersion       = errors.New("unsupported format version")
	ErrUnsupportedOp = errors.New("unsupported operator")
	ErrInvalidGraph  = errors.New("invalid graph")
)

// LoadError wraps one of the sentinel classes with detail about where
// loading failed.
type LoadError struct {
	Class  error
	Detail string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "model: " + e.Class.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Class, e.Err}
	}
	return []error{e.Class}
}

func loadErrf(class error, format string, args ...any) error {
	return &LoadError{Class: class, Detail: fmt.Sprintf(format, args...)}
}
