// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"errors"
	"testing"
)

func assertEqualShape(t *testing.T, expected, actual Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{3}, 3},
		{Shape{2, 3, 4}, 24},
		{Shape{2, 0, 4}, 0},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 0, 3}).Validate(); err != nil {
		t.Errorf("zero dims should be valid: %v", err)
	}
	if err := (Shape{2, -1}).Validate(); err == nil {
		t.Error("negative dim should be invalid")
	}
}

func TestComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Fatalf("strides = %v, want %v", strides, want)
		}
	}
	if got := len(Shape{}.ComputeStrides()); got != 0 {
		t.Errorf("scalar strides length = %d, want 0", got)
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b Shape
		want Shape
	}{
		{Shape{2, 3}, Shape{2, 3}, Shape{2, 3}},
		{Shape{2, 3}, Shape{3}, Shape{2, 3}},
		{Shape{2, 3}, Shape{}, Shape{2, 3}},
		{Shape{2, 1, 4}, Shape{3, 1}, Shape{2, 3, 4}},
		{Shape{1}, Shape{5, 1, 2}, Shape{5, 1, 2}},
		{Shape{4, 5}, Shape{1, 5}, Shape{4, 5}},
	}
	for _, tt := range tests {
		got, err := BroadcastShapes(tt.a, tt.b)
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v): %v", tt.a, tt.b, err)
			continue
		}
		assertEqualShape(t, tt.want, got, "broadcast")
	}
}

func TestBroadcastShapesCommutes(t *testing.T) {
	a, b := Shape{8, 1, 6, 1}, Shape{7, 1, 5}
	ab, err := BroadcastShapes(a, b)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := BroadcastShapes(b, a)
	if err != nil {
		t.Fatal(err)
	}
	assertEqualShape(t, ab, ba, "broadcast should commute")
}

func TestBroadcastShapesMismatch(t *testing.T) {
	_, err := BroadcastShapes(Shape{2, 3}, Shape{4, 5})
	if err == nil {
		t.Fatal("expected error for [2,3] vs [4,5]")
	}
	var be *BroadcastError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BroadcastError, got %T", err)
	}
	// Trailing dimension 3 vs 5 fails first.
	if be.Dim != 1 {
		t.Errorf("mismatched dim = %d, want 1", be.Dim)
	}
}

func TestShapeCloneIndependent(t *testing.T) {
	s := Shape{2, 3}
	c := s.Clone()
	c[0] = 9
	if s[0] != 2 {
		t.Error("Clone should not share backing array")
	}
}
