// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForCoversAllIndices(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		p := New(workers)
		const n = 1000
		seen := make([]int32, n)
		p.For(n, func(i int) {
			atomic.AddInt32(&seen[i], 1)
		})
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, c)
			}
		}
	}
}

func TestForZeroAndSmall(t *testing.T) {
	p := New(4)
	p.For(0, func(i int) { t.Fatal("callback for n=0") })

	var count atomic.Int32
	p.For(3, func(i int) { count.Add(1) })
	if count.Load() != 3 {
		t.Fatalf("visited %d indices, want 3", count.Load())
	}
}

func TestSerialRunsInOrder(t *testing.T) {
	p := Serial()
	if p.Workers() != 1 {
		t.Fatalf("Serial().Workers() = %d", p.Workers())
	}
	var order []int
	p.For(100, func(i int) { order = append(order, i) })
	for i, v := range order {
		if v != i {
			t.Fatalf("serial pool ran out of order at %d: %d", i, v)
		}
	}
}

func TestForEagerCoversAllIndices(t *testing.T) {
	p := New(4)
	const n = 200
	seen := make([]int32, n)
	p.ForEager(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestDefaultIsShared(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default should return the same pool")
	}
	if Default().Workers() < 1 {
		t.Fatal("default pool must have at least one worker")
	}
}

func TestNewClampsWorkers(t *testing.T) {
	if New(0).Workers() < 1 {
		t.Fatal("New(0) must clamp to at least one worker")
	}
	if New(-3).Workers() < 1 {
		t.Fatal("New(-3) must clamp to at least one worker")
	}
}
