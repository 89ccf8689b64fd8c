// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader is a bounds-checked cursor over the container bytes. The first
// failure sticks: every later read returns a zero value, so parse code
// can read a full record and check err once.
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) failf(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format+" at offset %d", append(args, r.off)...)
	}
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.failf("need %d bytes, have %d", n, r.remaining())
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

// str reads a uint32-length-prefixed string.
func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n > maxNameLen {
		r.failf("string length %d exceeds limit", n)
		return ""
	}
	return string(r.bytes(int(n)))
}

// count reads a uint32 element count and rejects values that cannot fit
// in the remaining bytes at minBytes per element.
func (r *reader) count(minBytes int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if int64(n)*int64(minBytes) > int64(r.remaining()) {
		r.failf("count %d exceeds remaining input", n)
		return 0
	}
	return int(n)
}
