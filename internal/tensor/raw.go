// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// buffer is a reference-counted backing store shared between a tensor and
// its views. The executor releases intermediate buffers once their last
// consumer has run; views hold their own reference so they never outlive
// the storage.
type buffer struct {
	data     []byte
	refCount atomic.Int32
}

func newBuffer(size int) *buffer {
	b := &buffer{data: make([]byte, size)}
	b.refCount.Store(1)
	return b
}

func (b *buffer) addRef() {
	b.refCount.Add(1)
}

func (b *buffer) release() {
	if b.refCount.Add(-1) == 0 {
		b.data = nil
	}
}

func (b *buffer) isUnique() bool {
	return b.refCount.Load() == 1
}

// RawTensor is the low-level tensor representation: a typed, shaped view
// over a reference-counted byte buffer with row-major strides.
type RawTensor struct {
	buffer *buffer
	shape  Shape
	stride []int
	dtype  DataType
	offset int
}

// NewRaw creates a zero-initialized RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", dtype)
	}
	return &RawTensor{
		buffer: newBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// FromSlice creates a RawTensor holding a copy of data with the given shape.
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v implies %d elements, data has %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	copy(Values[T](r), data)
	return r, nil
}

// Scalar creates a rank-0 tensor holding a single value.
func Scalar[T Element](v T) *RawTensor {
	r, _ := NewRaw(Shape{}, TypeOf[T]())
	Values[T](r)[0] = v
	return r
}

// Shape returns the tensor's shape. Callers must not mutate it.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's row-major memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice backing the tensor.
func (r *RawTensor) Data() []byte {
	return r.buffer.data[r.offset : r.offset+r.ByteSize()]
}

// Values interprets the tensor's storage as a []T. It panics if T does not
// match the tensor's data type; kernels resolve the type before calling.
func Values[T Element](r *RawTensor) []T {
	if want := TypeOf[T](); r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	n := r.NumElements()
	if n == 0 {
		return nil
	}
	data := r.buffer.data[r.offset:]
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// AsFloat32 interprets the data as []float32. Panics on dtype mismatch.
func (r *RawTensor) AsFloat32() []float32 { return Values[float32](r) }

// AsInt32 interprets the data as []int32. Panics on dtype mismatch.
func (r *RawTensor) AsInt32() []int32 { return Values[int32](r) }

// AsUint8 interprets the data as []uint8. Panics on dtype mismatch.
func (r *RawTensor) AsUint8() []uint8 { return Values[uint8](r) }

// AsBool interprets the data as []bool. Panics on dtype mismatch.
func (r *RawTensor) AsBool() []bool { return Values[bool](r) }

// View returns a tensor sharing this tensor's storage under a new shape.
// The element count must match. The view holds its own buffer reference.
func (r *RawTensor) View(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot view %v (%d elements) as %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		offset: r.offset,
	}, nil
}

// Clone returns a shallow copy sharing the buffer (reference counted).
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		offset: r.offset,
	}
}

// DeepClone returns a copy with its own freshly allocated storage.
func (r *RawTensor) DeepClone() *RawTensor {
	out, _ := NewRaw(r.shape, r.dtype)
	copy(out.buffer.data, r.Data())
	return out
}

// Retain increments the buffer's reference count.
func (r *RawTensor) Retain() {
	r.buffer.addRef()
}

// Release decrements the reference count and frees the storage when it
// reaches zero.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// Released reports whether the backing storage has been freed.
func (r *RawTensor) Released() bool {
	return r.buffer.refCount.Load() <= 0
}

// IsUnique reports whether this tensor holds the only reference to its
// buffer. The executor uses this to allow in-place kernels.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}
