// Copyright 2024 The Slice-Deque Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package slicedeque implements a double-ended queue whose storage is a
// mirrored virtual ring buffer. The two halves of the mapping alias the
// same physical pages, so the live contents are always visible as a single
// contiguous slice regardless of wrap-around, without copying.
//
// The backing memory lives outside the Go heap and is invisible to the
// garbage collector. Element types must therefore be pointer-free; the
// first allocation (WithCapacity with n > 0, or growth) rejects types
// containing Go pointers with ErrUnsupported; New does not check. Deques must be released with Close; a finalizer backstops
// forgotten buffers.
//
// A Deque is single-owner and not synchronized. It may move between
// goroutines, and may be read concurrently as long as nothing mutates it.
package slicedeque

import (
	"math"
	"reflect"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/gnzlbg/slice-deque/pkg/hostmem"
	"github.com/gnzlbg/slice-deque/pkg/mirror"
)

// Allocation errors, re-exported from the mirror allocator.
var (
	ErrOutOfMemory           = mirror.ErrOutOfMemory
	ErrAddressSpaceExhausted = mirror.ErrAddressSpaceExhausted
	ErrOversize              = mirror.ErrOversize
	ErrUnsupported           = mirror.ErrUnsupported
)

// zerobase is the address handed out for views of zero-sized elements,
// which never have backing storage. See runtime.zerobase.
var zerobase uintptr

// Opts configures a Deque.
type Opts[T any] struct {
	// Drop, when non-nil, is called exactly once for each element that is
	// discarded without being returned to the caller: by Truncate, Clear,
	// Close, and the unconsumed tail of a Drain.
	Drop func(*T)
}

// Deque is a double-ended queue over a mirrored buffer. Elements occupy
// the logical slots [head, head+len) of the doubled window, which is
// always one contiguous range of memory.
type Deque[T any] struct {
	buf  *mirror.Buffer
	head int
	len  int
	cap  int
	drop func(*T)
}

// New returns an empty deque. No mapping is performed until the first
// element is pushed.
func New[T any]() *Deque[T] {
	return NewOpts[T](Opts[T]{})
}

// NewOpts returns an empty deque configured by opts.
func NewOpts[T any](opts Opts[T]) *Deque[T] {
	return &Deque[T]{drop: opts.Drop}
}

// WithCapacity returns an empty deque able to hold at least n elements
// without growing. The capacity is rounded up to what a whole number of
// granularity units can hold.
func WithCapacity[T any](n int) (*Deque[T], error) {
	return WithCapacityOpts(n, Opts[T]{})
}

// WithCapacityOpts is WithCapacity with options.
func WithCapacityOpts[T any](n int, opts Opts[T]) (*Deque[T], error) {
	d := NewOpts[T](opts)
	if err := d.Reserve(n); err != nil {
		return nil, err
	}
	return d, nil
}

func elemSize[T any]() uintptr {
	var z T
	return unsafe.Sizeof(z)
}

func (d *Deque[T]) zeroSized() bool {
	return elemSize[T]() == 0
}

// phys returns the doubled window as 2C elements. Only valid when a
// buffer is mapped.
func (d *Deque[T]) phys() []T {
	return unsafe.Slice((*T)(d.buf.Base()), 2*d.cap)
}

// Len returns the number of live elements.
func (d *Deque[T]) Len() int {
	return d.len
}

// Cap returns the number of elements the deque can hold without growing.
func (d *Deque[T]) Cap() int {
	return d.cap
}

// Slice returns the live contents as one contiguous, mutable slice. The
// slice is invalidated by any operation that grows, shrinks, or shifts the
// deque.
func (d *Deque[T]) Slice() []T {
	if d.len == 0 {
		return nil
	}
	if d.zeroSized() {
		return unsafe.Slice((*T)(unsafe.Pointer(&zerobase)), d.len)
	}
	return d.phys()[d.head : d.head+d.len : d.head+d.len]
}

// At returns the element at logical index i. At panics if i is out of
// range.
func (d *Deque[T]) At(i int) T {
	if i < 0 || i >= d.len {
		panic("slicedeque: index out of range")
	}
	if d.zeroSized() {
		var z T
		return z
	}
	return d.phys()[d.head+i]
}

// Front returns the first element.
func (d *Deque[T]) Front() (T, bool) {
	if d.len == 0 {
		var z T
		return z, false
	}
	return d.At(0), true
}

// Back returns the last element.
func (d *Deque[T]) Back() (T, bool) {
	if d.len == 0 {
		var z T
		return z, false
	}
	return d.At(d.len - 1), true
}

func typeHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return typeHasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if typeHasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func checkElemType[T any]() error {
	var z T
	if unsafe.Alignof(z) > hostmem.Granularity() {
		return errors.Wrap(ErrUnsupported, "element alignment exceeds host granularity")
	}
	if typeHasPointers(reflect.TypeFor[T]()) {
		return errors.Wrap(ErrUnsupported, "element type contains Go pointers")
	}
	return nil
}

// grow reallocates so that at least minElems fit, moving the live range to
// head 0 in the new buffer. Growth and ShrinkToFit are the operations that
// move the contents to a new buffer. On failure the deque is unchanged.
func (d *Deque[T]) grow(minElems int) error {
	if d.zeroSized() {
		if d.cap != 0 {
			return errors.Wrap(ErrOversize, "zero-sized element count limit")
		}
		d.cap = math.MaxInt
		return nil
	}
	if err := checkElemType[T](); err != nil {
		return err
	}
	newCap := 2 * d.cap
	if newCap < minElems {
		newCap = minElems
	}
	size := elemSize[T]()
	bytes := uintptr(newCap) * size
	if newCap < 0 || bytes/size != uintptr(newCap) {
		return errors.Wrap(ErrOversize, "capacity overflow")
	}
	nb, err := mirror.Allocate(bytes)
	if err != nil {
		return err
	}
	newPhys := unsafe.Slice((*T)(nb.Base()), nb.Size()/size)
	copy(newPhys[:d.len], d.Slice())

	old := d.buf
	d.buf = nb
	d.cap = int(nb.Size() / size)
	d.head = 0
	if old != nil {
		old.Free()
	} else {
		runtime.SetFinalizer(d, (*Deque[T]).Close)
	}
	return nil
}

// Reserve ensures room for at least extra more elements.
func (d *Deque[T]) Reserve(extra int) error {
	if extra <= 0 {
		return nil
	}
	need := d.len + extra
	if need < 0 {
		return errors.Wrap(ErrOversize, "capacity overflow")
	}
	if need <= d.cap {
		return nil
	}
	return d.grow(need)
}

// PushBack appends x. On allocation failure the deque is unchanged and x
// stays with the caller.
func (d *Deque[T]) PushBack(x T) error {
	if d.len == d.cap {
		if err := d.grow(d.len + 1); err != nil {
			return err
		}
	}
	if !d.zeroSized() {
		d.phys()[d.head+d.len] = x
	}
	d.len++
	return nil
}

// PushFront prepends x. On allocation failure the deque is unchanged and x
// stays with the caller.
func (d *Deque[T]) PushFront(x T) error {
	if d.len == d.cap {
		if err := d.grow(d.len + 1); err != nil {
			return err
		}
	}
	if !d.zeroSized() {
		if d.head == 0 {
			d.head = d.cap
		}
		d.head--
		d.phys()[d.head] = x
	}
	d.len++
	return nil
}

// PopBack removes and returns the last element.
func (d *Deque[T]) PopBack() (T, bool) {
	if d.len == 0 {
		var z T
		return z, false
	}
	d.len--
	if d.zeroSized() {
		var z T
		return z, true
	}
	return d.phys()[d.head+d.len], true
}

// PopFront removes and returns the first element.
func (d *Deque[T]) PopFront() (T, bool) {
	if d.len == 0 {
		var z T
		return z, false
	}
	d.len--
	if d.zeroSized() {
		var z T
		return z, true
	}
	x := d.phys()[d.head]
	d.head++
	if d.head >= d.cap {
		d.head -= d.cap
	}
	return x, true
}

// dropAll runs the drop hook over n slots starting at head in phys (nil
// for zero-sized elements). A panicking hook does not stop the walk; the
// first panic is re-raised once every slot has been visited.
func (d *Deque[T]) dropAll(phys []T, head, n int) {
	var firstPanic any
	panicked := false
	run := func(p *T) {
		defer func() {
			if r := recover(); r != nil && !panicked {
				panicked, firstPanic = true, r
			}
		}()
		d.drop(p)
	}
	if phys == nil {
		var z T
		for i := 0; i < n; i++ {
			run(&z)
		}
	} else {
		for i := 0; i < n; i++ {
			run(&phys[head+i])
		}
	}
	if panicked {
		panic(firstPanic)
	}
}

// dropRange runs the drop hook over the logical slots [from, to).
func (d *Deque[T]) dropRange(from, to int) {
	if d.drop == nil || to <= from {
		return
	}
	if d.zeroSized() {
		d.dropAll(nil, 0, to-from)
		return
	}
	d.dropAll(d.phys(), d.head+from, to-from)
}

// Truncate discards every element at logical index k and beyond, dropping
// them front to back. The length is adjusted before the drops run, so a
// panicking drop leaves the deque consistent.
func (d *Deque[T]) Truncate(k int) {
	if k < 0 || k >= d.len {
		return
	}
	old := d.len
	d.len = k
	d.dropRange(k, old)
}

// Clear discards every element.
func (d *Deque[T]) Clear() {
	d.Truncate(0)
}

// Insert places x at logical index i, shifting whichever side of the
// insertion point is shorter by one slot. Insert panics if i is out of
// range.
func (d *Deque[T]) Insert(i int, x T) error {
	if i < 0 || i > d.len {
		panic("slicedeque: insert index out of range")
	}
	if d.len == d.cap {
		if err := d.grow(d.len + 1); err != nil {
			return err
		}
	}
	if d.zeroSized() {
		d.len++
		return nil
	}
	phys := d.phys()
	if i <= d.len-i {
		// Front side is not longer; shift it one slot toward the mirror.
		h := d.head
		if h == 0 {
			h = d.cap
		}
		h--
		copy(phys[h:h+i], phys[h+1:h+1+i])
		d.head = h
		phys[h+i] = x
	} else {
		copy(phys[d.head+i+1:d.head+d.len+1], phys[d.head+i:d.head+d.len])
		phys[d.head+i] = x
	}
	d.len++
	return nil
}

// Remove takes out and returns the element at logical index i, shifting
// the shorter side to close the gap. Remove panics if i is out of range.
func (d *Deque[T]) Remove(i int) T {
	if i < 0 || i >= d.len {
		panic("slicedeque: remove index out of range")
	}
	if d.zeroSized() {
		d.len--
		var z T
		return z
	}
	phys := d.phys()
	x := phys[d.head+i]
	if i < d.len-1-i {
		copy(phys[d.head+1:d.head+i+1], phys[d.head:d.head+i])
		d.head++
		if d.head >= d.cap {
			d.head -= d.cap
		}
	} else {
		copy(phys[d.head+i:d.head+d.len-1], phys[d.head+i+1:d.head+d.len])
	}
	d.len--
	return x
}

// SwapRemoveBack takes out the element at logical index i, filling the gap
// with the last element. It panics if i is out of range.
func (d *Deque[T]) SwapRemoveBack(i int) T {
	if i < 0 || i >= d.len {
		panic("slicedeque: remove index out of range")
	}
	d.len--
	if d.zeroSized() {
		var z T
		return z
	}
	phys := d.phys()
	x := phys[d.head+i]
	phys[d.head+i] = phys[d.head+d.len]
	return x
}

// SwapRemoveFront takes out the element at logical index i, filling the
// gap with the first element. It panics if i is out of range.
func (d *Deque[T]) SwapRemoveFront(i int) T {
	if i < 0 || i >= d.len {
		panic("slicedeque: remove index out of range")
	}
	if d.zeroSized() {
		d.len--
		var z T
		return z
	}
	phys := d.phys()
	x := phys[d.head+i]
	phys[d.head+i] = phys[d.head]
	d.head++
	if d.head >= d.cap {
		d.head -= d.cap
	}
	d.len--
	return x
}

// removeRange drops the logical slots [dropFrom, to) and closes the gap
// [from, to) by shifting the shorter side.
func (d *Deque[T]) removeRange(from, to, dropFrom int) {
	d.dropRange(dropFrom, to)
	w := to - from
	if w <= 0 {
		return
	}
	if d.zeroSized() {
		d.len -= w
		return
	}
	phys := d.phys()
	if from <= d.len-to {
		// Front side is shorter; slide it right onto the gap.
		copy(phys[d.head+w:d.head+w+from], phys[d.head:d.head+from])
		d.head += w
		if d.head >= d.cap {
			d.head -= d.cap
		}
	} else {
		copy(phys[d.head+from:d.head+d.len-w], phys[d.head+to:d.head+d.len])
	}
	d.len -= w
}

// Drain returns an iterator over the logical range [i, j). Elements the
// caller consumes are moved out; when iteration stops, any unconsumed
// elements of the range are dropped and the gap is closed by shifting the
// shorter side. The deque must not be mutated while draining. Drain panics
// if the range is invalid.
func (d *Deque[T]) Drain(i, j int) func(yield func(T) bool) {
	if i < 0 || j < i || j > d.len {
		panic("slicedeque: drain range out of range")
	}
	return func(yield func(T) bool) {
		consumed := i
		defer func() {
			d.removeRange(i, j, consumed)
		}()
		for k := i; k < j; k++ {
			x := d.At(k)
			consumed++
			if !yield(x) {
				return
			}
		}
	}
}

// Append moves every element of other onto the back of d, leaving other
// empty. Append panics if other is d.
func (d *Deque[T]) Append(other *Deque[T]) error {
	if other == d {
		panic("slicedeque: append deque to itself")
	}
	if err := d.Reserve(other.len); err != nil {
		return err
	}
	if !d.zeroSized() && other.len > 0 {
		copy(d.phys()[d.head+d.len:d.head+d.len+other.len], other.Slice())
	}
	d.len += other.len
	other.len = 0
	other.head = 0
	return nil
}

// ExtendFromSlice bulk-copies xs onto the back of the deque through the
// contiguous view.
func (d *Deque[T]) ExtendFromSlice(xs []T) error {
	if err := d.Reserve(len(xs)); err != nil {
		return err
	}
	if !d.zeroSized() && len(xs) > 0 {
		copy(d.phys()[d.head+d.len:d.head+d.len+len(xs)], xs)
	}
	d.len += len(xs)
	return nil
}

// ShrinkToFit reallocates to the smallest capacity holding the current
// contents. Allocation failure is ignored and the deque keeps its current
// buffer.
func (d *Deque[T]) ShrinkToFit() {
	if d.zeroSized() || d.buf == nil {
		return
	}
	if d.len == 0 {
		runtime.SetFinalizer(d, nil)
		d.buf.Free()
		d.buf = nil
		d.head = 0
		d.cap = 0
		return
	}
	size := elemSize[T]()
	nb, err := mirror.Allocate(uintptr(d.len) * size)
	if err != nil {
		return
	}
	newCap := int(nb.Size() / size)
	if newCap >= d.cap {
		nb.Free()
		return
	}
	newPhys := unsafe.Slice((*T)(nb.Base()), nb.Size()/size)
	copy(newPhys[:d.len], d.Slice())
	d.buf.Free()
	d.buf = nb
	d.cap = newCap
	d.head = 0
}

// Close drops every remaining element front to back and releases the
// buffer. A panicking drop neither skips the remaining drops nor leaks the
// mapping: the walk continues, the buffer is released, and the first panic
// is then re-raised. Close is idempotent.
func (d *Deque[T]) Close() (err error) {
	runtime.SetFinalizer(d, nil)
	buf := d.buf
	n := d.len
	head := d.head
	capC := d.cap
	d.buf = nil
	d.len = 0
	d.head = 0
	d.cap = 0
	if buf != nil {
		defer func() {
			if ferr := buf.Free(); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}
	if d.drop != nil && n > 0 {
		if buf == nil {
			d.dropAll(nil, 0, n)
		} else {
			d.dropAll(unsafe.Slice((*T)(buf.Base()), 2*capC), head, n)
		}
	}
	return nil
}
