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

package slicedeque

import (
	"fmt"
	"hash/maphash"
	"iter"
	"slices"
	"strings"

	"golang.org/x/exp/constraints"
)

// From builds a deque holding a copy of xs.
func From[T any](xs []T) (*Deque[T], error) {
	d := New[T]()
	if err := d.ExtendFromSlice(xs); err != nil {
		return nil, err
	}
	return d, nil
}

// Collect builds a deque from the values of seq.
func Collect[T any](seq iter.Seq[T]) (*Deque[T], error) {
	d := New[T]()
	for x := range seq {
		if err := d.PushBack(x); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// ToSlice moves the contents out into a plain slice, leaving the deque
// empty. Ownership of the elements transfers with them; the drop hook does
// not run.
func (d *Deque[T]) ToSlice() []T {
	out := make([]T, d.len)
	copy(out, d.Slice())
	d.len = 0
	d.head = 0
	return out
}

// Clone returns a deque holding a copy of the contents, with the same drop
// hook.
func (d *Deque[T]) Clone() (*Deque[T], error) {
	c := NewOpts[T](Opts[T]{Drop: d.drop})
	if err := c.ExtendFromSlice(d.Slice()); err != nil {
		return nil, err
	}
	return c, nil
}

// All returns an indexed iterator over the elements, front to back.
func (d *Deque[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < d.len; i++ {
			if !yield(i, d.At(i)) {
				return
			}
		}
	}
}

// Values returns an iterator over the elements, front to back.
func (d *Deque[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < d.len; i++ {
			if !yield(d.At(i)) {
				return
			}
		}
	}
}

// PopAll returns an iterator that consumes the deque front to back,
// leaving it empty.
func (d *Deque[T]) PopAll() iter.Seq[T] {
	return func(yield func(T) bool) {
		for x, ok := d.PopFront(); ok; x, ok = d.PopFront() {
			if !yield(x) {
				return
			}
		}
	}
}

// Equal reports whether a and b hold the same sequence.
func Equal[T comparable](a, b *Deque[T]) bool {
	return slices.Equal(a.Slice(), b.Slice())
}

// Compare compares a and b lexicographically.
func Compare[T constraints.Ordered](a, b *Deque[T]) int {
	return slices.Compare(a.Slice(), b.Slice())
}

// Hash returns a seed-dependent hash of the contents, consistent with
// Equal: equal deques hash equally under the same seed.
func Hash[T comparable](seed maphash.Seed, d *Deque[T]) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	for _, x := range d.All() {
		maphash.WriteComparable(&h, x)
	}
	return h.Sum64()
}

// String implements fmt.Stringer.
func (d *Deque[T]) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range d.All() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%v", x)
	}
	sb.WriteByte(']')
	return sb.String()
}
