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

// Package mirror allocates mirrored virtual memory buffers: a physical
// region of P bytes made visible through two adjacent virtual windows, so
// that the byte at offset i and the byte at offset P+i are the same
// physical byte. Any run of up to P bytes starting inside the first window
// is therefore contiguous in virtual memory regardless of wrap-around.
//
// The backing object (memfd, temporary file, System-V segment or section
// handle, depending on the host) is released as soon as both windows are in
// place; a live Buffer holds nothing but the two mappings.
package mirror

import (
	goerrors "errors"
	"math/bits"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/gnzlbg/slice-deque/pkg/hostmem"
)

// Allocation errors.
var (
	// ErrOutOfMemory indicates the host refused the backing object or a
	// mapping.
	ErrOutOfMemory = goerrors.New("mirror: out of memory")

	// ErrAddressSpaceExhausted indicates that every placement attempt lost
	// the race for the second window.
	ErrAddressSpaceExhausted = goerrors.New("mirror: address space exhausted")

	// ErrOversize indicates the requested size exceeds the host maximum.
	ErrOversize = goerrors.New("mirror: requested size too large")

	// ErrUnsupported indicates the host or the element type cannot be
	// served by a mirrored mapping.
	ErrUnsupported = goerrors.New("mirror: unsupported")
)

// errPlacementRace marks a lost placement race; Allocate retries these.
var errPlacementRace = goerrors.New("mirror: mapping placement race")

// placementRetries bounds how many times a lost placement race is retried
// beyond the first attempt.
const placementRetries = 3

// maxAllocBytes is the largest P a single Buffer may span.
var maxAllocBytes uintptr = 1 << 30

func init() {
	if bits.UintSize == 64 {
		maxAllocBytes = 1 << 46
	}
}

// Buffer is a live mirrored buffer. The zero value is a released buffer.
type Buffer struct {
	base unsafe.Pointer
	size uintptr
}

// Base returns the start of the first window, or nil after Free.
func (b *Buffer) Base() unsafe.Pointer {
	return b.base
}

// Size returns the physical size P in bytes.
func (b *Buffer) Size() uintptr {
	return b.size
}

// Bytes returns the full doubled window as a 2P-byte slice. Offsets i and
// P+i alias the same physical byte.
func (b *Buffer) Bytes() []byte {
	return unsafe.Slice((*byte)(b.base), 2*b.size)
}

// Free unmaps both windows. Free is idempotent; using any view of the
// buffer after Free faults.
func (b *Buffer) Free() error {
	if b.base == nil {
		return nil
	}
	base, size := b.base, b.size
	b.base = nil
	b.size = 0
	return releaseMapping(base, size)
}

// Allocate returns a mirrored buffer of at least minBytes physical bytes,
// rounded up to a multiple of the host granularity. A minBytes of zero is
// treated as one byte.
func Allocate(minBytes uintptr) (*Buffer, error) {
	if minBytes == 0 {
		minBytes = 1
	}
	size, ok := hostmem.RoundUp(minBytes)
	if !ok || size > maxAllocBytes {
		return nil, errors.Wrapf(ErrOversize, "%#x bytes", minBytes)
	}

	// The reserve-then-map sequence can lose its second half to a
	// concurrent mapping on some hosts. Those attempts come back as
	// errPlacementRace and are retried a bounded number of times; anything
	// else aborts immediately.
	var b *Buffer
	op := func() error {
		var err error
		b, err = allocate(size)
		if err == nil || goerrors.Is(err, errPlacementRace) {
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), placementRetries)
	if err := backoff.Retry(op, bo); err != nil {
		if goerrors.Is(err, errPlacementRace) {
			return nil, errors.Wrap(ErrAddressSpaceExhausted, err.Error())
		}
		return nil, err
	}
	return b, nil
}
