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

//go:build unix && (!linux || !sysvshm)

package mirror

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mapBacking installs the two windows over fd. It reserves the full 2P
// range first so nothing else can claim the second half, then binds fd over
// each half with MAP_FIXED, which replaces the reservation in place.
func mapBacking(fd int, size uintptr) (*Buffer, error) {
	base, err := unix.MmapPtr(-1, 0, nil, 2*size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "mmap reserve: %v", err)
	}
	if _, err := unix.MmapPtr(fd, 0, base, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED); err != nil {
		unix.MunmapPtr(base, 2*size)
		return nil, errors.Wrapf(errPlacementRace, "mmap first window: %v", err)
	}
	if _, err := unix.MmapPtr(fd, 0, unsafe.Add(base, size), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED); err != nil {
		unix.MunmapPtr(base, 2*size)
		return nil, errors.Wrapf(errPlacementRace, "mmap second window: %v", err)
	}
	return &Buffer{base: base, size: size}, nil
}

// releaseMapping drops both windows with a single unmap of the 2P range.
func releaseMapping(base unsafe.Pointer, size uintptr) error {
	if err := unix.MunmapPtr(base, 2*size); err != nil {
		return errors.Wrapf(err, "munmap %#x", uintptr(base))
	}
	return nil
}
