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

//go:build linux && sysvshm

package mirror

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// shmRemap is the kernel's SHM_REMAP shmat flag, which x/sys/unix does
// not export.
const shmRemap = 0x4000

// allocate uses a System-V shared memory segment attached twice into a
// reserved window. The segment is marked for removal before allocate
// returns, so the two attachments are its only remaining references.
func allocate(size uintptr) (*Buffer, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, int(size), unix.IPC_CREAT|0o600)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "shmget: %v", err)
	}
	defer unix.SysvShmCtl(id, unix.IPC_RMID, nil)

	base, err := unix.MmapPtr(-1, 0, nil, 2*size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "mmap reserve: %v", err)
	}
	// SHM_REMAP lets the attach replace the reservation in place.
	if _, err := unix.SysvShmAttach(id, uintptr(base), shmRemap); err != nil {
		unix.MunmapPtr(base, 2*size)
		return nil, errors.Wrapf(errPlacementRace, "shmat first window: %v", err)
	}
	if _, err := unix.SysvShmAttach(id, uintptr(base)+size, shmRemap); err != nil {
		unix.SysvShmDetach(unsafe.Slice((*byte)(base), size))
		unix.MunmapPtr(unsafe.Add(base, size), size)
		return nil, errors.Wrapf(errPlacementRace, "shmat second window: %v", err)
	}
	return &Buffer{base: base, size: size}, nil
}

// releaseMapping detaches both attachments; nothing of the original
// reservation survives them.
func releaseMapping(base unsafe.Pointer, size uintptr) error {
	if err := unix.SysvShmDetach(unsafe.Slice((*byte)(base), size)); err != nil {
		return errors.Wrapf(err, "shmdt %#x", uintptr(base))
	}
	if err := unix.SysvShmDetach(unsafe.Slice((*byte)(unsafe.Add(base, size)), size)); err != nil {
		return errors.Wrapf(err, "shmdt %#x", uintptr(base)+size)
	}
	return nil
}
