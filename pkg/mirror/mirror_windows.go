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

//go:build windows

package mirror

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	kernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procMapViewOfFileEx = kernel32.NewProc("MapViewOfFileEx")
)

func mapViewOfFileEx(h windows.Handle, size, addr uintptr) (uintptr, error) {
	r, _, e := procMapViewOfFileEx.Call(
		uintptr(h),
		uintptr(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE),
		0, 0, size, addr)
	if r == 0 {
		return 0, e
	}
	return r, nil
}

// allocate uses a pagefile-backed section object mapped twice. Windows has
// no way to replace a reservation in place with the classic mapping API, so
// the reservation is released immediately before the two MapViewOfFileEx
// calls; a concurrent allocation can steal the range in that gap, which
// comes back as a placement race and is retried by the caller.
func allocate(size uintptr) (*Buffer, error) {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		uint32(uint64(size)>>32), uint32(size), nil)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "CreateFileMapping: %v", err)
	}
	defer windows.CloseHandle(h)

	addr, err := windows.VirtualAlloc(0, 2*size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "VirtualAlloc: %v", err)
	}
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "VirtualFree: %v", err)
	}

	v0, err := mapViewOfFileEx(h, size, addr)
	if err != nil {
		return nil, errors.Wrapf(errPlacementRace, "MapViewOfFileEx first window: %v", err)
	}
	if _, err := mapViewOfFileEx(h, size, addr+size); err != nil {
		windows.UnmapViewOfFile(v0)
		return nil, errors.Wrapf(errPlacementRace, "MapViewOfFileEx second window: %v", err)
	}
	return &Buffer{base: unsafe.Pointer(addr), size: size}, nil
}

func releaseMapping(base unsafe.Pointer, size uintptr) error {
	err0 := windows.UnmapViewOfFile(uintptr(base))
	err1 := windows.UnmapViewOfFile(uintptr(base) + size)
	if err0 != nil {
		return errors.Wrapf(err0, "UnmapViewOfFile %#x", uintptr(base))
	}
	if err1 != nil {
		return errors.Wrapf(err1, "UnmapViewOfFile %#x", uintptr(base)+size)
	}
	return nil
}
