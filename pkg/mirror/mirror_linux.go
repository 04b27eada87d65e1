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

//go:build linux && !sysvshm

package mirror

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// allocate uses an anonymous memfd as the backing object. The fd only
// lives for the duration of the call; the mappings keep the pages alive.
func allocate(size uintptr) (*Buffer, error) {
	fd, err := unix.MemfdCreate("slice-deque", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "memfd_create: %v", err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "ftruncate: %v", err)
	}
	return mapBacking(fd, size)
}
