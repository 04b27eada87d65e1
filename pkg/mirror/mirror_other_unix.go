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

//go:build unix && !linux

package mirror

import (
	"os"

	"github.com/pkg/errors"
)

// allocate uses an unlinked temporary file as the backing object on hosts
// without memfd. The file is gone from the filesystem before the first
// window is mapped; closing it leaves only the two mappings.
func allocate(size uintptr) (*Buffer, error) {
	f, err := os.CreateTemp("", "slice-deque-*")
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "create backing file: %v", err)
	}
	defer f.Close()
	os.Remove(f.Name())
	if err := f.Truncate(int64(size)); err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "truncate backing file: %v", err)
	}
	return mapBacking(int(f.Fd()), size)
}
