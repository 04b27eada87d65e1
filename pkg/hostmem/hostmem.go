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

// Package hostmem exposes the host's allocation granularity and helpers for
// rounding sizes to it. The granularity is the page size on POSIX hosts and
// the virtual allocation granularity on Windows, which is coarser than the
// page size there.
package hostmem

import "sync"

var granularity = sync.OnceValue(queryGranularity)

// Granularity returns the minimum size and alignment, in bytes, of any
// region the host can map at a caller-chosen address.
func Granularity() uintptr {
	return granularity()
}

// RoundUp rounds n up to the next multiple of the host granularity. It
// reports false on overflow.
func RoundUp(n uintptr) (uintptr, bool) {
	g := Granularity()
	rounded := (n + g - 1) &^ (g - 1)
	if rounded < n {
		return 0, false
	}
	return rounded, true
}

// IsAligned reports whether n is a multiple of the host granularity.
func IsAligned(n uintptr) bool {
	return n&(Granularity()-1) == 0
}
