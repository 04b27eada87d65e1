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

package mirror

import (
	"errors"
	"testing"

	"github.com/gnzlbg/slice-deque/pkg/hostmem"
)

func TestAllocateRoundsToGranularity(t *testing.T) {
	g := hostmem.Granularity()
	b, err := Allocate(1)
	if err != nil {
		t.Fatalf("Allocate got err %v want nil", err)
	}
	defer b.Free()
	if b.Size() < g {
		t.Errorf("Size got %d want at least %d", b.Size(), g)
	}
	if b.Size()%g != 0 {
		t.Errorf("Size got %d want a multiple of %d", b.Size(), g)
	}
	if uintptr(len(b.Bytes())) != 2*b.Size() {
		t.Errorf("Bytes length got %d want %d", len(b.Bytes()), 2*b.Size())
	}
}

func TestAllocateZero(t *testing.T) {
	b, err := Allocate(0)
	if err != nil {
		t.Fatalf("Allocate got err %v want nil", err)
	}
	defer b.Free()
	if b.Size() == 0 {
		t.Errorf("Size got 0 want positive")
	}
}

// TestMirrorVisibility checks that a byte written at offset i is visible at
// offset P+i, and vice versa, for offsets across the whole window.
func TestMirrorVisibility(t *testing.T) {
	b, err := Allocate(1)
	if err != nil {
		t.Fatalf("Allocate got err %v want nil", err)
	}
	defer b.Free()
	p := b.Size()
	buf := b.Bytes()

	offsets := []uintptr{0, 1, p / 2, p - 2, p - 1}
	for _, i := range offsets {
		buf[i] = 0xA5
		if buf[p+i] != 0xA5 {
			t.Errorf("write at %d not visible at %d", i, p+i)
		}
		buf[p+i] = 0x5A
		if buf[i] != 0x5A {
			t.Errorf("write at %d not visible at %d", p+i, i)
		}
	}
}

func TestOversize(t *testing.T) {
	if _, err := Allocate(^uintptr(0) - 1); !errors.Is(err, ErrOversize) {
		t.Errorf("Allocate got err %v want ErrOversize", err)
	}
}

func TestFreeIdempotent(t *testing.T) {
	b, err := Allocate(1)
	if err != nil {
		t.Fatalf("Allocate got err %v want nil", err)
	}
	if err := b.Free(); err != nil {
		t.Fatalf("Free got err %v want nil", err)
	}
	if b.Base() != nil {
		t.Errorf("Base got %p after Free want nil", b.Base())
	}
	if err := b.Free(); err != nil {
		t.Errorf("second Free got err %v want nil", err)
	}
}

func TestBuffersAreIndependent(t *testing.T) {
	a, err := Allocate(1)
	if err != nil {
		t.Fatalf("Allocate got err %v want nil", err)
	}
	defer a.Free()
	b, err := Allocate(1)
	if err != nil {
		t.Fatalf("Allocate got err %v want nil", err)
	}
	defer b.Free()

	a.Bytes()[0] = 1
	b.Bytes()[0] = 2
	if a.Bytes()[0] != 1 || b.Bytes()[0] != 2 {
		t.Errorf("buffers alias each other: got %d, %d want 1, 2", a.Bytes()[0], b.Bytes()[0])
	}
}
