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
	"hash/maphash"
	"slices"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestFromToSliceRoundTrip(t *testing.T) {
	in := []int{3, 1, 4, 1, 5, 9, 2, 6}
	d, err := From(in)
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer d.Close()
	if got := d.Slice(); !slices.Equal(got, in) {
		t.Fatalf("Slice got %v want %v", got, in)
	}

	out := d.ToSlice()
	if !slices.Equal(out, in) {
		t.Fatalf("ToSlice got %v want %v", out, in)
	}
	if d.Len() != 0 {
		t.Errorf("Len got %d after ToSlice want 0", d.Len())
	}
}

func TestCollectRoundTrip(t *testing.T) {
	src, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer src.Close()

	d, err := Collect(src.Values())
	if err != nil {
		t.Fatalf("Collect got err %v want nil", err)
	}
	defer d.Close()
	if !Equal(src, d) {
		t.Errorf("Collect got %v want %v", d.Slice(), src.Slice())
	}
}

func TestClone(t *testing.T) {
	d, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer d.Close()

	c, err := d.Clone()
	if err != nil {
		t.Fatalf("Clone got err %v want nil", err)
	}
	defer c.Close()
	if !Equal(d, c) {
		t.Fatalf("clone %v want %v", c.Slice(), d.Slice())
	}

	// Mutating the clone leaves the original alone.
	c.Slice()[0] = 9
	if got := d.At(0); got != 1 {
		t.Errorf("original At(0) got %d after clone mutation want 1", got)
	}
}

func TestEqualCompare(t *testing.T) {
	testCases := []struct {
		name        string
		a, b        []int
		wantEqual   bool
		wantCompare int
	}{
		{"equal", []int{1, 2, 3}, []int{1, 2, 3}, true, 0},
		{"less", []int{1, 2}, []int{1, 3}, false, -1},
		{"greater", []int{2}, []int{1, 9}, false, 1},
		{"prefix", []int{1}, []int{1, 2}, false, -1},
		{"empty", nil, nil, true, 0},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			a, err := From(test.a)
			if err != nil {
				t.Fatalf("From got err %v want nil", err)
			}
			defer a.Close()
			b, err := From(test.b)
			if err != nil {
				t.Fatalf("From got err %v want nil", err)
			}
			defer b.Close()
			if got := Equal(a, b); got != test.wantEqual {
				t.Errorf("Equal got %v want %v", got, test.wantEqual)
			}
			if got := Compare(a, b); got != test.wantCompare {
				t.Errorf("Compare got %d want %d", got, test.wantCompare)
			}
		})
	}
}

func TestHash(t *testing.T) {
	seed := maphash.MakeSeed()
	a, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer a.Close()
	b, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer b.Close()
	c, err := From([]int{3, 2, 1})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer c.Close()

	if Hash(seed, a) != Hash(seed, b) {
		t.Errorf("equal deques hash differently")
	}
	if Hash(seed, a) == Hash(seed, c) {
		t.Errorf("distinct deques hash equally")
	}
}

func TestString(t *testing.T) {
	d, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer d.Close()
	if got, want := d.String(), "[1 2 3]"; got != want {
		t.Errorf("String got %q want %q", got, want)
	}
}

func TestPopAll(t *testing.T) {
	d, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}
	defer d.Close()
	var got []int
	for x := range d.PopAll() {
		got = append(got, x)
	}
	if want := []int{1, 2, 3}; !slices.Equal(got, want) {
		t.Fatalf("PopAll yielded %v want %v", got, want)
	}
	if d.Len() != 0 {
		t.Errorf("Len got %d after PopAll want 0", d.Len())
	}
}

// TestConcurrentReaders shares a quiescent deque read-only across
// goroutines.
func TestConcurrentReaders(t *testing.T) {
	d := New[int]()
	defer d.Close()
	want := 0
	for i := 0; i < 1000; i++ {
		if err := d.PushBack(i); err != nil {
			t.Fatalf("PushBack got err %v want nil", err)
		}
		want += i
	}

	var g errgroup.Group
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			sum := 0
			for _, x := range d.Slice() {
				sum += x
			}
			if sum != want {
				t.Errorf("reader sum got %d want %d", sum, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait got err %v want nil", err)
	}
}

// TestSendBetweenGoroutines builds and releases a deque entirely on
// another goroutine.
func TestSendBetweenGoroutines(t *testing.T) {
	d, err := From([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("From got err %v want nil", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := d.PushBack(4); err != nil {
			return err
		}
		if got := d.Slice(); !slices.Equal(got, []int{1, 2, 3, 4}) {
			t.Errorf("Slice got %v want [1 2 3 4]", got)
		}
		return d.Close()
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait got err %v want nil", err)
	}
}
