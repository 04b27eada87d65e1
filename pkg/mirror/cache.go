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
	"github.com/google/btree"

	"github.com/gnzlbg/slice-deque/pkg/hostmem"
)

type cacheEntry struct {
	size uintptr
	seq  uint64
	buf  *Buffer
}

func cacheLess(a, b cacheEntry) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.seq < b.seq
}

// Cache retains released buffers for reuse, avoiding the map/unmap round
// trip for common sizes. A Cache is single-owner: it is not synchronized
// and must stay confined to one goroutine.
type Cache struct {
	free     *btree.BTreeG[cacheEntry]
	bytes    uintptr
	maxBytes uintptr
	seq      uint64
}

// NewCache returns a cache retaining at most maxBytes of released
// mappings.
func NewCache(maxBytes uintptr) *Cache {
	return &Cache{
		free:     btree.NewG(8, cacheLess),
		maxBytes: maxBytes,
	}
}

// Allocate returns a retained buffer when one of a suitable size is
// available, and falls through to Allocate otherwise. A retained buffer is
// suitable when its size is at least the rounded request and at most twice
// it, which bounds how much capacity a reuse can silently over-deliver.
func (c *Cache) Allocate(minBytes uintptr) (*Buffer, error) {
	if minBytes == 0 {
		minBytes = 1
	}
	want, ok := hostmem.RoundUp(minBytes)
	if !ok {
		return nil, ErrOversize
	}
	var hit cacheEntry
	found := false
	c.free.AscendGreaterOrEqual(cacheEntry{size: want}, func(e cacheEntry) bool {
		if e.size <= 2*want {
			hit = e
			found = true
		}
		return false
	})
	if found {
		c.free.Delete(hit)
		c.bytes -= hit.size
		return hit.buf, nil
	}
	return Allocate(minBytes)
}

// Release hands a buffer back to the cache. Buffers that do not fit the
// byte bound are freed; when retaining one pushes the cache over the
// bound, the largest retained buffers are evicted first.
func (c *Cache) Release(b *Buffer) error {
	if b == nil || b.base == nil {
		return nil
	}
	if b.size > c.maxBytes {
		return b.Free()
	}
	c.seq++
	c.free.ReplaceOrInsert(cacheEntry{size: b.size, seq: c.seq, buf: b})
	c.bytes += b.size
	for c.bytes > c.maxBytes {
		e, ok := c.free.DeleteMax()
		if !ok {
			break
		}
		c.bytes -= e.size
		if err := e.buf.Free(); err != nil {
			return err
		}
	}
	return nil
}

// Retained returns the total bytes currently held by the cache.
func (c *Cache) Retained() uintptr {
	return c.bytes
}

// Drain frees every retained buffer.
func (c *Cache) Drain() error {
	var first error
	for {
		e, ok := c.free.DeleteMax()
		if !ok {
			break
		}
		c.bytes -= e.size
		if err := e.buf.Free(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
