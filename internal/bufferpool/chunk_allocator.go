// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bufferpool

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrChunkPoolExhausted is returned by ChunkAllocator.Acquire when neither
// a free chunk nor room to grow a new one (within maxTotal) remains.
var ErrChunkPoolExhausted = errors.New("bufferpool: chunk pool exhausted")

// ChunkHandle is an allocation returned by ChunkAllocator.Acquire. Buf is
// sized exactly to the request; Release must be called exactly once, with
// the same handle, when the block data it backs is no longer needed (the
// underlying chunk is reused, not zeroed, on the next Acquire).
type ChunkHandle struct {
	chunkIdx int
	Buf      []byte
}

// ChunkAllocator is a log-structured-allocation-buffer-style slab
// allocator: fixed-size chunks are carved up by bump-pointer allocation
// within a chunk, and whole chunks are recycled only once every block
// referencing them has been released. It exists to avoid per-block heap
// allocation and GC pressure under high append rates; PartitionBuffer
// variants use it when constructed with a non-nil allocator (for a Manager,
// ManagerOptions.Allocator), falling back to a plain Go copy otherwise.
type ChunkAllocator struct {
	mu sync.Mutex

	chunkSize    int64
	maxTotal     int64
	totalAlloced int64

	chunks    []*chunkState
	freeCurrent int // index of the chunk currently being bump-allocated from, or -1
}

type chunkState struct {
	buf      []byte
	offset   int64
	liveRefs int64
}

// NewChunkAllocator builds an allocator that grows up to maxTotal bytes in
// chunkSize increments.
func NewChunkAllocator(chunkSize, maxTotal int64) *ChunkAllocator {
	return &ChunkAllocator{chunkSize: chunkSize, maxTotal: maxTotal, freeCurrent: -1}
}

// Acquire returns n bytes of backing storage, growing the pool by one
// chunk if the current chunk has insufficient room and growth stays within
// maxTotal; n larger than chunkSize is served by a dedicated oversize
// chunk sized exactly to n so a single huge block never blocks normal
// allocation.
func (a *ChunkAllocator) Acquire(n int64) (ChunkHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > a.chunkSize {
		return a.allocDedicated(n)
	}

	if a.freeCurrent >= 0 {
		cs := a.chunks[a.freeCurrent]
		if cs.offset+n <= int64(len(cs.buf)) {
			buf := cs.buf[cs.offset : cs.offset+n]
			cs.offset += n
			cs.liveRefs++
			return ChunkHandle{chunkIdx: a.freeCurrent, Buf: buf}, nil
		}
	}

	if a.totalAlloced+a.chunkSize > a.maxTotal {
		if reused := a.findReusableChunk(n); reused >= 0 {
			cs := a.chunks[reused]
			buf := cs.buf[cs.offset : cs.offset+n]
			cs.offset += n
			cs.liveRefs++
			a.freeCurrent = reused
			return ChunkHandle{chunkIdx: reused, Buf: buf}, nil
		}
		return ChunkHandle{}, ErrChunkPoolExhausted
	}

	cs := &chunkState{buf: make([]byte, a.chunkSize)}
	a.chunks = append(a.chunks, cs)
	idx := len(a.chunks) - 1
	a.totalAlloced += a.chunkSize
	buf := cs.buf[0:n]
	cs.offset = n
	cs.liveRefs = 1
	a.freeCurrent = idx
	return ChunkHandle{chunkIdx: idx, Buf: buf}, nil
}

func (a *ChunkAllocator) allocDedicated(n int64) (ChunkHandle, error) {
	if a.totalAlloced+n > a.maxTotal {
		return ChunkHandle{}, ErrChunkPoolExhausted
	}
	cs := &chunkState{buf: make([]byte, n), offset: n, liveRefs: 1}
	a.chunks = append(a.chunks, cs)
	idx := len(a.chunks) - 1
	a.totalAlloced += n
	return ChunkHandle{chunkIdx: idx, Buf: cs.buf}, nil
}

// findReusableChunk scans for a fully-released chunk with enough room to
// restart bump allocation from zero, avoiding growth once the pool is at
// its cap.
func (a *ChunkAllocator) findReusableChunk(n int64) int {
	for i, cs := range a.chunks {
		if cs.liveRefs == 0 && int64(len(cs.buf)) >= n {
			cs.offset = 0
			return i
		}
	}
	return -1
}

// Release returns one reference on the chunk backing h. Once every
// reference on a chunk is released, the chunk becomes eligible for reuse
// by a future Acquire.
func (a *ChunkAllocator) Release(h ChunkHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h.chunkIdx < 0 || h.chunkIdx >= len(a.chunks) {
		return
	}
	cs := a.chunks[h.chunkIdx]
	if cs.liveRefs > 0 {
		cs.liveRefs--
	}
}

// TotalAllocated reports the total bytes currently held across all chunks.
func (a *ChunkAllocator) TotalAllocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalAlloced
}
