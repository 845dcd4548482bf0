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

	"github.com/samber/lo"

	"github.com/xige-16/shuffle-buffer-pool/internal/log"
)

// bufferBase holds the state and locking discipline shared by every
// PartitionBuffer layout: a resident set still open for append, and an
// in-flight set already hand off to a FlushEvent but not yet completed.
// Append and ToFlushEvent share one mutex because letting a picker observe
// a buffer mid-append (or an append land in a buffer mid-pick) would make
// EncodedLength lie to the scheduler in exactly the window it matters
// most. The concrete layouts only differ in how they insert into
// `resident`; everything else is here.
type bufferBase struct {
	mu sync.Mutex

	resident  []Block
	inFlight  []Block
	evicted   bool
	flushing  bool
	createdAt int64

	allocator *ChunkAllocator
	handles   map[UniqueID]ChunkHandle // by BlockID, only populated when allocator != nil

	insert func(resident []Block, b Block) []Block
}

func newBufferBase(allocator *ChunkAllocator, insert func([]Block, Block) []Block, createdAt int64) bufferBase {
	return bufferBase{
		allocator: allocator,
		handles:   make(map[UniqueID]ChunkHandle),
		insert:    insert,
		createdAt: createdAt,
	}
}

func (b *bufferBase) CreatedAtUnixNano() int64 { return b.createdAt }

func (b *bufferBase) Append(block Block) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.evicted {
		return 0, ErrEvicted
	}

	if b.allocator != nil && len(block.Data) > 0 {
		h, err := b.allocator.Acquire(int64(len(block.Data)))
		if err != nil {
			return 0, err
		}
		copy(h.Buf, block.Data)
		block.Data = h.Buf
		b.handles[block.BlockID] = h
	} else if len(block.Data) > 0 {
		block.Data = append([]byte(nil), block.Data...)
	}

	size := block.DataLen()
	b.resident = b.insert(b.resident, block)
	return size, nil
}

func (b *bufferBase) EncodedLength() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sumLen(b.resident)
}

func (b *bufferBase) BlockCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.resident)
}

func (b *bufferBase) InFlushBlockCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inFlight)
}

func (b *bufferBase) ToFlushEvent(key ShuffleKey, rng PartitionRange, manager FlushManager) (*FlushEvent, error) {
	b.mu.Lock()
	if b.evicted {
		b.mu.Unlock()
		return nil, ErrEvicted
	}
	if b.flushing {
		b.mu.Unlock()
		return nil, ErrFlushInProgress
	}
	if len(b.resident) == 0 {
		b.mu.Unlock()
		return nil, nil
	}

	picked := b.resident
	b.resident = nil
	b.inFlight = append(b.inFlight, picked...)
	b.flushing = true
	length := sumLen(picked)
	b.mu.Unlock()

	isHuge := false
	if manager != nil {
		// distribution type only affects how the external flush manager
		// frames the payload; huge-partition status is decided by the
		// task manager collaborator and threaded in by the scheduler, so
		// this stays false here and is overwritten by the caller when
		// known.
		_ = manager.GetDataDistributionType(key.AppID)
	}

	event := NewFlushEvent(key, rng, picked, length, isHuge, func() {
		b.completeFlush(picked)
	})
	return event, nil
}

func (b *bufferBase) completeFlush(picked []Block) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pickedIDs := make(map[UniqueID]struct{}, len(picked))
	for _, blk := range picked {
		pickedIDs[blk.BlockID] = struct{}{}
		if b.allocator != nil {
			if h, ok := b.handles[blk.BlockID]; ok {
				b.allocator.Release(h)
				delete(b.handles, blk.BlockID)
			}
		}
	}
	b.inFlight = lo.Filter(b.inFlight, func(blk Block, _ int) bool {
		_, dropped := pickedIDs[blk.BlockID]
		return !dropped
	})
	b.flushing = false
}

// GetShuffleData returns a read snapshot starting just after blockId (or
// from the beginning when blockId is 0), accumulating blocks in order until
// readBuf bytes have been collected. readBuf <= 0 means no limit. blockId
// is the last block a caller already consumed, not a byte offset, so a
// caller pages through a buffer by passing back the BlockID of the last
// block it received.
func (b *bufferBase) GetShuffleData(blockId UniqueID, readBuf int64, taskAttemptIDs []UniqueID) ([]Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.evicted {
		return nil, ErrEvicted
	}

	var want map[UniqueID]struct{}
	if len(taskAttemptIDs) > 0 {
		want = make(map[UniqueID]struct{}, len(taskAttemptIDs))
		for _, id := range taskAttemptIDs {
			want[id] = struct{}{}
		}
	}

	candidates := make([]Block, 0, len(b.resident)+len(b.inFlight))
	candidates = append(candidates, b.inFlight...)
	candidates = append(candidates, b.resident...)

	start := 0
	if blockId != 0 {
		for i, blk := range candidates {
			if blk.BlockID == blockId {
				start = i + 1
				break
			}
		}
	}

	var out []Block
	var collected int64
	for _, blk := range candidates[start:] {
		if want != nil {
			if _, ok := want[blk.TaskAttemptID]; !ok {
				continue
			}
		}
		out = append(out, blk)
		collected += blk.DataLen()
		if readBuf > 0 && collected >= readBuf {
			break
		}
	}
	return out, nil
}

// Release discards the buffer unconditionally and returns only the
// resident (not-yet-in-flight) bytes it held. Any blocks already part of
// an outstanding FlushEvent are left to that event's own Complete call to
// reconcile with the accountant, so a caller must not also subtract those
// bytes itself: double-accounting them here would under-count inFlush
// once the pending flush eventually completes.
func (b *bufferBase) Release() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.evicted {
		return 0
	}
	residentLen := sumLen(b.resident)
	if b.allocator != nil {
		for id, h := range b.handles {
			if !b.blockInFlight(id) {
				b.allocator.Release(h)
				delete(b.handles, id)
			}
		}
	}
	b.resident = nil
	b.evicted = true
	if residentLen > 0 {
		log.Debug("bufferpool: partition buffer released")
	}
	return residentLen
}

func (b *bufferBase) blockInFlight(id UniqueID) bool {
	for _, blk := range b.inFlight {
		if blk.BlockID == id {
			return true
		}
	}
	return false
}

func sumLen(blocks []Block) int64 {
	var n int64
	for _, b := range blocks {
		n += b.DataLen()
	}
	return n
}
