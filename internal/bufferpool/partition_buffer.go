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

// PartitionBuffer holds the cached blocks for one partition between append
// and flush. Implementations synchronize Append and ToFlushEvent against
// each other with a single per-buffer mutex (they are mutually exclusive:
// a buffer being drained for flush must not accept new blocks into the
// picked set, and vice versa), and hand out read snapshots without
// blocking writers for longer than a copy.
//
// Two layouts are provided: the linked-list variant (LinkedListBuffer,
// arrival order, O(1) append) and the skip-list-style variant
// (SkipListBuffer, kept ordered by (taskAttemptId, seqNo) via sorted
// insertion, for consumers that read back in deterministic per-attempt
// order). Both optionally delegate block storage to a ChunkAllocator when
// constructed with one, folding the {layout} x {allocator} combinations
// spec.md's design notes call a "four-way variant set" into composition
// instead of four separate types.
type PartitionBuffer interface {
	// Append adds a block to the buffer, returning the number of bytes
	// newly accounted. Returns ErrEvicted once the buffer has been
	// released.
	Append(block Block) (int64, error)

	// EncodedLength is the accounted byte size of blocks currently held
	// and not yet handed off to a flush. Once ToFlushEvent picks a block
	// it moves into the in-flight set and stops counting here, so this
	// never double-counts bytes a FlushEvent is already responsible for.
	EncodedLength() int64

	// BlockCount is the number of blocks currently resident.
	BlockCount() int

	// InFlushBlockCount is the number of blocks currently part of an
	// in-flight, uncompleted FlushEvent.
	InFlushBlockCount() int

	// ToFlushEvent picks every block not already in flight, marks them
	// in flight, and returns a FlushEvent referencing them. Returns
	// ErrFlushInProgress if a prior event from this buffer has not yet
	// completed (single-flush-at-a-time per buffer).
	ToFlushEvent(key ShuffleKey, rng PartitionRange, manager FlushManager) (*FlushEvent, error)

	// GetShuffleData returns a read snapshot starting just after blockId
	// (0 means from the beginning), collecting blocks until readBuf bytes
	// have been gathered (readBuf <= 0 means no limit), restricted to
	// taskAttemptIDs when non-empty.
	GetShuffleData(blockId UniqueID, readBuf int64, taskAttemptIDs []UniqueID) ([]Block, error)

	// Release evicts the buffer unconditionally (used on app/shuffle
	// teardown), returning the number of resident bytes it held. Bytes of
	// an outstanding FlushEvent are not included; that event's Complete
	// accounts for them.
	Release() int64

	// CreatedAtUnixNano is the buffer's creation time in Unix nanoseconds.
	CreatedAtUnixNano() int64
}
