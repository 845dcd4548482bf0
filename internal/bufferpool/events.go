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

import "go.uber.org/atomic"

// FlushEvent is the handoff unit a PartitionBuffer produces for the
// external flush manager: the picked blocks, the range they belong to, and
// a Complete callback that releases the accountant's inFlush reservation
// and the buffer's own in-flush shadow set.
//
// Complete is idempotent by construction: a flush manager that retries a
// failed write, or that races a drop against a completion notification,
// may call Complete more than once, and only the first call takes effect.
// This resolves the double-release risk of driving cleanup off of queue
// removal (an event can be removed from a queue more than once in a retry
// path) by making the event itself, not the queue, own the one-shot state.
type FlushEvent struct {
	Key           ShuffleKey
	Range         PartitionRange
	Blocks        []Block
	EncodedLength int64
	IsHuge        bool

	completed atomic.Bool
	cleanup   func()
}

// NewFlushEvent constructs an event with cleanup as its one-shot release
// hook.
func NewFlushEvent(key ShuffleKey, rng PartitionRange, blocks []Block, encodedLength int64, isHuge bool, cleanup func()) *FlushEvent {
	return &FlushEvent{
		Key:           key,
		Range:         rng,
		Blocks:        blocks,
		EncodedLength: encodedLength,
		IsHuge:        isHuge,
		cleanup:       cleanup,
	}
}

// Complete runs the release hook exactly once across however many times it
// is called, from however many goroutines.
func (e *FlushEvent) Complete() {
	if e.completed.CompareAndSwap(false, true) {
		if e.cleanup != nil {
			e.cleanup()
		}
	}
}

// IsCompleted reports whether Complete has already run.
func (e *FlushEvent) IsCompleted() bool {
	return e.completed.Load()
}
