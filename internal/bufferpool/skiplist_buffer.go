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

import "sort"

// SkipListBuffer is the ordered PartitionBuffer variant: Append keeps the
// resident set sorted by (taskAttemptId, seqNo) via binary-search
// insertion, so a reader asking for one task attempt's data back gets it
// already in write order without a sort at read time. Insertion is
// O(log n) to find the position and O(n) to shift, which is the right
// tradeoff for partitions read far more often than a single append burst
// is large (the common case for speculative-execution retries, where a
// handful of attempts replace each other's output).
//
// No third-party skip-list survived this repo's dependency list, so this
// keeps the same ordering guarantee with a sorted slice rather than a true
// skip list; see the design notes for why that's the right call here
// rather than hand-rolling a probabilistic list structure.
type SkipListBuffer struct {
	bufferBase
}

// NewSkipListBuffer constructs a SkipListBuffer.
func NewSkipListBuffer(allocator *ChunkAllocator, createdAtUnixNano int64) *SkipListBuffer {
	buf := &SkipListBuffer{}
	buf.bufferBase = newBufferBase(allocator, sortedInsert, createdAtUnixNano)
	return buf
}

func sortedInsert(resident []Block, b Block) []Block {
	i := sort.Search(len(resident), func(i int) bool {
		if resident[i].TaskAttemptID != b.TaskAttemptID {
			return resident[i].TaskAttemptID >= b.TaskAttemptID
		}
		return resident[i].SeqNo >= b.SeqNo
	})
	resident = append(resident, Block{})
	copy(resident[i+1:], resident[i:])
	resident[i] = b
	return resident
}

var _ PartitionBuffer = (*SkipListBuffer)(nil)
