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

// LinkedListBuffer is the arrival-order PartitionBuffer: Append is O(1)
// (amortized slice growth), matching the common case where callers only
// ever need to flush everything a partition has received, in the order it
// arrived. This is the default BufferType.
type LinkedListBuffer struct {
	bufferBase
}

// NewLinkedListBuffer constructs a LinkedListBuffer. allocator may be nil,
// in which case each Append makes its own copy of the block's backing
// array via plain Go allocation.
func NewLinkedListBuffer(allocator *ChunkAllocator, createdAtUnixNano int64) *LinkedListBuffer {
	buf := &LinkedListBuffer{}
	buf.bufferBase = newBufferBase(allocator, appendInsert, createdAtUnixNano)
	return buf
}

func appendInsert(resident []Block, b Block) []Block {
	return append(resident, b)
}

var _ PartitionBuffer = (*LinkedListBuffer)(nil)
