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

// Block is one opaque shuffle-write payload cached for a partition. Callers
// own Data's backing array; a Block is never mutated once appended.
type Block struct {
	BlockID         UniqueID
	TaskAttemptID   UniqueID
	SeqNo           int64
	UncompressedLen int64
	CRC             uint32
	Data            []byte
}

// DataLen is the accounted size of the block: len(Data), not
// UncompressedLen, since UncompressedLen only documents the pre-compression
// size for downstream consumers and never drives admission accounting.
func (b Block) DataLen() int64 {
	return int64(len(b.Data))
}

// byTaskAttemptThenSeq orders blocks the way the skip-list-style partition
// buffer keeps them: grouped by task attempt, ordered by seqNo within a
// task attempt, so a reader sees one writer's output in write order even
// when attempts interleave during a retry.
type byTaskAttemptThenSeq []Block

func (s byTaskAttemptThenSeq) Len() int      { return len(s) }
func (s byTaskAttemptThenSeq) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byTaskAttemptThenSeq) Less(i, j int) bool {
	if s[i].TaskAttemptID != s[j].TaskAttemptID {
		return s[i].TaskAttemptID < s[j].TaskAttemptID
	}
	return s[i].SeqNo < s[j].SeqNo
}
