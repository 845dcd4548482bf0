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
	"go.uber.org/atomic"

	"github.com/xige-16/shuffle-buffer-pool/internal/typeutil"
)

// ShuffleSizeIndex mirrors each shuffle's aggregate cached size so the
// watermark picker can rank shuffles by size without walking every
// partition buffer on every pick round. Kept approximate-but-close: it is
// updated on every append and flush dispatch, not recomputed from scratch.
type ShuffleSizeIndex struct {
	sizes *typeutil.ConcurrentMap[ShuffleKey, *atomic.Int64]
}

func NewShuffleSizeIndex() *ShuffleSizeIndex {
	return &ShuffleSizeIndex{sizes: typeutil.NewConcurrentMap[ShuffleKey, *atomic.Int64]()}
}

// Add applies delta (positive on append, negative on flush dispatch) to
// key's aggregate.
func (idx *ShuffleSizeIndex) Add(key ShuffleKey, delta int64) {
	if delta == 0 {
		return
	}
	counter, _ := idx.sizes.GetOrInsert(key, atomic.NewInt64(0))
	counter.Add(delta)
}

// Get returns key's current aggregate size.
func (idx *ShuffleSizeIndex) Get(key ShuffleKey) int64 {
	counter, ok := idx.sizes.Get(key)
	if !ok {
		return 0
	}
	return counter.Load()
}

// Remove drops key's entry entirely (on shuffle teardown).
func (idx *ShuffleSizeIndex) Remove(key ShuffleKey) {
	idx.sizes.Remove(key)
}

// Snapshot returns every tracked key paired with its current size.
func (idx *ShuffleSizeIndex) Snapshot() map[ShuffleKey]int64 {
	out := make(map[ShuffleKey]int64, idx.sizes.Len())
	idx.sizes.Range(func(key ShuffleKey, counter *atomic.Int64) bool {
		out[key] = counter.Load()
		return true
	})
	return out
}
