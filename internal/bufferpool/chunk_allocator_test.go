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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkAllocatorAcquireWithinOneChunk(t *testing.T) {
	a := NewChunkAllocator(1024, 4096)

	h1, err := a.Acquire(100)
	require.NoError(t, err)
	assert.Len(t, h1.Buf, 100)

	h2, err := a.Acquire(200)
	require.NoError(t, err)
	assert.Len(t, h2.Buf, 200)

	assert.Equal(t, int64(1024), a.TotalAllocated())
}

func TestChunkAllocatorGrowsNewChunkWhenCurrentFull(t *testing.T) {
	a := NewChunkAllocator(100, 1000)

	_, err := a.Acquire(80)
	require.NoError(t, err)
	_, err = a.Acquire(50)
	require.NoError(t, err)

	assert.Equal(t, int64(200), a.TotalAllocated())
}

func TestChunkAllocatorOversizeGetsDedicatedChunk(t *testing.T) {
	a := NewChunkAllocator(100, 10000)

	h, err := a.Acquire(5000)
	require.NoError(t, err)
	assert.Len(t, h.Buf, 5000)
	assert.Equal(t, int64(5000), a.TotalAllocated())
}

func TestChunkAllocatorReleaseAndReuse(t *testing.T) {
	a := NewChunkAllocator(100, 100)

	h, err := a.Acquire(100)
	require.NoError(t, err)
	a.Release(h)

	h2, err := a.Acquire(100)
	require.NoError(t, err)
	assert.Len(t, h2.Buf, 100)
}

func TestChunkAllocatorExhaustionWithoutRelease(t *testing.T) {
	a := NewChunkAllocator(100, 100)

	_, err := a.Acquire(100)
	require.NoError(t, err)

	_, err = a.Acquire(50)
	assert.ErrorIs(t, err, ErrChunkPoolExhausted)
}

func TestChunkAllocatorDedicatedOversizeExhaustion(t *testing.T) {
	a := NewChunkAllocator(100, 1000)

	_, err := a.Acquire(2000)
	assert.ErrorIs(t, err, ErrChunkPoolExhausted)
}
