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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFlushManager struct {
	mu     sync.Mutex
	events []*FlushEvent
}

func (f *recordingFlushManager) AddToFlushQueue(event *FlushEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	event.Complete()
}

func (f *recordingFlushManager) GetDataDistributionType(string) DistributionType {
	return DistributionHash
}

func (f *recordingFlushManager) dispatchedKeys() []ShuffleKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ShuffleKey, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Key)
	}
	return out
}

func fillBuffer(t *testing.T, buf PartitionBuffer, size int64) {
	t.Helper()
	_, err := buf.Append(Block{BlockID: 1, Data: make([]byte, size)})
	require.NoError(t, err)
}

func TestFastPathFlushDispatchesSingleHotBuffer(t *testing.T) {
	cfg := SchedulerConfig{
		SingleBufferFlushEnabled:        true,
		SingleBufferFlushThresholdBytes: 100,
		SingleBufferFlushBlocks:         1000,
		FlushTryLockTimeout:             50 * time.Millisecond,
	}
	scheduler := NewFlushScheduler(cfg, nil)
	tm := NewDefaultTaskManager(0)
	fm := &recordingFlushManager{}
	sizeIndex := NewShuffleSizeIndex()
	acct := NewAccountant(100000, 0, nil)

	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	buf := NewLinkedListBuffer(nil, 0)
	fillBuffer(t, buf, 150)
	sizeIndex.Add(key, 150)

	scheduler.MaybeFastPathFlush(key, rng, buf, tm, fm, sizeIndex, acct)

	assert.Len(t, fm.dispatchedKeys(), 1)
	assert.Equal(t, int64(0), sizeIndex.Get(key))
}

func TestFastPathFlushSkipsBelowThreshold(t *testing.T) {
	cfg := SchedulerConfig{
		SingleBufferFlushEnabled:        true,
		SingleBufferFlushThresholdBytes: 1000,
		SingleBufferFlushBlocks:         1000,
		FlushTryLockTimeout:             50 * time.Millisecond,
	}
	scheduler := NewFlushScheduler(cfg, nil)
	tm := NewDefaultTaskManager(0)
	fm := &recordingFlushManager{}
	sizeIndex := NewShuffleSizeIndex()
	acct := NewAccountant(100000, 0, nil)

	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	buf := NewLinkedListBuffer(nil, 0)
	fillBuffer(t, buf, 150)

	scheduler.MaybeFastPathFlush(key, rng, buf, tm, fm, sizeIndex, acct)

	assert.Empty(t, fm.dispatchedKeys())
}

// TestWatermarkPickerFairness reproduces the worked example: shuffle sizes
// [600, 300, 150, 90], highWatermark=800, lowWatermark=400, capacity=1000.
// need = 400, half = 200. The picker always takes the largest shuffle
// (600 > shuffleFlushThreshold) and then stops once picked >= need, so only
// the single 600-byte shuffle should be dispatched.
func TestWatermarkPickerFairness(t *testing.T) {
	cfg := SchedulerConfig{
		HighWatermark:         800,
		LowWatermark:          400,
		ShuffleFlushThreshold: 500,
		FlushTryLockTimeout:   50 * time.Millisecond,
	}
	scheduler := NewFlushScheduler(cfg, nil)
	tm := NewDefaultTaskManager(0)
	fm := &recordingFlushManager{}
	sizeIndex := NewShuffleSizeIndex()
	acct := NewAccountant(1000, 0, nil)

	sizes := map[ShuffleKey]int64{
		{AppID: "app1", ShuffleID: 1}: 600,
		{AppID: "app1", ShuffleID: 2}: 300,
		{AppID: "app1", ShuffleID: 3}: 150,
		{AppID: "app1", ShuffleID: 4}: 90,
	}
	buffers := make(map[ShuffleKey]PartitionBuffer)
	for key, size := range sizes {
		buf := NewLinkedListBuffer(nil, 0)
		fillBuffer(t, buf, size)
		sizeIndex.Add(key, size)
		buffers[key] = buf
	}
	require.True(t, acct.RequireWriteMemory(1000))
	acct.CommitAppend(1000)

	lookup := func(key ShuffleKey) []RangeBufferPair {
		return []RangeBufferPair{{Range: PartitionRange{Lo: 0, Hi: 9}, Buf: buffers[key]}}
	}

	scheduler.MaybeWatermarkFlush(acct, sizeIndex, tm, fm, lookup)

	dispatched := fm.dispatchedKeys()
	require.Len(t, dispatched, 1)
	assert.Equal(t, ShuffleKey{AppID: "app1", ShuffleID: 1}, dispatched[0])
}

// TestWatermarkPickerStopsOnceNeedSatisfied checks the fairness half rule
// on its own: no shuffle clears shuffleFlushThreshold, so the largest one is
// picked only because nothing has been picked yet, and since it alone
// satisfies need the picker takes no further shuffles.
func TestWatermarkPickerStopsOnceNeedSatisfied(t *testing.T) {
	cfg := SchedulerConfig{
		HighWatermark:         800,
		LowWatermark:          400,
		ShuffleFlushThreshold: 10000, // nothing crosses this alone
		FlushTryLockTimeout:   50 * time.Millisecond,
	}
	scheduler := NewFlushScheduler(cfg, nil)
	tm := NewDefaultTaskManager(0)
	fm := &recordingFlushManager{}
	sizeIndex := NewShuffleSizeIndex()
	acct := NewAccountant(1000, 0, nil)

	sizes := map[ShuffleKey]int64{
		{AppID: "app1", ShuffleID: 1}: 600,
		{AppID: "app1", ShuffleID: 2}: 300,
		{AppID: "app1", ShuffleID: 3}: 150,
		{AppID: "app1", ShuffleID: 4}: 90,
	}
	buffers := make(map[ShuffleKey]PartitionBuffer)
	for key, size := range sizes {
		buf := NewLinkedListBuffer(nil, 0)
		fillBuffer(t, buf, size)
		sizeIndex.Add(key, size)
		buffers[key] = buf
	}
	require.True(t, acct.RequireWriteMemory(1000))
	acct.CommitAppend(1000)

	lookup := func(key ShuffleKey) []RangeBufferPair {
		return []RangeBufferPair{{Range: PartitionRange{Lo: 0, Hi: 9}, Buf: buffers[key]}}
	}

	scheduler.MaybeWatermarkFlush(acct, sizeIndex, tm, fm, lookup)

	// need=400; picking 600 alone already exceeds need, so the picker still
	// stops after one shuffle even though it didn't cross the (very high)
	// per-shuffle threshold, because 600 >= need=400.
	dispatched := fm.dispatchedKeys()
	require.Len(t, dispatched, 1)
	assert.Equal(t, ShuffleKey{AppID: "app1", ShuffleID: 1}, dispatched[0])
}

func TestWatermarkPickerNoopBelowHighWatermark(t *testing.T) {
	cfg := SchedulerConfig{
		HighWatermark:         800,
		LowWatermark:          400,
		ShuffleFlushThreshold: 500,
		FlushTryLockTimeout:   50 * time.Millisecond,
	}
	scheduler := NewFlushScheduler(cfg, nil)
	tm := NewDefaultTaskManager(0)
	fm := &recordingFlushManager{}
	sizeIndex := NewShuffleSizeIndex()
	acct := NewAccountant(1000, 0, nil)

	require.True(t, acct.RequireWriteMemory(100))
	acct.CommitAppend(100)

	scheduler.MaybeWatermarkFlush(acct, sizeIndex, tm, fm, func(ShuffleKey) []RangeBufferPair { return nil })

	assert.Empty(t, fm.dispatchedKeys())
}
