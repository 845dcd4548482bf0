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

func newTestManager(t *testing.T, capacity int64, cfg SchedulerConfig, fm FlushManager) *Manager {
	t.Helper()
	var tick int64
	return NewManager(ManagerOptions{
		Capacity:     capacity,
		ReadCapacity: capacity,
		BufferType:   BufferTypeLinkedList,
		Scheduler:    cfg,
		FlushManager: fm,
		NowUnixNano: func() int64 {
			tick++
			return tick
		},
	})
}

func TestManagerRegisterAppendFlushRoundTrip(t *testing.T) {
	fm := &recordingFlushManager{}
	cfg := SchedulerConfig{FlushTryLockTimeout: 50 * time.Millisecond}
	m := newTestManager(t, 10000, cfg, fm)

	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	require.Equal(t, Success, m.RegisterBuffer(key, rng))

	require.Equal(t, Success, m.RequireMemory(5))
	require.Equal(t, Success, m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: []byte("hello")}, true))

	blocks, code := m.GetShuffleData(key, 3, 0, 0, nil)
	require.Equal(t, Success, code)
	require.Len(t, blocks, 1)
	assert.Equal(t, []byte("hello"), blocks[0].Data)

	require.Equal(t, Success, m.CommitShuffleTask(key))
	assert.Len(t, fm.dispatchedKeys(), 1)
}

func TestManagerAdmissionRefusalOverCapacity(t *testing.T) {
	m := newTestManager(t, 100, SchedulerConfig{}, &recordingFlushManager{})

	assert.Equal(t, Success, m.RequireMemory(80))
	assert.Equal(t, NoBuffer, m.RequireMemory(80))
}

// TestManagerUnreservedAppendRefusedWhenFull is the unreserved half of the
// two-mode reserve-then-append facade: capacity is exhausted entirely
// through preAllocated appends, then a caller that never reserved anything
// must be turned away with NoBuffer rather than silently overrunning used.
func TestManagerUnreservedAppendRefusedWhenFull(t *testing.T) {
	m := newTestManager(t, 100, SchedulerConfig{}, &recordingFlushManager{})
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	require.Equal(t, Success, m.RegisterBuffer(key, rng))

	require.Equal(t, Success, m.RequireMemory(100))
	require.Equal(t, Success, m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: make([]byte, 100)}, true))

	code := m.CacheShuffleData(key, 3, Block{BlockID: 2, Data: make([]byte, 10)}, false)
	assert.Equal(t, NoBuffer, code)
}

// TestManagerUnreservedAppendAccountsUsedDirectly exercises the other half:
// an append below capacity with preAllocated=false must still land in used
// even though nothing was ever reserved for it.
func TestManagerUnreservedAppendAccountsUsedDirectly(t *testing.T) {
	m := newTestManager(t, 100, SchedulerConfig{}, &recordingFlushManager{})
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	require.Equal(t, Success, m.RegisterBuffer(key, rng))

	code := m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: make([]byte, 10)}, false)
	require.Equal(t, Success, code)
	assert.Equal(t, int64(10), m.Accountant().Used())
	assert.Equal(t, int64(0), m.Accountant().PreAllocated())
}

func TestManagerUnregisteredPartitionReturnsNoRegister(t *testing.T) {
	m := newTestManager(t, 1000, SchedulerConfig{}, &recordingFlushManager{})
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}

	code := m.CacheShuffleData(key, 5, Block{BlockID: 1, Data: []byte("x")}, false)
	assert.Equal(t, NoRegister, code)

	_, code = m.GetShuffleData(key, 5, 0, 0, nil)
	assert.Equal(t, NoRegister, code)
}

func TestManagerRegisterBufferRefusedForExpiredApp(t *testing.T) {
	tm := NewDefaultTaskManager(0)
	m := NewManager(ManagerOptions{
		Capacity:    1000,
		TaskManager: tm,
		NowUnixNano: func() int64 { return 1 },
	})

	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	tm.GetAppReadLock(key.AppID)
	tm.MarkAppExpired(key.AppID)

	code := m.RegisterBuffer(key, PartitionRange{Lo: 0, Hi: 9})
	assert.Equal(t, InternalError, code)
}

func TestManagerEvictionTerminatesSubsequentAppends(t *testing.T) {
	m := newTestManager(t, 1000, SchedulerConfig{}, &recordingFlushManager{})
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}

	require.Equal(t, Success, m.RegisterBuffer(key, rng))
	require.Equal(t, Success, m.RequireMemory(1))
	require.Equal(t, Success, m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: []byte("x")}, true))

	require.Equal(t, Success, m.RemoveBufferByShuffleId(key))

	code := m.CacheShuffleData(key, 3, Block{BlockID: 2, Data: []byte("y")}, true)
	assert.Equal(t, NoRegister, code)
}

func TestManagerRemoveBufferReleasesAccountedMemory(t *testing.T) {
	m := newTestManager(t, 1000, SchedulerConfig{}, &recordingFlushManager{})
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}

	require.Equal(t, Success, m.RegisterBuffer(key, rng))
	require.Equal(t, Success, m.RequireMemory(100))
	require.Equal(t, Success, m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: make([]byte, 100)}, true))
	assert.Equal(t, int64(100), m.Accountant().Used())

	require.Equal(t, Success, m.RemoveBuffer("app1"))
	assert.Equal(t, int64(0), m.Accountant().Used())
}

func TestManagerFastPathDispatchesOnHotPartition(t *testing.T) {
	fm := &recordingFlushManager{}
	cfg := SchedulerConfig{
		SingleBufferFlushEnabled:        true,
		SingleBufferFlushThresholdBytes: 50,
		SingleBufferFlushBlocks:         1000,
		FlushTryLockTimeout:             50 * time.Millisecond,
	}
	m := newTestManager(t, 10000, cfg, fm)
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	require.Equal(t, Success, m.RegisterBuffer(key, rng))

	require.Equal(t, Success, m.RequireMemory(100))
	require.Equal(t, Success, m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: make([]byte, 100)}, true))

	assert.Len(t, fm.dispatchedKeys(), 1)
}

func TestManagerBufferFlushWhenCachingDataDispatchesAsync(t *testing.T) {
	fm := &recordingFlushManager{}
	cfg := SchedulerConfig{
		HighWatermark:              50,
		LowWatermark:               10,
		ShuffleFlushThreshold:      1,
		FlushTryLockTimeout:        50 * time.Millisecond,
		BufferFlushWhenCachingData: true,
	}
	m := newTestManager(t, 10000, cfg, fm)
	defer m.Close()

	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	require.Equal(t, Success, m.RegisterBuffer(key, rng))

	require.Equal(t, Success, m.RequireMemory(100))
	require.Equal(t, Success, m.CacheShuffleData(key, 3, Block{BlockID: 1, Data: make([]byte, 100)}, true))

	// CacheShuffleData only nudges flushLoop; the picker round runs on a
	// separate goroutine, so the dispatch may not be visible immediately.
	require.Eventually(t, func() bool {
		return len(fm.dispatchedKeys()) == 1
	}, time.Second, time.Millisecond)
}

func TestManagerConcurrentAppendsAndRemoveDoNotPanic(t *testing.T) {
	m := newTestManager(t, 1_000_000, SchedulerConfig{FlushTryLockTimeout: 10 * time.Millisecond}, &recordingFlushManager{})
	key := ShuffleKey{AppID: "app1", ShuffleID: 1}
	rng := PartitionRange{Lo: 0, Hi: 9}
	require.Equal(t, Success, m.RegisterBuffer(key, rng))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.RequireMemory(1)
			m.CacheShuffleData(key, 3, Block{BlockID: UniqueID(id), Data: []byte("x")}, true)
		}(i)
	}
	wg.Wait()

	m.RemoveBufferByShuffleId(key)
}
