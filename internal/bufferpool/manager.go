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
	"time"

	"go.uber.org/zap"

	"github.com/xige-16/shuffle-buffer-pool/internal/log"
	"github.com/xige-16/shuffle-buffer-pool/internal/metrics"
	"github.com/xige-16/shuffle-buffer-pool/internal/typeutil"
)

// Manager is the buffer pool's public facade: the only type most callers
// need to import. It owns the appId -> shuffleId -> RangeIndex table, the
// Accountant, the ShuffleSizeIndex, and the FlushScheduler, and wires them
// together so a caller never has to get the lock-hierarchy or
// accounting-symmetry rules right themselves.
type Manager struct {
	acct      *Accountant
	scheduler *FlushScheduler
	sizeIndex *ShuffleSizeIndex

	taskManager  TaskManager
	flushManager FlushManager

	allocator *ChunkAllocator
	bufferType BufferType

	// shuffles[appID][shuffleID] -> *RangeIndex
	shuffles *typeutil.ConcurrentMap[string, *typeutil.ConcurrentMap[UniqueID, *RangeIndex]]

	nowUnixNano func() int64

	// flushSignal is the bounded-recursion valve for
	// SchedulerConfig.BufferFlushWhenCachingData: CacheShuffleData never
	// runs a watermark picker round on its own goroutine, it only ever
	// nudges this channel, which flushLoop drains on a single dedicated
	// goroutine. A full channel means a round is already pending, so the
	// nudge is dropped rather than blocking the append path.
	flushSignal chan struct{}
	closeOnce   sync.Once
	closed      chan struct{}
}

// ManagerOptions configures NewManager.
type ManagerOptions struct {
	Capacity     int64
	ReadCapacity int64
	BufferType   BufferType
	Scheduler    SchedulerConfig
	Allocator    *ChunkAllocator // nil disables LAB-backed storage
	TaskManager  TaskManager     // nil uses NewDefaultTaskManager()
	FlushManager FlushManager
	Sink         metrics.Sink // nil uses metrics.NoopSink{}
	NowUnixNano  func() int64 // nil uses time.Now().UnixNano

	// HugePartitionSizeThreshold only applies when TaskManager is nil,
	// configuring the constructed DefaultTaskManager's IsHugePartition.
	HugePartitionSizeThreshold int64
}

// NewManager builds a Manager ready to accept RegisterBuffer calls.
func NewManager(opts ManagerOptions) *Manager {
	sink := opts.Sink
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	tm := opts.TaskManager
	if tm == nil {
		tm = NewDefaultTaskManager(opts.HugePartitionSizeThreshold)
	}
	now := opts.NowUnixNano
	if now == nil {
		now = func() int64 { return time.Now().UnixNano() }
	}

	m := &Manager{
		acct:         NewAccountant(opts.Capacity, opts.ReadCapacity, sink),
		scheduler:    NewFlushScheduler(opts.Scheduler, sink),
		sizeIndex:    NewShuffleSizeIndex(),
		taskManager:  tm,
		flushManager: opts.FlushManager,
		allocator:    opts.Allocator,
		bufferType:   opts.BufferType,
		shuffles:     typeutil.NewConcurrentMap[string, *typeutil.ConcurrentMap[UniqueID, *RangeIndex]](),
		nowUnixNano:  now,
		flushSignal:  make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// flushLoop is the dedicated goroutine BufferFlushWhenCachingData hands
// watermark-picker work off to, so the append path itself never recurses
// into a picker round.
func (m *Manager) flushLoop() {
	for {
		select {
		case <-m.flushSignal:
			m.scheduler.MaybeWatermarkFlush(m.acct, m.sizeIndex, m.taskManager, m.flushManager, m.lookupShuffle)
		case <-m.closed:
			return
		}
	}
}

// Close stops the background flush-picker goroutine. Safe to call multiple
// times; safe to skip entirely for short-lived Managers such as tests.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// UpdateSchedulerConfig installs new scheduler thresholds at runtime (the
// watermark-reconfiguration path); callers typically wire this to
// BufferPoolConfig.UpdateWatermarks's result.
func (m *Manager) UpdateSchedulerConfig(cfg SchedulerConfig) {
	m.scheduler.UpdateConfig(cfg)
}

func (m *Manager) shuffleIndex(appID string) *typeutil.ConcurrentMap[UniqueID, *RangeIndex] {
	idx, _ := m.shuffles.GetOrInsert(appID, typeutil.NewConcurrentMap[UniqueID, *RangeIndex]())
	return idx
}

func (m *Manager) rangeIndex(key ShuffleKey) (*RangeIndex, bool) {
	appIdx, ok := m.shuffles.Get(key.AppID)
	if !ok {
		return nil, false
	}
	return appIdx.Get(key.ShuffleID)
}

func (m *Manager) newBuffer() PartitionBuffer {
	now := m.nowUnixNano()
	switch m.bufferType {
	case BufferTypeSkipList:
		return NewSkipListBuffer(m.allocator, now)
	default:
		return NewLinkedListBuffer(m.allocator, now)
	}
}

// RegisterBuffer maps rng to a freshly created PartitionBuffer for key,
// replacing any prior registration overlapping rng. Returns Success, or
// InternalError if key.AppID's app has already expired.
func (m *Manager) RegisterBuffer(key ShuffleKey, rng PartitionRange) ResultCode {
	if m.taskManager.IsAppExpired(key.AppID) {
		return InternalError
	}
	idx := m.shuffleIndex(key.AppID)
	rangeIdx, _ := idx.GetOrInsert(key.ShuffleID, NewRangeIndex())
	rangeIdx.PutRange(rng, m.newBuffer())
	return Success
}

// RequireMemory reserves n bytes of write budget ahead of an append.
// Returns NoBuffer if the reservation would exceed capacity.
func (m *Manager) RequireMemory(n int64) ResultCode {
	if m.acct.RequireWriteMemory(n) {
		return Success
	}
	return NoBuffer
}

// ReleasePreAllocatedSize gives back a reservation that was never (or only
// partially) consumed by an append; see Accountant.ReleasePreAllocatedSize.
func (m *Manager) ReleasePreAllocatedSize(n int64) {
	m.acct.ReleasePreAllocatedSize(n)
}

// CacheShuffleData appends block to the buffer registered for key/pid, then
// runs the single-buffer fast path and, when BufferFlushWhenCachingData is
// set, nudges flushLoop to run a watermark picker round on its own
// goroutine.
//
// preAllocated tells CacheShuffleData which half of the two-mode
// reserve-then-append facade the caller is using. When true, the caller
// already reserved size bytes via RequireMemory, so the append only
// converts that reservation into committed memory (preAllocated shrinks,
// used is unchanged). When false, the caller never reserved anything, so
// CacheShuffleData runs its own admission check (refusing with NoBuffer
// once the accountant is full) and then adds size bytes to used directly.
//
// Returns NoRegister if no buffer is registered for this partition,
// NoBuffer if the accountant has no room for an unreserved append or the
// buffer has already been evicted out from under the caller (a race with
// teardown or a flush the caller didn't know completed), Success
// otherwise.
func (m *Manager) CacheShuffleData(key ShuffleKey, pid UniqueID, block Block, preAllocated bool) ResultCode {
	rangeIdx, ok := m.rangeIndex(key)
	if !ok {
		return NoRegister
	}
	entry, ok := rangeIdx.GetEntryByPoint(pid)
	if !ok {
		return NoRegister
	}

	if !preAllocated && m.acct.IsFull() {
		return NoBuffer
	}

	size, err := entry.Buf.Append(block)
	if err != nil {
		log.Warn("bufferpool: append failed", zap.String("shuffle", key.String()), zap.Error(err))
		return NoBuffer
	}
	if preAllocated {
		m.acct.CommitAppend(size)
	} else {
		m.acct.AddUsedMemory(size)
	}
	m.sizeIndex.Add(key, size)
	m.acct.sink.ObserveAppendBlockSize(key.AppID, size)

	m.scheduler.MaybeFastPathFlush(key, entry.Range, entry.Buf, m.taskManager, m.flushManager, m.sizeIndex, m.acct)

	if m.scheduler.Config().BufferFlushWhenCachingData {
		select {
		case m.flushSignal <- struct{}{}:
		default:
			// a round is already pending on flushLoop; dropping the nudge
			// is fine, it would have found the same snapshot anyway.
		}
	}

	return Success
}

func (m *Manager) lookupShuffle(key ShuffleKey) []RangeBufferPair {
	rangeIdx, ok := m.rangeIndex(key)
	if !ok {
		return nil
	}
	return rangeIdx.Entries()
}

// GetShuffleData returns the cached blocks for partition pid of key,
// starting just after blockId (0 for the first call) and collecting up to
// readBuf bytes (readBuf <= 0 for no limit), restricted to taskAttemptIDs
// when non-empty. The bytes returned are reserved against the read budget
// before this returns; a caller must release them with ReleaseReadMemory
// once it is done with the data.
func (m *Manager) GetShuffleData(key ShuffleKey, pid UniqueID, blockId UniqueID, readBuf int64, taskAttemptIDs []UniqueID) ([]Block, ResultCode) {
	rangeIdx, ok := m.rangeIndex(key)
	if !ok {
		return nil, NoRegister
	}
	buf, ok := rangeIdx.GetByPoint(pid)
	if !ok {
		return nil, NoRegister
	}
	blocks, err := buf.GetShuffleData(blockId, readBuf, taskAttemptIDs)
	if err != nil {
		return nil, NoBuffer
	}
	if !m.acct.RequireReadMemory(sumLen(blocks)) {
		return nil, NoBuffer
	}
	return blocks, Success
}

// ReleaseReadMemory gives back read budget reserved by a prior
// GetShuffleData call; see Accountant.ReleaseReadMemory.
func (m *Manager) ReleaseReadMemory(n int64) {
	m.acct.ReleaseReadMemory(n)
}

// CommitShuffleTask forces a flush of every buffer registered for key,
// regardless of watermarks, the way a shuffle-stage completion signal
// would; used for "flush everything now" teardown semantics rather than
// ordinary backpressure-driven flushing.
func (m *Manager) CommitShuffleTask(key ShuffleKey) ResultCode {
	rangeIdx, ok := m.rangeIndex(key)
	if !ok {
		return NoRegister
	}

	lock := m.taskManager.GetAppReadLock(key.AppID)
	lock.RLock()
	defer lock.RUnlock()

	for _, pair := range rangeIdx.Entries() {
		event, err := pair.Buf.ToFlushEvent(key, pair.Range, m.flushManager)
		if err != nil || event == nil {
			continue
		}
		event.IsHuge = m.taskManager.IsHugePartition(event.EncodedLength)
		m.acct.BeginFlush(event.EncodedLength)
		m.sizeIndex.Add(key, -event.EncodedLength)

		length := event.EncodedLength
		originalCleanup := event.cleanup
		event.cleanup = func() {
			if originalCleanup != nil {
				originalCleanup()
			}
			m.acct.CompleteFlush(length)
		}
		if m.flushManager != nil {
			m.flushManager.AddToFlushQueue(event)
		}
	}
	return Success
}

// RemoveBufferByShuffleId evicts and drops every partition buffer
// registered for a shuffle, releasing their memory back to the
// accountant.
func (m *Manager) RemoveBufferByShuffleId(key ShuffleKey) ResultCode {
	appIdx, ok := m.shuffles.Get(key.AppID)
	if !ok {
		return NoRegister
	}
	rangeIdx, ok := appIdx.GetAndRemove(key.ShuffleID)
	if !ok {
		return NoRegister
	}
	for _, buf := range rangeIdx.Buffers() {
		n := buf.Release()
		m.acct.ReleaseResident(n)
	}
	m.sizeIndex.Remove(key)
	return Success
}

// RemoveBuffer evicts and drops every shuffle's buffers for an entire
// application (full teardown).
func (m *Manager) RemoveBuffer(appID string) ResultCode {
	appIdx, ok := m.shuffles.GetAndRemove(appID)
	if !ok {
		return NoRegister
	}
	for _, shuffleID := range appIdx.Keys() {
		rangeIdx, ok := appIdx.Get(shuffleID)
		if !ok {
			continue
		}
		for _, buf := range rangeIdx.Buffers() {
			n := buf.Release()
			m.acct.ReleaseResident(n)
		}
		m.sizeIndex.Remove(ShuffleKey{AppID: appID, ShuffleID: shuffleID})
	}
	return Success
}

// FlushIfNecessary runs a watermark picker round without requiring a
// preceding append; exposed so a caller (e.g. a periodic background tick)
// can proactively relieve memory pressure between appends.
func (m *Manager) FlushIfNecessary() {
	m.scheduler.MaybeWatermarkFlush(m.acct, m.sizeIndex, m.taskManager, m.flushManager, m.lookupShuffle)
}

// Accountant exposes the underlying Accountant for read-only inspection
// (metrics scraping, tests).
func (m *Manager) Accountant() *Accountant { return m.acct }
