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
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xige-16/shuffle-buffer-pool/internal/log"
	"github.com/xige-16/shuffle-buffer-pool/internal/metrics"
)

// SchedulerConfig is the subset of BufferPoolConfig the FlushScheduler
// needs, passed by value so the scheduler never imports the paramtable
// package and tests can exercise it with hand-built values.
type SchedulerConfig struct {
	HighWatermark                   int64
	LowWatermark                    int64
	ShuffleFlushThreshold           int64
	SingleBufferFlushEnabled        bool
	SingleBufferFlushThresholdBytes int64
	SingleBufferFlushBlocks         int
	FlushTryLockTimeout             time.Duration

	// BufferFlushWhenCachingData, when true, makes the watermark picker
	// also get evaluated on every append rather than only from an
	// external FlushIfNecessary tick. The append thread itself never runs
	// the picker though: Manager hands the check off to a dedicated
	// single-goroutine worker so a picker round can never recurse back
	// onto the calling goroutine's stack under sustained load.
	BufferFlushWhenCachingData bool
}

// ShuffleBufferLookup resolves every (range, buffer) pair registered for a
// shuffle, for the scheduler to turn a picked shuffle into dispatched
// FlushEvents.
type ShuffleBufferLookup func(key ShuffleKey) []RangeBufferPair

// FlushScheduler decides when and what to flush: the single-buffer fast
// path (checked inline on every append; a dispatch takes the app's
// TryRLock and the buffer's own mutex) and the watermark picker (checked whenever the accountant reports
// Live() at or above highWM, serialized by a pool-global mutex so only one
// picker round runs at a time).
//
// Lock hierarchy: schedulerMu is acquired before any AppLock, which is
// acquired before any PartitionBuffer's own mutex, which is acquired
// before touching the Accountant's atomics. A picker round that can't get
// an app's TryRLock within FlushTryLockTimeout skips that shuffle for this
// round rather than blocking the whole pool.
type FlushScheduler struct {
	schedulerMu sync.Mutex

	cfg SchedulerConfig
	sink metrics.Sink
}

// NewFlushScheduler builds a FlushScheduler. A zero sink is replaced with
// metrics.NoopSink{}.
func NewFlushScheduler(cfg SchedulerConfig, sink metrics.Sink) *FlushScheduler {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	return &FlushScheduler{cfg: cfg, sink: sink}
}

// UpdateConfig swaps the scheduler's config atomically under its own
// mutex; used by the watermark runtime-reconfiguration path.
func (s *FlushScheduler) UpdateConfig(cfg SchedulerConfig) {
	s.schedulerMu.Lock()
	defer s.schedulerMu.Unlock()
	s.cfg = cfg
}

func (s *FlushScheduler) config() SchedulerConfig {
	s.schedulerMu.Lock()
	defer s.schedulerMu.Unlock()
	return s.cfg
}

// Config returns the scheduler's current configuration snapshot; exposed so
// Manager can branch on BufferFlushWhenCachingData without duplicating the
// scheduler's own locking.
func (s *FlushScheduler) Config() SchedulerConfig {
	return s.config()
}

// MaybeFastPathFlush is the single-buffer fast path: called right after an
// append, it checks buf's own size/block-count against the configured
// threshold and, if crossed, dispatches that one buffer immediately
// without waiting for a watermark picker round. This is what keeps one
// hot partition from being starved behind a picker round dominated by
// other shuffles.
func (s *FlushScheduler) MaybeFastPathFlush(
	key ShuffleKey,
	rng PartitionRange,
	buf PartitionBuffer,
	taskManager TaskManager,
	flushManager FlushManager,
	sizeIndex *ShuffleSizeIndex,
	acct *Accountant,
) {
	cfg := s.config()
	if !cfg.SingleBufferFlushEnabled {
		return
	}
	if buf.EncodedLength() < cfg.SingleBufferFlushThresholdBytes && buf.BlockCount() < cfg.SingleBufferFlushBlocks {
		return
	}
	s.dispatchOne(cfg, key, rng, buf, taskManager, flushManager, sizeIndex, acct, metrics.TriggerSingleBuffer)
}

// MaybeWatermarkFlush runs one picker round if Live() is at or above highWM.
// It ranks shuffles largest-first by ShuffleSizeIndex and walks the list,
// picking a shuffle when its own size exceeds shuffleFlushThreshold
// (regardless of running total) or when the running total of picked bytes
// is still at most half of (highWM-lowWM) (the fairness rule, so progress
// is made even when every shuffle is small). It stops picking once the
// running total of picked bytes reaches highWM-lowWM.
func (s *FlushScheduler) MaybeWatermarkFlush(
	acct *Accountant,
	sizeIndex *ShuffleSizeIndex,
	taskManager TaskManager,
	flushManager FlushManager,
	lookup ShuffleBufferLookup,
) {
	cfg := s.config()
	if !acct.NeedToFlush(cfg.HighWatermark) {
		return
	}

	// Only one picker round at a time: a second caller arriving while one
	// is in flight would just re-rank a mostly-unchanged snapshot.
	if !s.schedulerMu.TryLock() {
		return
	}
	defer s.schedulerMu.Unlock()

	need := cfg.HighWatermark - cfg.LowWatermark
	if need <= 0 {
		return
	}
	half := need / 2

	snapshot := sizeIndex.Snapshot()
	keys := make([]ShuffleKey, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if snapshot[keys[i]] != snapshot[keys[j]] {
			return snapshot[keys[i]] > snapshot[keys[j]]
		}
		return keys[i].String() < keys[j].String()
	})

	var pickedSize int64
	for _, key := range keys {
		size := snapshot[key]
		if size <= 0 {
			continue
		}
		selected := size > cfg.ShuffleFlushThreshold || pickedSize <= half
		if !selected {
			continue
		}

		n := s.dispatchShuffle(cfg, key, taskManager, flushManager, sizeIndex, acct, lookup, metrics.TriggerWatermark)
		pickedSize += n

		if pickedSize >= need {
			break
		}
	}
}

// dispatchShuffle dispatches every registered buffer for key, returning
// the total bytes handed off. Skips key entirely if its AppLock cannot be
// acquired within FlushTryLockTimeout.
func (s *FlushScheduler) dispatchShuffle(
	cfg SchedulerConfig,
	key ShuffleKey,
	taskManager TaskManager,
	flushManager FlushManager,
	sizeIndex *ShuffleSizeIndex,
	acct *Accountant,
	lookup ShuffleBufferLookup,
	trigger metrics.FlushTrigger,
) int64 {
	lock := taskManager.GetAppReadLock(key.AppID)
	if !lock.TryRLock(cfg.FlushTryLockTimeout) {
		log.Debug("bufferpool: skipping shuffle, app lock busy", zap.String("shuffle", key.String()))
		return 0
	}
	defer lock.RUnlock()

	var total int64
	for _, pair := range lookup(key) {
		n := s.dispatchOneLocked(key, pair.Range, pair.Buf, taskManager, flushManager, sizeIndex, acct, trigger)
		total += n
	}
	return total
}

// dispatchOne acquires key's AppLock itself before dispatching a single
// buffer (used by the fast path, which is not already inside a picker
// round's lock acquisition).
func (s *FlushScheduler) dispatchOne(
	cfg SchedulerConfig,
	key ShuffleKey,
	rng PartitionRange,
	buf PartitionBuffer,
	taskManager TaskManager,
	flushManager FlushManager,
	sizeIndex *ShuffleSizeIndex,
	acct *Accountant,
	trigger metrics.FlushTrigger,
) {
	lock := taskManager.GetAppReadLock(key.AppID)
	if !lock.TryRLock(cfg.FlushTryLockTimeout) {
		return
	}
	defer lock.RUnlock()
	s.dispatchOneLocked(key, rng, buf, taskManager, flushManager, sizeIndex, acct, trigger)
}

func (s *FlushScheduler) dispatchOneLocked(
	key ShuffleKey,
	rng PartitionRange,
	buf PartitionBuffer,
	taskManager TaskManager,
	flushManager FlushManager,
	sizeIndex *ShuffleSizeIndex,
	acct *Accountant,
	trigger metrics.FlushTrigger,
) int64 {
	event, err := buf.ToFlushEvent(key, rng, flushManager)
	if err != nil || event == nil {
		return 0
	}
	if taskManager != nil {
		event.IsHuge = taskManager.IsHugePartition(event.EncodedLength)
	}

	acct.BeginFlush(event.EncodedLength)
	sizeIndex.Add(key, -event.EncodedLength)

	originalCleanup := event.cleanup
	event.cleanup = func() {
		if originalCleanup != nil {
			originalCleanup()
		}
		acct.CompleteFlush(event.EncodedLength)
	}

	if flushManager != nil {
		flushManager.AddToFlushQueue(event)
	}
	s.sink.ObserveFlushDispatch(trigger, len(event.Blocks), event.EncodedLength)
	return event.EncodedLength
}
