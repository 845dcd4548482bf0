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

package paramtable

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xige-16/shuffle-buffer-pool/internal/bufferpool"
)

// Watermarks is the self-consistent (highWM, lowWM) pair DESIGN NOTES §9
// calls for: readers always observe a pair computed together, never a high
// from before a reconfiguration paired with a low from after it.
type Watermarks struct {
	High int64
	Low  int64
}

// BufferPoolConfig is the typed view over every option spec.md §6
// recognizes, loaded through a BaseTable. Watermarks are reconfigurable at
// runtime via UpdateWatermarks; every other field is read fresh from the
// underlying ParamItem on each call (so env/file overrides propagate) except
// where noted.
type BufferPoolConfig struct {
	// capacity / watermarks
	Capacity           ParamItem
	CapacityRatio      ParamItem
	ReadCapacity       ParamItem
	ReadCapacityRatio  ParamItem
	HighWatermarkPct   ParamItem
	LowWatermarkPct    ParamItem

	// single-buffer fast path
	SingleBufferFlushEnabled        ParamItem
	SingleBufferFlushThresholdBytes ParamItem
	SingleBufferFlushBlocks         ParamItem

	// watermark picker
	ShuffleFlushThreshold ParamItem
	FlushTryLockTimeoutMs ParamItem

	// partition buffer layout
	BufferType ParamItem

	// chunk allocator (LAB)
	LabEnabled      ParamItem
	LabChunkSize    ParamItem
	LabPoolRatio    ParamItem
	LabMaxAllocRatio ParamItem

	// huge partition policy
	HugePartitionMemoryLimitRatio ParamItem
	HugePartitionSizeThreshold    ParamItem
	HugePartitionSizeHardLimit    ParamItem
	HugePartitionSplitLimit       ParamItem

	// misc
	BufferFlushWhenCachingData ParamItem
	AppBlockSizeMetricEnabled  ParamItem
	FlushMgrCleanIntervalSec   ParamItem

	// flush sink
	StorageBackend        ParamItem
	StorageLocalDir       ParamItem
	MinioAddress          ParamItem
	MinioAccessKeyID      ParamItem
	MinioSecretAccessKey  ParamItem
	MinioUseSSL           ParamItem
	MinioBucketName       ParamItem
	MinioRootPath         ParamItem
	MinioCreateBucket     ParamItem
	FlushDispatchWorkers  ParamItem
	FlushDispatchQueueLen ParamItem

	// logging
	LogLevel  ParamItem
	LogFormat ParamItem
	LogStdout ParamItem

	watermarks atomic.Pointer[Watermarks]
}

// Init binds every ParamItem to bt and computes the initial watermark pair.
// It returns an error (refusing to start, per spec.md §7 "Fatal conditions")
// if highWatermarkPct <= lowWatermarkPct.
func (c *BufferPoolConfig) Init(bt *BaseTable) error {
	mgr := bt.Manager()

	items := []struct {
		item *ParamItem
		key  string
		def  string
		doc  string
	}{
		{&c.Capacity, "bufferpool.capacity", "1073741824", "absolute write-memory budget, bytes"},
		{&c.CapacityRatio, "bufferpool.capacityRatio", "0", "fraction of available memory; not applied, the write budget is always bufferpool.capacity"},
		{&c.ReadCapacity, "bufferpool.readCapacity", "268435456", "absolute read-memory budget, bytes"},
		{&c.ReadCapacityRatio, "bufferpool.readCapacityRatio", "0", "fraction of available memory; not applied, the read budget is always bufferpool.readCapacity"},
		{&c.HighWatermarkPct, "bufferpool.highWatermarkPct", "80", "flush start threshold, percent of capacity"},
		{&c.LowWatermarkPct, "bufferpool.lowWatermarkPct", "40", "flush stop target, percent of capacity"},
		{&c.SingleBufferFlushEnabled, "bufferpool.singleBufferFlushEnabled", "true", ""},
		{&c.SingleBufferFlushThresholdBytes, "bufferpool.singleBufferFlushThresholdBytes", "134217728", ""},
		{&c.SingleBufferFlushBlocks, "bufferpool.singleBufferFlushBlocks", "4096", ""},
		{&c.ShuffleFlushThreshold, "bufferpool.shuffleFlushThreshold", "33554432", ""},
		{&c.FlushTryLockTimeoutMs, "bufferpool.flushTryLockTimeoutMs", "2000", ""},
		{&c.BufferType, "bufferpool.bufferType", string(bufferpool.BufferTypeLinkedList), ""},
		{&c.LabEnabled, "bufferpool.labEnabled", "false", ""},
		{&c.LabChunkSize, "bufferpool.labChunkSize", "2097152", ""},
		{&c.LabPoolRatio, "bufferpool.labPoolRatio", "0.1", ""},
		{&c.LabMaxAllocRatio, "bufferpool.labMaxAllocRatio", "0.25", ""},
		{&c.HugePartitionMemoryLimitRatio, "bufferpool.hugePartitionMemoryLimitRatio", "0.2", ""},
		{&c.HugePartitionSizeThreshold, "bufferpool.hugePartitionSizeThreshold", "67108864", ""},
		{&c.HugePartitionSizeHardLimit, "bufferpool.hugePartitionSizeHardLimit", "1073741824", ""},
		{&c.HugePartitionSplitLimit, "bufferpool.hugePartitionSplitLimit", "16", ""},
		{&c.BufferFlushWhenCachingData, "bufferpool.bufferFlushWhenCachingData", "false", ""},
		{&c.AppBlockSizeMetricEnabled, "bufferpool.appBlockSizeMetricEnabled", "false", ""},
		{&c.FlushMgrCleanIntervalSec, "bufferpool.flushMgrCleanIntervalSec", "300", ""},
		{&c.StorageBackend, "storage.backend", "local", "local or minio"},
		{&c.StorageLocalDir, "storage.localDir", "./shufflepool-data", ""},
		{&c.MinioAddress, "storage.minio.address", "localhost:9000", ""},
		{&c.MinioAccessKeyID, "storage.minio.accessKeyID", "minioadmin", ""},
		{&c.MinioSecretAccessKey, "storage.minio.secretAccessKey", "minioadmin", ""},
		{&c.MinioUseSSL, "storage.minio.useSSL", "false", ""},
		{&c.MinioBucketName, "storage.minio.bucketName", "shuffle-buffer-pool", ""},
		{&c.MinioRootPath, "storage.minio.rootPath", "shuffle", ""},
		{&c.MinioCreateBucket, "storage.minio.createBucket", "true", ""},
		{&c.FlushDispatchWorkers, "flush.dispatchWorkers", "8", ""},
		{&c.FlushDispatchQueueLen, "flush.dispatchQueueLen", "1024", ""},
		{&c.LogLevel, "log.level", "info", ""},
		{&c.LogFormat, "log.format", "console", ""},
		{&c.LogStdout, "log.stdout", "true", ""},
	}
	for _, it := range items {
		it.item.Key = it.key
		it.item.DefaultValue = it.def
		it.item.Doc = it.doc
		it.item.Init(mgr)
	}

	return c.recomputeWatermarks()
}

func (c *BufferPoolConfig) recomputeWatermarks() error {
	capacity := c.Capacity.GetAsInt64()
	highPct := c.HighWatermarkPct.GetAsFloat()
	lowPct := c.LowWatermarkPct.GetAsFloat()

	high := int64(float64(capacity) * highPct / 100.0)
	low := int64(float64(capacity) * lowPct / 100.0)

	if high <= low {
		return fmt.Errorf("paramtable: highWatermarkPct (%.2f) must exceed lowWatermarkPct (%.2f)", highPct, lowPct)
	}

	c.watermarks.Store(&Watermarks{High: high, Low: low})
	return nil
}

// Watermarks returns the currently active, self-consistent watermark pair.
func (c *BufferPoolConfig) Watermarks() Watermarks {
	wm := c.watermarks.Load()
	if wm == nil {
		return Watermarks{}
	}
	return *wm
}

// UpdateWatermarks recomputes highWM/lowWM from new percentages and installs
// them atomically; it is the runtime-reconfiguration path DESIGN NOTES §9
// describes as "an observer subscribed to a config registry". Callers hold
// no lock; the swap itself is what makes readers see a consistent pair.
func (c *BufferPoolConfig) UpdateWatermarks(highPct, lowPct float64) error {
	c.HighWatermarkPct.SetValue(fmt.Sprintf("%v", highPct))
	c.LowWatermarkPct.SetValue(fmt.Sprintf("%v", lowPct))
	return c.recomputeWatermarks()
}

// FlushTryLockTimeout is a typed convenience over FlushTryLockTimeoutMs.
func (c *BufferPoolConfig) FlushTryLockTimeout() time.Duration {
	return c.FlushTryLockTimeoutMs.GetAsDuration(time.Millisecond)
}
