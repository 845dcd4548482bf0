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

// Package flush is the external flush manager collaborator: it accepts
// FlushEvents dispatched by the buffer pool core and writes them out
// through a storage.FlushSink, in the teacher's flushManager idiom
// (internal/datanode/flush_manager.go's rendezvousFlushManager) reworked
// around a fixed worker pool and a plain channel queue instead of an
// order-preserving per-segment queue, since nothing in this domain
// requires flushes of one shuffle to commit in a specific relative order
// the way the teacher's per-segment binlog sequence does.
package flush

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xige-16/shuffle-buffer-pool/internal/bufferpool"
	"github.com/xige-16/shuffle-buffer-pool/internal/log"
	"github.com/xige-16/shuffle-buffer-pool/internal/storage"
	"github.com/xige-16/shuffle-buffer-pool/internal/typeutil"
)

// Dispatcher is the reference FlushManager: a fixed pool of workers
// draining a single queue of FlushEvents, each writing its batch through
// sink and then completing the event.
type Dispatcher struct {
	sink    storage.FlushSink
	queue   chan *bufferpool.FlushEvent
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	distribution *typeutil.ConcurrentMap[string, bufferpool.DistributionType]
}

// NewDispatcher builds a Dispatcher with workers goroutines draining a
// queue of the given depth.
func NewDispatcher(sink storage.FlushSink, workers, queueDepth int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	return &Dispatcher{
		sink:         sink,
		queue:        make(chan *bufferpool.FlushEvent, queueDepth),
		workers:      workers,
		stopCh:       make(chan struct{}),
		distribution: typeutil.NewConcurrentMap[string, bufferpool.DistributionType](),
	}
}

// Start launches the worker pool. Safe to call once.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker()
	}
}

// Close stops accepting new dispatches and waits for in-flight events to
// drain.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		close(d.queue)
	})
	d.wg.Wait()
}

// AddToFlushQueue implements bufferpool.FlushManager. It never blocks
// indefinitely: if the queue is full the event is still accepted
// synchronously in the caller's goroutine rather than dropped, since
// losing a FlushEvent would leak the accountant's inFlush reservation
// forever (nothing else would ever call Complete).
func (d *Dispatcher) AddToFlushQueue(event *bufferpool.FlushEvent) {
	select {
	case <-d.stopCh:
		d.process(event)
		return
	default:
	}
	select {
	case d.queue <- event:
	default:
		d.process(event)
	}
}

// GetDataDistributionType implements bufferpool.FlushManager.
func (d *Dispatcher) GetDataDistributionType(appID string) bufferpool.DistributionType {
	dt, ok := d.distribution.Get(appID)
	if !ok {
		return bufferpool.DistributionHash
	}
	return dt
}

// SetDataDistributionType registers how appID's partitions are laid out,
// consulted by PartitionBuffer.ToFlushEvent callers that need it to frame
// a dispatched batch.
func (d *Dispatcher) SetDataDistributionType(appID string, dt bufferpool.DistributionType) {
	d.distribution.Insert(appID, dt)
}

func (d *Dispatcher) runWorker() {
	defer d.wg.Done()
	for event := range d.queue {
		d.process(event)
	}
}

func (d *Dispatcher) process(event *bufferpool.FlushEvent) {
	defer event.Complete()

	key := objectKey(event)
	payload, err := encodeBatch(event)
	if err != nil {
		log.Error("flush: failed to encode batch", zap.String("shuffle", event.Key.String()), zap.Error(err))
		return
	}

	if err := d.sink.Write(context.Background(), key, payload); err != nil {
		log.Error("flush: failed to write batch", zap.String("shuffle", event.Key.String()), zap.String("key", key), zap.Error(err))
		return
	}
	log.Debug("flush: batch written",
		zap.String("shuffle", event.Key.String()),
		zap.Int64("rangeLo", event.Range.Lo),
		zap.Int64("rangeHi", event.Range.Hi),
		zap.Int("blocks", len(event.Blocks)),
		zap.Int64("bytes", event.EncodedLength),
	)
}

// objectKey derives a storage key from the event; the wire/on-disk layout
// of a flushed batch is out of scope here, so this only needs to be
// unique and legible for operational debugging, not a format any reader
// depends on.
func objectKey(event *bufferpool.FlushEvent) string {
	return fmt.Sprintf("%s/%d/%d-%d", event.Key.AppID, event.Key.ShuffleID, event.Range.Lo, event.Range.Hi)
}

// encodeBatch concatenates a batch's blocks with a length prefix per
// block, so MultiWrite/Write callers get one contiguous payload without
// needing to know the durable wire format this package intentionally
// doesn't define.
func encodeBatch(event *bufferpool.FlushEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, blk := range event.Blocks {
		var header [8]byte
		binary.BigEndian.PutUint64(header[:], uint64(len(blk.Data)))
		if _, err := buf.Write(header[:]); err != nil {
			return nil, err
		}
		if _, err := buf.Write(blk.Data); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var _ bufferpool.FlushManager = (*Dispatcher)(nil)
