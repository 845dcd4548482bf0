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

	"github.com/xige-16/shuffle-buffer-pool/internal/log"
	"github.com/xige-16/shuffle-buffer-pool/internal/metrics"
)

// Accountant is the memory accountant: the single source of truth for how
// much write and read memory the pool has committed. Every counter is a
// lock-free atomic; callers never hold a mutex across an Accountant call,
// and the Accountant never calls back into a PartitionBuffer or the
// scheduler, keeping it a leaf in the lock hierarchy.
//
// live = used - preAllocated - inFlush
//
// live is what NeedToFlush compares against the high watermark: bytes
// actually resident and readable, excluding space reserved but not yet
// written and space already handed off to a flush that hasn't released yet.
// IsFull instead compares used against capacity.
type Accountant struct {
	capacity     int64
	readCapacity int64

	used          atomic.Int64
	preAllocated  atomic.Int64
	inFlush       atomic.Int64
	readUsed      atomic.Int64

	sink metrics.Sink
}

// NewAccountant builds an Accountant with a fixed write capacity and read
// capacity. A zero sink is replaced with metrics.NoopSink{}.
func NewAccountant(capacity, readCapacity int64, sink metrics.Sink) *Accountant {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	return &Accountant{capacity: capacity, readCapacity: readCapacity, sink: sink}
}

func (a *Accountant) Capacity() int64     { return a.capacity }
func (a *Accountant) ReadCapacity() int64 { return a.readCapacity }

// Live is the accounted resident, readable byte count.
func (a *Accountant) Live() int64 {
	return a.used.Load() - a.preAllocated.Load() - a.inFlush.Load()
}

func (a *Accountant) Used() int64         { return a.used.Load() }
func (a *Accountant) PreAllocated() int64 { return a.preAllocated.Load() }
func (a *Accountant) InFlush() int64      { return a.inFlush.Load() }
func (a *Accountant) ReadUsed() int64     { return a.readUsed.Load() }

// RequireWriteMemory reserves n bytes of write budget ahead of an append,
// the pre-allocation spec.md §4.4 describes: it only ever increases used
// and preAllocated together, so Live() is unaffected by the reservation
// itself. Returns false when granting it would exceed capacity.
func (a *Accountant) RequireWriteMemory(n int64) bool {
	if n <= 0 {
		return true
	}
	for {
		cur := a.used.Load()
		next := cur + n
		if next > a.capacity {
			return false
		}
		if a.used.CompareAndSwap(cur, next) {
			a.preAllocated.Add(n)
			a.publish()
			return true
		}
	}
}

// ReleasePreAllocatedSize gives back n bytes of a reservation that was never
// consumed: both preAllocated and used shrink. A reservation that is now
// backed by appended data goes through CommitAppend instead, which shrinks
// preAllocated only.
func (a *Accountant) ReleasePreAllocatedSize(n int64) {
	if n <= 0 {
		return
	}
	clampedSub(&a.preAllocated, n)
	clampedSub(&a.used, n)
	a.publish()
}

// CommitAppend converts n bytes of a prior reservation into committed used
// memory: preAllocated shrinks by n, used is unchanged (it already
// reflects the reservation), keeping the append's cost invariant across
// the reserve -> write sequence.
func (a *Accountant) CommitAppend(n int64) {
	if n <= 0 {
		return
	}
	clampedSub(&a.preAllocated, n)
	a.publish()
}

// AddUsedMemory accounts bytes appended without a prior reservation (the
// unreserved fast-path append some collaborators take).
func (a *Accountant) AddUsedMemory(n int64) {
	if n <= 0 {
		return
	}
	a.used.Add(n)
	a.publish()
}

// BeginFlush marks n bytes as handed off to a flush in flight: used is
// unaffected (the bytes are still committed), inFlush grows so Live()
// drops immediately, preventing the picker from re-selecting data that is
// already being written out.
func (a *Accountant) BeginFlush(n int64) {
	if n <= 0 {
		return
	}
	a.inFlush.Add(n)
	a.publish()
}

// CompleteFlush releases n bytes once a flush has been durably written:
// both used and inFlush shrink, freeing real capacity.
func (a *Accountant) CompleteFlush(n int64) {
	if n <= 0 {
		return
	}
	clampedSub(&a.inFlush, n)
	clampedSub(&a.used, n)
	a.publish()
}

// ReleaseResident discards n bytes of memory that were committed but never
// handed to a flush (an evicted buffer's still-resident blocks): used
// shrinks directly, inFlush is untouched since these bytes were never
// counted there.
func (a *Accountant) ReleaseResident(n int64) {
	if n <= 0 {
		return
	}
	clampedSub(&a.used, n)
	a.publish()
}

// RequireReadMemory reserves n bytes against the read budget; false if it
// would exceed readCapacity.
func (a *Accountant) RequireReadMemory(n int64) bool {
	if n <= 0 {
		return true
	}
	for {
		cur := a.readUsed.Load()
		next := cur + n
		if next > a.readCapacity {
			return false
		}
		if a.readUsed.CompareAndSwap(cur, next) {
			a.publish()
			return true
		}
	}
}

// ReleaseReadMemory gives back n bytes of read budget.
func (a *Accountant) ReleaseReadMemory(n int64) {
	if n <= 0 {
		return
	}
	clampedSub(&a.readUsed, n)
	a.publish()
}

// NeedToFlush reports whether Live() has crossed highWM.
func (a *Accountant) NeedToFlush(highWM int64) bool {
	return a.Live() >= highWM
}

// IsFull reports whether the accountant cannot grant any further writes at
// all (used already at or past capacity), distinct from NeedToFlush which
// fires earlier, at the high watermark.
func (a *Accountant) IsFull() bool {
	return a.used.Load() >= a.capacity
}

func (a *Accountant) publish() {
	a.sink.SetUsedMemory(a.used.Load())
	a.sink.SetPreAllocated(a.preAllocated.Load())
	a.sink.SetInFlush(a.inFlush.Load())
	a.sink.SetReadUsed(a.readUsed.Load())
	a.sink.SetLiveMemory(a.Live())
}

// clampedSub subtracts n from counter without letting it go negative,
// logging a warning when the subtraction would have underflowed: that
// signals a double-release bug in a caller, but the accountant itself must
// stay usable rather than report nonsensical negative memory.
func clampedSub(counter *atomic.Int64, n int64) {
	for {
		cur := counter.Load()
		next := cur - n
		if next < 0 {
			log.Warn("bufferpool: memory counter underflow clamped to zero")
			next = 0
		}
		if counter.CompareAndSwap(cur, next) {
			return
		}
	}
}
