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

import "time"

// AppLock is the per-app synchronization handle the TaskManager hands out.
// It sits above a PartitionBuffer's own mutex in the lock hierarchy: a
// caller acquires the AppLock (read for append/read paths, write for
// teardown) before touching any PartitionBuffer belonging to that app.
type AppLock interface {
	RLock()
	RUnlock()
	Lock()
	Unlock()
	// TryRLock attempts to acquire the read lock within timeout, returning
	// false on timeout. The flush scheduler uses this rather than RLock to
	// bound how long a picker round can stall behind an app teardown.
	TryRLock(timeout time.Duration) bool
}

// TaskManager is the external collaborator that owns application
// lifecycle: it is never implemented by this package's own types other
// than the DefaultTaskManager reference implementation, and production
// deployments may supply their own backed by a cluster-wide coordinator.
type TaskManager interface {
	// GetAppReadLock returns the AppLock for appID, creating bookkeeping
	// for a previously unseen app on first call.
	GetAppReadLock(appID string) AppLock
	// IsAppExpired reports whether appID's application has already been
	// torn down; callers must treat a registered buffer under an expired
	// app as eligible for immediate eviction.
	IsAppExpired(appID string) bool
	// IsHugePartition reports whether a partition buffer of the given
	// accounted size should be classified as huge, per the configured
	// huge-partition size threshold. The scheduler consults this right
	// before dispatching a FlushEvent so the external flush manager can
	// route huge partitions through a distinct path (e.g. skip batching,
	// write in smaller chunks) without the core needing to know why.
	IsHugePartition(size int64) bool
}

// FlushManager is the external collaborator that accepts dispatched flush
// events and actually writes them to durable storage; this package only
// produces events and calls AddToFlushQueue, never touching storage
// itself (durable storage format is out of scope here).
type FlushManager interface {
	AddToFlushQueue(event *FlushEvent)
	GetDataDistributionType(appID string) DistributionType
}
