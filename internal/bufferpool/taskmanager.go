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

	"go.uber.org/atomic"

	"github.com/xige-16/shuffle-buffer-pool/internal/typeutil"
)

// rwAppLock adapts sync.RWMutex to AppLock, adding a timed read-lock
// attempt since sync.RWMutex alone has no TryRLock-with-timeout.
type rwAppLock struct {
	mu sync.RWMutex
}

func (l *rwAppLock) RLock()   { l.mu.RLock() }
func (l *rwAppLock) RUnlock() { l.mu.RUnlock() }
func (l *rwAppLock) Lock()    { l.mu.Lock() }
func (l *rwAppLock) Unlock()  { l.mu.Unlock() }

func (l *rwAppLock) TryRLock(timeout time.Duration) bool {
	if l.mu.TryRLock() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond
	for time.Now().Before(deadline) {
		if l.mu.TryRLock() {
			return true
		}
		time.Sleep(backoff)
		if backoff < 20*time.Millisecond {
			backoff *= 2
		}
	}
	return false
}

type appState struct {
	lock       *rwAppLock
	expired    atomic.Bool
	registered time.Time
}

// DefaultTaskManager is the reference TaskManager: one AppLock per app id,
// created lazily on first touch. Production deployments with a real
// application registry (knowing about job submission/completion events)
// are expected to supply their own TaskManager; this one only knows what
// this package tells it via MarkAppExpired.
type DefaultTaskManager struct {
	apps *typeutil.ConcurrentMap[string, *appState]

	hugePartitionSizeThreshold int64
}

// NewDefaultTaskManager builds an empty TaskManager. hugePartitionSizeThreshold
// of 0 or less disables huge-partition classification entirely (every size
// reports false).
func NewDefaultTaskManager(hugePartitionSizeThreshold int64) *DefaultTaskManager {
	return &DefaultTaskManager{
		apps:                       typeutil.NewConcurrentMap[string, *appState](),
		hugePartitionSizeThreshold: hugePartitionSizeThreshold,
	}
}

// IsHugePartition reports whether size crosses the configured threshold.
func (tm *DefaultTaskManager) IsHugePartition(size int64) bool {
	if tm.hugePartitionSizeThreshold <= 0 {
		return false
	}
	return size >= tm.hugePartitionSizeThreshold
}

func (tm *DefaultTaskManager) getOrCreate(appID string) *appState {
	st, _ := tm.apps.GetOrInsert(appID, &appState{lock: &rwAppLock{}, registered: time.Now()})
	return st
}

func (tm *DefaultTaskManager) GetAppReadLock(appID string) AppLock {
	return tm.getOrCreate(appID).lock
}

func (tm *DefaultTaskManager) IsAppExpired(appID string) bool {
	st, ok := tm.apps.Get(appID)
	if !ok {
		return false
	}
	return st.expired.Load()
}

// MarkAppExpired flags appID as torn down; buffers belonging to it become
// eligible for unconditional eviction. Not part of the TaskManager
// interface since no core collaborator needs to call it — it is exposed
// for whatever drives application lifecycle.
func (tm *DefaultTaskManager) MarkAppExpired(appID string) {
	if st, ok := tm.apps.Get(appID); ok {
		st.expired.Store(true)
	}
}

// RemoveApp drops all bookkeeping for appID once its buffers have been
// removed.
func (tm *DefaultTaskManager) RemoveApp(appID string) {
	tm.apps.Remove(appID)
}
