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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTaskManagerGetAppReadLockIsStablePerApp(t *testing.T) {
	tm := NewDefaultTaskManager(0)

	l1 := tm.GetAppReadLock("app1")
	l2 := tm.GetAppReadLock("app1")
	assert.Same(t, l1, l2)

	l3 := tm.GetAppReadLock("app2")
	assert.NotSame(t, l1, l3)
}

func TestDefaultTaskManagerIsAppExpired(t *testing.T) {
	tm := NewDefaultTaskManager(0)

	assert.False(t, tm.IsAppExpired("unseen-app"))

	tm.GetAppReadLock("app1")
	assert.False(t, tm.IsAppExpired("app1"))

	tm.MarkAppExpired("app1")
	assert.True(t, tm.IsAppExpired("app1"))
}

func TestDefaultTaskManagerRemoveApp(t *testing.T) {
	tm := NewDefaultTaskManager(0)
	tm.MarkAppExpired("app1") // no-op, app not yet created
	tm.GetAppReadLock("app1")
	tm.MarkAppExpired("app1")
	require.True(t, tm.IsAppExpired("app1"))

	tm.RemoveApp("app1")
	assert.False(t, tm.IsAppExpired("app1"))
}

func TestRwAppLockTryRLockTimesOutUnderWriteLock(t *testing.T) {
	lock := &rwAppLock{}
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	ok := lock.TryRLock(30 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestRwAppLockTryRLockSucceedsWhenFree(t *testing.T) {
	lock := &rwAppLock{}
	ok := lock.TryRLock(10 * time.Millisecond)
	assert.True(t, ok)
	lock.RUnlock()
}
