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

package flush

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xige-16/shuffle-buffer-pool/internal/bufferpool"
)

type fakeSink struct {
	mu     sync.Mutex
	writes map[string][]byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{writes: make(map[string][]byte)}
}

func (f *fakeSink) Write(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[key] = data
	return nil
}

func (f *fakeSink) MultiWrite(ctx context.Context, kvs map[string][]byte) error {
	for k, v := range kvs {
		if err := f.Write(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSink) keys() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestDispatcherWritesAndCompletes(t *testing.T) {
	sink := newFakeSink()
	d := NewDispatcher(sink, 2, 4)
	d.Start()
	defer d.Close()

	var completed sync.WaitGroup
	completed.Add(1)

	event := bufferpool.NewFlushEvent(
		bufferpool.ShuffleKey{AppID: "app1", ShuffleID: 1},
		bufferpool.PartitionRange{Lo: 0, Hi: 7},
		[]bufferpool.Block{{BlockID: 1, Data: []byte("hello")}},
		5,
		false,
		completed.Done,
	)

	d.AddToFlushQueue(event)

	waitDone(t, &completed, time.Second)
	assert.Equal(t, 1, sink.keys())
	assert.True(t, event.IsCompleted())
}

func TestDispatcherDistributionTypeDefaultsToHash(t *testing.T) {
	d := NewDispatcher(newFakeSink(), 1, 1)
	assert.Equal(t, bufferpool.DistributionHash, d.GetDataDistributionType("unknown-app"))

	d.SetDataDistributionType("app1", bufferpool.DistributionRange)
	assert.Equal(t, bufferpool.DistributionRange, d.GetDataDistributionType("app1"))
}

func waitDone(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		require.Fail(t, "timed out waiting for completion")
	}
}
