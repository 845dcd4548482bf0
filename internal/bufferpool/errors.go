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

import "github.com/cockroachdb/errors"

// ErrEvicted is returned by PartitionBuffer.Append once the buffer has been
// released (app or shuffle teardown); the caller must re-register and retry
// rather than keep appending into a buffer that no longer exists.
var ErrEvicted = errors.New("bufferpool: partition buffer evicted")

// ErrNotRegistered is returned when a key has no PartitionBuffer mapped for
// it in the range index.
var ErrNotRegistered = errors.New("bufferpool: partition not registered")

// ErrFlushInProgress is returned by ToFlushEvent when a concurrent flush
// already holds the buffer's evict-exclusive section.
var ErrFlushInProgress = errors.New("bufferpool: flush already in progress")

// ErrAppExpired is returned when a collaborator TaskManager reports the
// owning application has already been torn down.
var ErrAppExpired = errors.New("bufferpool: app expired")
