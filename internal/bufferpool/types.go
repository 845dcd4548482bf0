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

// Package bufferpool is the buffer pool core: memory accounting, watermark
// eviction selection, per-partition append/flush coordination, and the
// concurrency discipline that lets many appenders, a flusher pool, and
// readers share one memory budget without deadlock, leak, or double
// accounting. Everything outside this package (RPC framing, disk formats,
// coordinator election, auth) is an external collaborator reached only
// through the interfaces in collaborators.go.
package bufferpool

import "fmt"

// UniqueID is the integer identifier type used for shuffle and partition
// ids, block ids, and task-attempt ids throughout the core.
type UniqueID = int64

// ShuffleKey identifies one shuffle stage within one tenant app.
type ShuffleKey struct {
	AppID     string
	ShuffleID UniqueID
}

func (k ShuffleKey) String() string {
	return fmt.Sprintf("%s/%d", k.AppID, k.ShuffleID)
}

// PartitionKey identifies one output partition of one shuffle.
type PartitionKey struct {
	ShuffleKey
	PartitionID UniqueID
}

// PartitionRange is a closed integer range [Lo, Hi] of partition ids mapped
// to a single PartitionBuffer.
type PartitionRange struct {
	Lo UniqueID
	Hi UniqueID
}

// Contains reports whether pid falls within the closed range.
func (r PartitionRange) Contains(pid UniqueID) bool {
	return pid >= r.Lo && pid <= r.Hi
}

// ResultCode is the status every public Manager operation resolves to; the
// core never panics or returns a Go error across its boundary for ordinary
// admission/registration outcomes (spec.md §7 propagation policy).
type ResultCode int

const (
	// Success: the operation completed as requested.
	Success ResultCode = iota
	// NoBuffer: admission refused; the caller should back off and retry.
	NoBuffer
	// NoRegister: the partition is not owned by this pool; non-retriable
	// without re-registration.
	NoRegister
	// InternalError: an unexpected collaborator failure; logged, and the
	// core remains usable for other keys.
	InternalError
)

func (r ResultCode) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case NoBuffer:
		return "NO_BUFFER"
	case NoRegister:
		return "NO_REGISTER"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// DistributionType affects how a dispatched flush event's payload is built
// by the external flush manager; the core only threads it through.
type DistributionType int

const (
	DistributionUnknown DistributionType = iota
	DistributionHash
	DistributionRange
)

// BufferType selects a PartitionBuffer's internal block layout: arrival
// order (LinkedListBuffer) or sorted by (TaskAttemptID, SeqNo)
// (SkipListBuffer). Configured per pool, not per partition.
type BufferType string

const (
	BufferTypeLinkedList BufferType = "linkedList"
	BufferTypeSkipList   BufferType = "skipList"
)
