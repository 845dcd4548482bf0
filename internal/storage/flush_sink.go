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

// Package storage holds the durable-write side of a flushed batch: where
// the bytes a FlushEvent carries actually land once the buffer pool core
// hands them off. The wire/on-disk layout of what gets written is
// deliberately left to the caller (out of scope here); this package only
// moves bytes under a key.
package storage

import "context"

// FlushSink is the write-only surface the flush dispatcher needs. Multiple
// backends can implement it; LocalFlushSink and MinioFlushSink are
// provided.
type FlushSink interface {
	Write(ctx context.Context, key string, data []byte) error
	MultiWrite(ctx context.Context, kvs map[string][]byte) error
}
