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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFlushSinkWrite(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalFlushSink(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, "app1/shuffle1/0-7.block", []byte("hello")))

	data, err := os.ReadFile(filepath.Join(dir, "app1/shuffle1/0-7.block"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestLocalFlushSinkMultiWrite(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalFlushSink(dir)
	require.NoError(t, err)

	ctx := context.Background()
	kvs := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}
	require.NoError(t, sink.MultiWrite(ctx, kvs))

	for k, v := range kvs {
		data, err := os.ReadFile(filepath.Join(dir, k))
		require.NoError(t, err)
		assert.Equal(t, v, data)
	}
}
