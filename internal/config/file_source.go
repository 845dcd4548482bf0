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

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xige-16/shuffle-buffer-pool/internal/log"
)

// FileInfo describes the YAML files a FileSource reads and how often it
// refreshes them.
type FileInfo struct {
	Files           []string
	RefreshInterval time.Duration
}

// FileSource loads configuration from one or more YAML files via viper,
// lower-casing and flattening keys the way the teacher's FileSource does,
// and optionally reloads the files on a ticker. Reloaded values are seen by
// later ParamItem reads; the derived watermark pair is recomputed only by
// BufferPoolConfig.Init and UpdateWatermarks.
type FileSource struct {
	mu      sync.RWMutex
	files   []string
	configs map[string]string

	refreshInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewFileSource creates a FileSource and performs an initial synchronous
// load; it returns an error if none of the configured files exists or if an
// existing file fails to parse.
func NewFileSource(info *FileInfo) (*FileSource, error) {
	fs := &FileSource{
		files:           info.Files,
		configs:         make(map[string]string),
		refreshInterval: info.RefreshInterval,
		stopCh:          make(chan struct{}),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	if fs.refreshInterval > 0 {
		go fs.refreshLoop()
	}
	return fs, nil
}

func (fs *FileSource) load() error {
	merged := make(map[string]string)
	var loadedAny bool

	for _, file := range fs.files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		v := viper.New()
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config file %s", file)
		}
		loadedAny = true
		for _, key := range v.AllKeys() {
			val := v.Get(key)
			str, err := cast.ToStringE(val)
			if err != nil {
				log.Warn("config value is not scalar, skipping", zap.String("key", key))
				continue
			}
			merged[key] = str
		}
	}

	if !loadedAny && len(fs.files) > 0 {
		return fmt.Errorf("config: no readable file among %v", fs.files)
	}

	fs.mu.Lock()
	fs.configs = merged
	fs.mu.Unlock()
	return nil
}

func (fs *FileSource) refreshLoop() {
	ticker := time.NewTicker(fs.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-fs.stopCh:
			return
		case <-ticker.C:
			if err := fs.load(); err != nil {
				log.Warn("failed to refresh file config source", zap.Error(err))
			}
		}
	}
}

func (fs *FileSource) GetConfigurations() (map[string]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]string, len(fs.configs))
	for k, v := range fs.configs {
		out[k] = v
	}
	return out, nil
}

func (fs *FileSource) GetConfigurationByKey(key string) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	v, ok := fs.configs[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("key not found: %s", key)
	}
	return v, nil
}

func (fs *FileSource) GetPriority() int    { return LowPriority }
func (fs *FileSource) GetSourceName() string { return "FileSource" }

func (fs *FileSource) Close() {
	fs.stopOnce.Do(func() { close(fs.stopCh) })
}
