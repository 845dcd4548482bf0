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

package paramtable

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xige-16/shuffle-buffer-pool/internal/config"
	"github.com/xige-16/shuffle-buffer-pool/internal/log"
)

// BaseTable owns the config.Manager and the source wiring (YAML file plus
// environment), mirroring the teacher's BaseTable.
type BaseTable struct {
	mgr *config.Manager
}

// Option configures NewBaseTable.
type Option func(*baseTableOptions)

type baseTableOptions struct {
	yamlFiles       []string
	refreshInterval time.Duration
	skipEnv         bool
	envPrefix       string
}

func Files(files []string) Option {
	return func(o *baseTableOptions) { o.yamlFiles = files }
}

func RefreshInterval(d time.Duration) Option {
	return func(o *baseTableOptions) { o.refreshInterval = d }
}

func SkipEnv(skip bool) Option {
	return func(o *baseTableOptions) { o.skipEnv = skip }
}

func EnvPrefix(prefix string) Option {
	return func(o *baseTableOptions) { o.envPrefix = prefix }
}

// NewBaseTable constructs a BaseTable. File sources are optional: if no file
// in opts exists, the Manager simply serves defaults/env for every ParamItem.
func NewBaseTable(opts ...Option) (*BaseTable, error) {
	o := &baseTableOptions{
		refreshInterval: 5 * time.Second,
		envPrefix:       "SHUFFLEPOOL_",
	}
	for _, opt := range opts {
		opt(o)
	}

	bt := &BaseTable{mgr: config.NewManager()}

	if !o.skipEnv {
		formatter := func(key string) string {
			ret := strings.ToLower(key)
			ret = strings.TrimPrefix(ret, strings.ToLower(o.envPrefix))
			ret = strings.ReplaceAll(ret, "_", ".")
			return ret
		}
		bt.mgr.AddSource(config.NewEnvSource(o.envPrefix, formatter))
	}

	if len(o.yamlFiles) > 0 {
		fs, err := config.NewFileSource(&config.FileInfo{
			Files:           o.yamlFiles,
			RefreshInterval: o.refreshInterval,
		})
		if err != nil {
			log.Warn("paramtable: failed to load file source, falling back to defaults", zap.Error(err))
		} else {
			bt.mgr.AddSource(fs)
		}
	}

	return bt, nil
}

func (bt *BaseTable) Manager() *config.Manager { return bt.mgr }
