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
	"sort"
	"sync"
)

// Manager merges configuration from every registered Source, higher
// GetPriority() values winning ties, and additionally holds explicit
// overrides set at runtime via SetConfig (used by paramtable's watermark
// reconfiguration path).
type Manager struct {
	mu       sync.RWMutex
	sources  []Source
	override map[string]string
}

// NewManager returns an empty Manager with no sources registered.
func NewManager() *Manager {
	return &Manager{override: make(map[string]string)}
}

// AddSource registers a configuration source. Sources are consulted from
// highest to lowest priority on every lookup.
func (m *Manager) AddSource(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, s)
	sort.SliceStable(m.sources, func(i, j int) bool {
		return m.sources[i].GetPriority() > m.sources[j].GetPriority()
	})
}

// GetConfig returns the effective value for key: a runtime override if one
// was set via SetConfig, else the first source (by priority) that has it.
func (m *Manager) GetConfig(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.override[key]; ok {
		return v, nil
	}
	for _, s := range m.sources {
		if v, err := s.GetConfigurationByKey(key); err == nil {
			return v, nil
		}
	}
	return "", fmt.Errorf("config: key not found: %s", key)
}

// SetConfig installs a runtime override for key, taking precedence over
// every registered Source until ResetConfig is called.
func (m *Manager) SetConfig(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override[key] = value
}

// ResetConfig removes a runtime override for key.
func (m *Manager) ResetConfig(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.override, key)
}

// GetConfigs returns a merged snapshot across all sources and overrides,
// lowest priority first so higher-priority sources win on key collision.
func (m *Manager) GetConfigs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	for i := len(m.sources) - 1; i >= 0; i-- {
		cfgs, err := m.sources[i].GetConfigurations()
		if err != nil {
			continue
		}
		for k, v := range cfgs {
			out[k] = v
		}
	}
	for k, v := range m.override {
		out[k] = v
	}
	return out
}

// Close shuts down every registered source.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sources {
		s.Close()
	}
}
