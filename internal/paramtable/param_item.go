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

// Package paramtable is the typed configuration layer over internal/config,
// in the teacher's ParamItem / BaseTable idiom: a ParamItem declares its
// config key and default, Init binds it to a Manager, and GetAsXxx do the
// string-to-typed-value conversion lazily on every read so runtime
// overrides (SetConfig) are picked up without re-Init'ing anything.
package paramtable

import (
	"strconv"
	"strings"
	"time"

	"github.com/xige-16/shuffle-buffer-pool/internal/config"
)

// ParamItem declares one configuration key, its default, and documentation.
type ParamItem struct {
	Key          string
	DefaultValue string
	Doc          string
	Export       bool

	mgr *config.Manager
}

// Init binds the item to a Manager. Must be called once before any GetAsXxx.
func (p *ParamItem) Init(mgr *config.Manager) {
	p.mgr = mgr
}

// GetValue returns the raw string value, falling back to DefaultValue.
func (p *ParamItem) GetValue() string {
	if p.mgr == nil {
		return p.DefaultValue
	}
	v, err := p.mgr.GetConfig(p.Key)
	if err != nil {
		return p.DefaultValue
	}
	return v
}

// SetValue installs a runtime override for this item.
func (p *ParamItem) SetValue(value string) {
	if p.mgr != nil {
		p.mgr.SetConfig(p.Key, value)
	}
}

func (p *ParamItem) GetAsInt() int {
	v, err := strconv.Atoi(strings.TrimSpace(p.GetValue()))
	if err != nil {
		dv, _ := strconv.Atoi(p.DefaultValue)
		return dv
	}
	return v
}

func (p *ParamItem) GetAsInt64() int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(p.GetValue()), 10, 64)
	if err != nil {
		dv, _ := strconv.ParseInt(p.DefaultValue, 10, 64)
		return dv
	}
	return v
}

func (p *ParamItem) GetAsFloat() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.GetValue()), 64)
	if err != nil {
		dv, _ := strconv.ParseFloat(p.DefaultValue, 64)
		return dv
	}
	return v
}

func (p *ParamItem) GetAsBool() bool {
	v, err := strconv.ParseBool(strings.TrimSpace(p.GetValue()))
	if err != nil {
		dv, _ := strconv.ParseBool(p.DefaultValue)
		return dv
	}
	return v
}

// GetAsDuration interprets the value as a count of unit, as the teacher's
// ParamItem.GetAsDuration(time.Second) call sites do.
func (p *ParamItem) GetAsDuration(unit time.Duration) time.Duration {
	return time.Duration(p.GetAsInt64()) * unit
}

// GetAsBytes parses the value as a plain byte count (no suffix support;
// callers express chunkSize/capacity in bytes, matching spec.md's units).
func (p *ParamItem) GetAsBytes() int64 {
	return p.GetAsInt64()
}
