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

// Package config implements the layered configuration source/manager split
// the teacher's pkg/config and pkg/util/paramtable build on: independent
// sources (file, env) of decreasing priority are merged by a Manager into a
// flat string map, which paramtable.ParamItem then type-converts on read.
package config

const (
	// LowPriority is the priority of file-backed sources; env overrides file.
	LowPriority = 0
	// HighPriority is the priority of environment-backed sources.
	HighPriority = 10
)

// Source is one layer of configuration (a YAML file tree, the process
// environment, ...).
type Source interface {
	GetConfigurations() (map[string]string, error)
	GetConfigurationByKey(key string) (string, error)
	GetPriority() int
	GetSourceName() string
	Close()
}
