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

// Package log provides the process-wide structured logger used across the
// buffer pool service, mirroring the package-level zap logger pattern.
package log

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_globalL  *zap.Logger
	_globalS  *zap.SugaredLogger
	_globalMu sync.RWMutex
)

func init() {
	l, _ := zap.NewDevelopment()
	replace(l)
}

// Config controls the process-wide logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Stdout bool
}

// Init (re)configures the global logger from Config. Safe to call once at
// process start; defaults remain usable if Init is never called (tests).
func Init(cfg Config) error {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
	core := zapcore.NewCore(encoder, ws, level)
	l := zap.New(core, zap.AddCaller())
	replace(l)
	return nil
}

func replace(l *zap.Logger) {
	_globalMu.Lock()
	defer _globalMu.Unlock()
	_globalL = l
	_globalS = l.Sugar()
}

func logger() *zap.Logger {
	_globalMu.RLock()
	defer _globalMu.RUnlock()
	return _globalL
}

// Ctx returns a logger which, in a fuller deployment, would be enriched with
// trace/request fields carried on ctx. The buffer pool core never blocks on
// this and never panics if ctx is nil.
func Ctx(_ context.Context) *zap.Logger {
	return logger()
}

func Debug(msg string, fields ...zap.Field) { logger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger().Error(msg, fields...) }

// With returns a child logger carrying the given fields, matching the
// teacher's `log = log.With(...)` call sites.
func With(fields ...zap.Field) *zap.Logger {
	return logger().With(fields...)
}

