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

// Package metrics defines the MetricsSink the buffer pool core reports
// through, plus a prometheus-backed default implementation. The core itself
// never imports prometheus directly (DESIGN NOTES §9: "abstract this as a
// MetricsSink trait injected at construction; default is a no-op for tests").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FlushTrigger labels why a flush was dispatched.
type FlushTrigger string

const (
	TriggerSingleBuffer FlushTrigger = "single_buffer"
	TriggerWatermark    FlushTrigger = "watermark"
	TriggerForced       FlushTrigger = "forced"
)

// Sink is the metrics collaborator the buffer pool core reports through.
// Every method must be safe to call with no side effects under heavy
// concurrent load; NoopSink satisfies that trivially and is the zero value
// used by tests.
type Sink interface {
	SetUsedMemory(bytes int64)
	SetPreAllocated(bytes int64)
	SetInFlush(bytes int64)
	SetReadUsed(bytes int64)
	SetLiveMemory(bytes int64)
	ObserveFlushDispatch(trigger FlushTrigger, blockCount int, bytes int64)
	ObserveAppendBlockSize(appID string, bytes int64)
}

// NoopSink implements Sink with no-ops; it is the zero value.
type NoopSink struct{}

func (NoopSink) SetUsedMemory(int64)                                  {}
func (NoopSink) SetPreAllocated(int64)                                {}
func (NoopSink) SetInFlush(int64)                                     {}
func (NoopSink) SetReadUsed(int64)                                    {}
func (NoopSink) SetLiveMemory(int64)                                  {}
func (NoopSink) ObserveFlushDispatch(FlushTrigger, int, int64)        {}
func (NoopSink) ObserveAppendBlockSize(string, int64)                 {}

var _ Sink = NoopSink{}
var _ Sink = (*PrometheusSink)(nil)

// PrometheusSink reports buffer pool accounting and flush activity to the
// default prometheus registry, in the shape of the teacher's
// pkg/metrics gauges/counters/histograms (DataNodeFlushedSize,
// DataNodeEncodeBufferLatency, ...).
type PrometheusSink struct {
	usedMemory      prometheus.Gauge
	preAllocated    prometheus.Gauge
	inFlush         prometheus.Gauge
	readUsed        prometheus.Gauge
	liveMemory      prometheus.Gauge
	flushDispatched *prometheus.CounterVec
	flushBytes      *prometheus.HistogramVec
	appBlockSize    *prometheus.HistogramVec

	appBlockSizeEnabled bool
}

// NewPrometheusSink registers and returns a PrometheusSink. appBlockSizeEnabled
// mirrors the appBlockSizeMetricEnabled configuration option: when false,
// ObserveAppendBlockSize is a no-op so per-app cardinality is never paid for
// unless explicitly opted into.
func NewPrometheusSink(reg prometheus.Registerer, appBlockSizeEnabled bool) *PrometheusSink {
	s := &PrometheusSink{
		usedMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shufflepool", Name: "used_memory_bytes",
			Help: "Bytes currently counted against the write-memory budget.",
		}),
		preAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shufflepool", Name: "pre_allocated_bytes",
			Help: "Bytes reserved but not yet committed to a partition buffer.",
		}),
		inFlush: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shufflepool", Name: "in_flush_bytes",
			Help: "Bytes snapshotted into in-flight flush events awaiting completion.",
		}),
		readUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shufflepool", Name: "read_used_bytes",
			Help: "Bytes currently counted against the read-memory budget.",
		}),
		liveMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shufflepool", Name: "live_memory_bytes",
			Help: "used - preAllocated - inFlush; compared against the high watermark.",
		}),
		flushDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shufflepool", Name: "flush_dispatched_total",
			Help: "Number of flush events dispatched, by trigger.",
		}, []string{"trigger"}),
		flushBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shufflepool", Name: "flush_batch_bytes",
			Help:    "Size distribution of dispatched flush batches.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"trigger"}),
		appBlockSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shufflepool", Name: "append_block_size_bytes",
			Help:    "Size distribution of appended blocks, per app.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"app"}),
		appBlockSizeEnabled: appBlockSizeEnabled,
	}

	if reg != nil {
		reg.MustRegister(s.usedMemory, s.preAllocated, s.inFlush, s.readUsed,
			s.liveMemory, s.flushDispatched, s.flushBytes, s.appBlockSize)
	}
	return s
}

func (s *PrometheusSink) SetUsedMemory(bytes int64)   { s.usedMemory.Set(float64(bytes)) }
func (s *PrometheusSink) SetPreAllocated(bytes int64) { s.preAllocated.Set(float64(bytes)) }
func (s *PrometheusSink) SetInFlush(bytes int64)      { s.inFlush.Set(float64(bytes)) }
func (s *PrometheusSink) SetReadUsed(bytes int64)     { s.readUsed.Set(float64(bytes)) }
func (s *PrometheusSink) SetLiveMemory(bytes int64)   { s.liveMemory.Set(float64(bytes)) }

func (s *PrometheusSink) ObserveFlushDispatch(trigger FlushTrigger, _ int, bytes int64) {
	s.flushDispatched.WithLabelValues(string(trigger)).Inc()
	s.flushBytes.WithLabelValues(string(trigger)).Observe(float64(bytes))
}

func (s *PrometheusSink) ObserveAppendBlockSize(appID string, bytes int64) {
	if !s.appBlockSizeEnabled {
		return
	}
	s.appBlockSize.WithLabelValues(appID).Observe(float64(bytes))
}
