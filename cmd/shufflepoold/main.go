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

// Command shufflepoold is a local driver for the shuffle buffer pool core.
// There is no wire protocol (out of scope), so it does not listen for RPCs:
// it loads a config file, builds a Manager wired to the configured flush
// sink, serves prometheus metrics, and replays a scripted workload file of
// register/append/commit/remove operations against the pool.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xige-16/shuffle-buffer-pool/internal/bufferpool"
	"github.com/xige-16/shuffle-buffer-pool/internal/flush"
	"github.com/xige-16/shuffle-buffer-pool/internal/log"
	"github.com/xige-16/shuffle-buffer-pool/internal/metrics"
	"github.com/xige-16/shuffle-buffer-pool/internal/paramtable"
	"github.com/xige-16/shuffle-buffer-pool/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a bufferpool config YAML file")
	workloadPath := flag.String("workload", "", "path to a scripted JSON-lines workload file")
	metricsAddr := flag.String("metrics-addr", ":9187", "address to serve /metrics on")
	flag.Parse()

	var files []string
	if *configPath != "" {
		files = []string{*configPath}
	}
	bt, err := paramtable.NewBaseTable(paramtable.Files(files))
	if err != nil {
		panic("init base table failed, " + err.Error())
	}

	var cfg paramtable.BufferPoolConfig
	if err := cfg.Init(bt); err != nil {
		panic("init bufferpool config failed, " + err.Error())
	}

	if err := log.Init(log.Config{
		Level:  cfg.LogLevel.GetValue(),
		Format: cfg.LogFormat.GetValue(),
		Stdout: cfg.LogStdout.GetAsBool(),
	}); err != nil {
		panic("init logger failed, " + err.Error())
	}

	log.Info("shufflepoold starting",
		zap.String("config", *configPath),
		zap.String("workload", *workloadPath),
		zap.String("metricsAddr", *metricsAddr))

	ctx := context.Background()

	sink, err := buildFlushSink(ctx, &cfg)
	if err != nil {
		panic("build flush sink failed, " + err.Error())
	}

	dispatcher := flush.NewDispatcher(sink, cfg.FlushDispatchWorkers.GetAsInt(), cfg.FlushDispatchQueueLen.GetAsInt())
	dispatcher.Start()
	defer dispatcher.Close()

	metricsSink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer, cfg.AppBlockSizeMetricEnabled.GetAsBool())

	wm := cfg.Watermarks()
	manager := bufferpool.NewManager(bufferpool.ManagerOptions{
		Capacity:     cfg.Capacity.GetAsInt64(),
		ReadCapacity: cfg.ReadCapacity.GetAsInt64(),
		BufferType:   bufferpool.BufferType(cfg.BufferType.GetValue()),
		Allocator:    newAllocator(&cfg),
		FlushManager: dispatcher,
		Sink:         metricsSink,
		Scheduler: bufferpool.SchedulerConfig{
			HighWatermark:                   wm.High,
			LowWatermark:                    wm.Low,
			ShuffleFlushThreshold:           cfg.ShuffleFlushThreshold.GetAsInt64(),
			SingleBufferFlushEnabled:        cfg.SingleBufferFlushEnabled.GetAsBool(),
			SingleBufferFlushThresholdBytes: cfg.SingleBufferFlushThresholdBytes.GetAsInt64(),
			SingleBufferFlushBlocks:         cfg.SingleBufferFlushBlocks.GetAsInt(),
			FlushTryLockTimeout:             cfg.FlushTryLockTimeout(),
			BufferFlushWhenCachingData:      cfg.BufferFlushWhenCachingData.GetAsBool(),
		},
		HugePartitionSizeThreshold: cfg.HugePartitionSizeThreshold.GetAsInt64(),
	})
	defer manager.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	defer server.Close()

	if *workloadPath != "" {
		if err := replayWorkload(manager, *workloadPath); err != nil {
			panic("replay workload failed, " + err.Error())
		}
	}

	log.Info("shufflepoold done")
}

func newAllocator(cfg *paramtable.BufferPoolConfig) *bufferpool.ChunkAllocator {
	if !cfg.LabEnabled.GetAsBool() {
		return nil
	}
	chunkSize := cfg.LabChunkSize.GetAsInt64()
	maxTotal := int64(float64(cfg.Capacity.GetAsInt64()) * cfg.LabMaxAllocRatio.GetAsFloat())
	return bufferpool.NewChunkAllocator(chunkSize, maxTotal)
}

func buildFlushSink(ctx context.Context, cfg *paramtable.BufferPoolConfig) (storage.FlushSink, error) {
	switch cfg.StorageBackend.GetValue() {
	case "minio":
		return storage.NewMinioFlushSink(ctx, storage.MinioConfig{
			Address:         cfg.MinioAddress.GetValue(),
			AccessKeyID:     cfg.MinioAccessKeyID.GetValue(),
			SecretAccessKey: cfg.MinioSecretAccessKey.GetValue(),
			UseSSL:          cfg.MinioUseSSL.GetAsBool(),
			BucketName:      cfg.MinioBucketName.GetValue(),
			RootPath:        cfg.MinioRootPath.GetValue(),
			CreateBucket:    cfg.MinioCreateBucket.GetAsBool(),
		})
	default:
		return storage.NewLocalFlushSink(cfg.StorageLocalDir.GetValue())
	}
}

// workloadOp is one line of a scripted workload file: a register, append,
// commit, or remove operation against the pool, replayed in file order.
// This is a local exerciser, not a wire format (protocol design is out of
// scope); only base64 block payloads need to round-trip through JSON.
type workloadOp struct {
	Op          string `json:"op"`
	AppID       string `json:"app"`
	ShuffleID   int64  `json:"shuffle"`
	Lo          int64  `json:"lo"`
	Hi          int64  `json:"hi"`
	PartitionID int64  `json:"partition"`
	BlockID     int64  `json:"blockId"`
	TaskAttempt int64  `json:"taskAttempt"`
	SeqNo       int64  `json:"seqNo"`
	Data        string `json:"data"`
	ReadBuf     int64  `json:"readBuf"`
}

func replayWorkload(m *bufferpool.Manager, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var op workloadOp
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			log.Warn("shufflepoold: skipping malformed workload line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		applyOp(m, lineNo, op)
	}
	return scanner.Err()
}

func applyOp(m *bufferpool.Manager, lineNo int, op workloadOp) {
	key := bufferpool.ShuffleKey{AppID: op.AppID, ShuffleID: op.ShuffleID}

	switch op.Op {
	case "register":
		code := m.RegisterBuffer(key, bufferpool.PartitionRange{Lo: op.Lo, Hi: op.Hi})
		log.Info("shufflepoold: register", zap.Int("line", lineNo), zap.Stringer("result", code))
	case "append":
		data, err := decodeBlockData(op.Data)
		if err != nil {
			log.Warn("shufflepoold: bad block data", zap.Int("line", lineNo), zap.Error(err))
			return
		}
		if code := m.RequireMemory(int64(len(data))); code != bufferpool.Success {
			log.Warn("shufflepoold: append refused, no memory", zap.Int("line", lineNo), zap.Stringer("result", code))
			return
		}
		block := bufferpool.Block{
			BlockID:       op.BlockID,
			TaskAttemptID: op.TaskAttempt,
			SeqNo:         op.SeqNo,
			Data:          data,
		}
		code := m.CacheShuffleData(key, op.PartitionID, block, true)
		if code != bufferpool.Success {
			m.ReleasePreAllocatedSize(int64(len(data)))
		}
		log.Info("shufflepoold: append", zap.Int("line", lineNo), zap.Stringer("result", code))
	case "get":
		blocks, code := m.GetShuffleData(key, op.PartitionID, op.BlockID, op.ReadBuf, nil)
		if code == bufferpool.Success {
			m.ReleaseReadMemory(sumBlockLen(blocks))
		}
		log.Info("shufflepoold: get", zap.Int("line", lineNo), zap.Int("blocks", len(blocks)), zap.Stringer("result", code))
	case "commit":
		code := m.CommitShuffleTask(key)
		log.Info("shufflepoold: commit", zap.Int("line", lineNo), zap.Stringer("result", code))
	case "removeShuffle":
		code := m.RemoveBufferByShuffleId(key)
		log.Info("shufflepoold: removeShuffle", zap.Int("line", lineNo), zap.Stringer("result", code))
	case "removeApp":
		code := m.RemoveBuffer(op.AppID)
		log.Info("shufflepoold: removeApp", zap.Int("line", lineNo), zap.Stringer("result", code))
	default:
		log.Warn("shufflepoold: unknown op", zap.Int("line", lineNo), zap.String("op", op.Op))
	}
}

func decodeBlockData(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func sumBlockLen(blocks []bufferpool.Block) int64 {
	var n int64
	for _, b := range blocks {
		n += b.DataLen()
	}
	return n
}
