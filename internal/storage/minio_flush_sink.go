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
	"bytes"
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xige-16/shuffle-buffer-pool/internal/log"
)

// MinioFlushSink writes flushed batches to an S3-compatible object store
// via minio-go, adapted from the teacher's RemoteChunkManager/putObject
// path with the Azure branch dropped: durable storage format is out of
// scope here, so this only ever needs Put, not the teacher's full
// ObjectStorage surface (Get/Stat/List/Remove included).
type MinioFlushSink struct {
	client     *minio.Client
	bucketName string
	rootPath   string
}

// MinioConfig is the connection configuration for MinioFlushSink.
type MinioConfig struct {
	Address         string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	RootPath        string
	CreateBucket    bool
}

// NewMinioFlushSink connects to the configured endpoint and, if
// cfg.CreateBucket is set, ensures the bucket exists.
func NewMinioFlushSink(ctx context.Context, cfg MinioConfig) (*MinioFlushSink, error) {
	client, err := minio.New(cfg.Address, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create minio client")
	}

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.BucketName)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check bucket %s", cfg.BucketName)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
				return nil, errors.Wrapf(err, "failed to create bucket %s", cfg.BucketName)
			}
		}
	}

	sink := &MinioFlushSink{
		client:     client,
		bucketName: cfg.BucketName,
		rootPath:   strings.TrimLeft(cfg.RootPath, "/"),
	}
	log.Info("storage: minio flush sink initialized", zap.String("bucket", cfg.BucketName), zap.String("root", sink.rootPath))
	return sink, nil
}

func (s *MinioFlushSink) objectName(key string) string {
	if s.rootPath == "" {
		return key
	}
	return s.rootPath + "/" + strings.TrimLeft(key, "/")
}

// Write uploads data under key.
func (s *MinioFlushSink) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucketName, s.objectName(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		log.Warn("storage: failed to put object", zap.String("bucket", s.bucketName), zap.String("key", key), zap.Error(err))
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

// MultiWrite uploads every key in kvs concurrently, bounded to a fixed
// fan-out, mirroring RemoteChunkManager.RemoveWithPrefix's batched
// errgroup pattern for bulk object operations.
func (s *MinioFlushSink) MultiWrite(ctx context.Context, kvs map[string][]byte) error {
	const maxConcurrency = 10

	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}

	for i := 0; i < len(keys); {
		group, groupCtx := errgroup.WithContext(ctx)
		for j := 0; j < maxConcurrency && i < len(keys); j++ {
			key := keys[i]
			value := kvs[key]
			group.Go(func() error {
				return s.Write(groupCtx, key, value)
			})
			i++
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}
	return nil
}

var _ FlushSink = (*MinioFlushSink)(nil)
