package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"resume-rag/internal/config"
	"resume-rag/internal/constants"
	"resume-rag/internal/index"
	"resume-rag/internal/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOSnapshotStore 把索引快照保存为对象存储中的 JSON 对象
type MinIOSnapshotStore struct {
	client *minio.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewMinIOSnapshotStore 创建客户端并确保存储桶存在
func NewMinIOSnapshotStore(ctx context.Context, cfg *config.MinIOConfig) (*MinIOSnapshotStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	s := &MinIOSnapshotStore{
		client: client,
		bucket: cfg.BucketName,
		prefix: cfg.Prefix,
		logger: logger.Component("minio"),
	}
	if err := s.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}
	s.logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", s.bucket).Msg("MinIO快照存储初始化成功")
	return s, nil
}

func (s *MinIOSnapshotStore) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", s.bucket, err)
	}
	s.logger.Info().Str("bucket", s.bucket).Msg("存储桶已创建")
	return nil
}

func (s *MinIOSnapshotStore) objectName(key string) string {
	return s.prefix + key + constants.SnapshotObjectSuffix
}

// SaveSnapshot 实现 index.SnapshotStore
func (s *MinIOSnapshotStore) SaveSnapshot(ctx context.Context, snap *index.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.objectName(snap.Key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("上传快照失败: %w", err)
	}
	return nil
}

// LoadSnapshot 实现 index.SnapshotStore
func (s *MinIOSnapshotStore) LoadSnapshot(ctx context.Context, key string) (*index.Snapshot, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取快照失败: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, index.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}

	var snap index.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析快照失败: %w", err)
	}
	return &snap, nil
}
