package storage

import (
	"context"
	"fmt"
	"io"

	"resume-rag/internal/config"
	"resume-rag/internal/index"
	"resume-rag/internal/logger"
)

// Storage 聚合可选的外部存储依赖；未配置的字段为 nil
type Storage struct {
	// 索引快照
	Snapshots index.SnapshotStore

	// JD 向量二级缓存
	Redis *Redis

	// 异步分析队列
	RabbitMQ *RabbitMQ

	closers []io.Closer
}

// Options 控制启动哪些组件
type Options struct {
	WithRedis    bool
	WithRabbitMQ bool
}

// NewStorage 按配置初始化存储组件。快照和 Redis 初始化失败只记录警告，
// 显式要求的 RabbitMQ 失败时返回错误。
func NewStorage(ctx context.Context, cfg *config.Config, opts Options) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	s := &Storage{}

	switch cfg.Snapshot.Backend {
	case "bolt":
		bolt, err := NewBoltSnapshotStore(cfg.Snapshot.Bolt.Path)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化bbolt快照存储失败，快照功能关闭")
		} else {
			s.Snapshots = bolt
			s.closers = append(s.closers, bolt)
		}
	case "minio":
		store, err := NewMinIOSnapshotStore(ctx, &cfg.Snapshot.MinIO)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO快照存储失败，快照功能关闭")
		} else {
			s.Snapshots = store
		}
	}

	if opts.WithRedis && cfg.Redis.Address != "" {
		r, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Redis失败，JD向量只使用进程内缓存")
		} else {
			s.Redis = r
			s.closers = append(s.closers, r)
		}
	}

	if opts.WithRabbitMQ {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
		}
		s.RabbitMQ = mq
		s.closers = append(s.closers, mq)
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭存储组件失败")
		}
	}
	s.closers = nil
}
