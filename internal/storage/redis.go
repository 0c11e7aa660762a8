package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/constants"
	"resume-rag/internal/logger"
	"resume-rag/internal/tracing"
	"resume-rag/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound key 不存在或模型版本不匹配
var ErrNotFound = errors.New("redis: key not found")

// Redis 包装 go-redis 客户端，作为 JD 向量的二级缓存
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
	logger zerolog.Logger
}

// NewRedisAdapter 创建 Redis 连接并挂载 OpenTelemetry 钩子
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	}

	client := redis.NewClient(opt)

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
		logger: logger.Component("redis"),
	}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// SetQueryVector 将 JD 向量和模型版本写入 HASH，并设置过期时间
func (r *Redis) SetQueryVector(ctx context.Context, textHash string, vector types.Vector, modelVersion string, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	cacheKey := fmt.Sprintf(constants.KeyQueryVector, textHash)

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, cacheKey, constants.FieldVector, vectorJSON, constants.FieldModelVersion, modelVersion)
	if ttl > 0 {
		pipe.Expire(ctx, cacheKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("设置 JD 向量缓存失败 %s: %w", tracing.SafeRedisKey(cacheKey), err)
	}
	return nil
}

// GetQueryVector 读取 JD 向量；不存在或模型版本不一致时返回 ErrNotFound
func (r *Redis) GetQueryVector(ctx context.Context, textHash string, modelVersion string) (types.Vector, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}
	cacheKey := fmt.Sprintf(constants.KeyQueryVector, textHash)

	vals, err := r.Client.HMGet(ctx, cacheKey, constants.FieldVector, constants.FieldModelVersion).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) < 2 || vals[0] == nil {
		return nil, ErrNotFound
	}

	if stored, _ := vals[1].(string); stored != modelVersion {
		r.logger.Debug().Str("key", tracing.SafeRedisKey(cacheKey)).Str("stored", stored).Str("current", modelVersion).Msg("向量模型版本不一致，忽略缓存")
		return nil, ErrNotFound
	}

	vectorJSON, ok := vals[0].(string)
	if !ok || vectorJSON == "" {
		return nil, fmt.Errorf("向量缓存格式错误")
	}
	var vector types.Vector
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return nil, fmt.Errorf("反序列化向量失败: %w", err)
	}
	return vector, nil
}
