package ratelimit

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedChatModel 对模型调用做 QPM 限流，只等待令牌，不重试
type RateLimitedChatModel struct {
	inner   model.ToolCallingChatModel
	limiter *TokenBucket
}

// NewRateLimitedChatModel qpm <= 0 时直接返回原模型
func NewRateLimitedChatModel(inner model.ToolCallingChatModel, qpm int) model.ToolCallingChatModel {
	if qpm <= 0 {
		return inner
	}
	return &RateLimitedChatModel{
		inner:   inner,
		limiter: NewTokenBucket(qpm, qpm/2),
	}
}

func (rl *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return rl.inner.Generate(ctx, messages, opts...)
}

func (rl *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return rl.inner.Stream(ctx, messages, opts...)
}

// WithTools 新模型与原模型共享同一个限流器
func (rl *RateLimitedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m, err := rl.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &RateLimitedChatModel{inner: m, limiter: rl.limiter}, nil
}
