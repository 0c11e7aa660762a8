// Package generation 调用生成模型并把输出整理为分析结果。
package generation

import (
	"context"
	"errors"
	"fmt"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"
	"resume-rag/internal/prompt"
	"resume-rag/internal/ratelimit"
	"resume-rag/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// Generator 把提示词转换为分析结果，从不返回错误，失败时给出降级结果
type Generator interface {
	Generate(ctx context.Context, prompt string) types.AnalysisResult
}

// Client 基于 eino ChatModel 的生成客户端，不做重试
type Client struct {
	chatModel     model.ToolCallingChatModel
	systemMessage string
	temperature   float32
	maxTokens     int
	logger        zerolog.Logger
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithSystemMessage 替换系统消息
func WithSystemMessage(msg string) ClientOption {
	return func(c *Client) {
		c.systemMessage = msg
	}
}

// WithTemperature 设置采样温度
func WithTemperature(t float32) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithMaxTokens 设置最大输出 token 数
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient 创建生成客户端
func NewClient(chatModel model.ToolCallingChatModel, opts ...ClientOption) *Client {
	c := &Client{
		chatModel:     chatModel,
		systemMessage: prompt.SystemMessage,
		temperature:   config.DefaultTemperature,
		maxTokens:     config.DefaultMaxTokens,
		logger:        logger.Component("generation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate 实现 Generator
func (c *Client) Generate(ctx context.Context, promptText string) types.AnalysisResult {
	messages := []*schema.Message{
		schema.SystemMessage(c.systemMessage),
		schema.UserMessage(promptText),
	}

	resp, err := c.chatModel.Generate(ctx, messages,
		model.WithTemperature(c.temperature),
		model.WithMaxTokens(c.maxTokens),
	)
	if err == nil && resp == nil {
		err = errors.New("empty response from model")
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("生成模型调用失败")
		return APIErrorResult(err)
	}

	c.logger.Debug().Str("output", firstRunes(resp.Content, 200)).Msg("模型输出")

	result, missing, perr := parse(resp.Content)
	switch {
	case perr != nil:
		c.logger.Error().Err(perr).Str("raw", firstRunes(resp.Content, 500)).Msg("模型输出不是合法JSON")
	case len(missing) > 0:
		c.logger.Warn().Strs("missing", missing).Msg("模型输出缺少字段，已使用默认值")
	default:
		c.logger.Debug().Int("score", result.Score).Msg("解析分析结果成功")
	}
	return result
}

// Disabled 没有配置生成后端时使用，总是返回提示配置密钥的结果
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, promptText string) types.AnalysisResult {
	logger.Warn().Msg("生成后端未配置，返回固定提示")
	return NotConfiguredResult()
}

// New 根据配置在启动时选择生成后端；未配置密钥时返回 Disabled
func New(cfg config.GenerationConfig, opts ...ClientOption) (Generator, error) {
	if cfg.Backend == "disabled" || cfg.APIKey == "" {
		return Disabled{}, nil
	}

	var chatModel model.ToolCallingChatModel
	var err error
	switch cfg.Backend {
	case "openai":
		chatModel, err = NewOpenAIChatModel(cfg)
	case "compat":
		chatModel, err = NewCompatChatModel(cfg)
	default:
		return nil, types.NewConfigurationError("generation", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	chatModel = ratelimit.NewRateLimitedChatModel(chatModel, cfg.QPM)
	opts = append([]ClientOption{WithTemperature(cfg.Temperature), WithMaxTokens(cfg.MaxTokens)}, opts...)
	return NewClient(chatModel, opts...), nil
}
