package generation

import (
	"context"
	"fmt"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
)

// OpenAIChatModel 基于官方 SDK 的生成模型，Groq 等兼容服务通过 base_url 接入
type OpenAIChatModel struct {
	client      *openai.Client
	modelName   string
	temperature float32
	maxTokens   int
	logger      zerolog.Logger
}

// NewOpenAIChatModel 创建模型，SDK 自带的重试被关闭
func NewOpenAIChatModel(cfg config.GenerationConfig, extra ...option.RequestOption) (*OpenAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for openai backend")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = config.DefaultGroqModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	client := openai.NewClient(opts...)

	return &OpenAIChatModel{
		client:      &client,
		modelName:   modelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Component("openai_chat"),
	}, nil
}

// Generate 实现 model.ChatModel
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
		Model:       &m.modelName,
	}, opts...)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(*options.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(*options.MaxTokens))
	}
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	m.logger.Debug().Str("model", *options.Model).Int("messages", len(messages)).Msg("发送生成请求")

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	m.logger.Debug().
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("生成完成")
	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream 包装为单元素流
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 分析场景不使用工具调用
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		return nil, fmt.Errorf("OpenAIChatModel 不支持工具调用")
	}
	return m, nil
}

var _ model.ToolCallingChatModel = (*OpenAIChatModel)(nil)
