package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// CompatChatModel 直接调用 OpenAI 兼容的 /chat/completions 接口，强制 JSON 输出
type CompatChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float32
	maxTokens   int
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewCompatChatModel 创建兼容接口的模型
func NewCompatChatModel(cfg config.GenerationConfig) (*CompatChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	modelName := cfg.Model
	if strings.TrimSpace(modelName) == "" {
		modelName = config.DefaultGroqModel
	}
	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = config.DefaultGroqBaseURL
	}
	apiURL := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(apiURL, "/chat/completions") {
		apiURL += "/chat/completions"
	}

	l := logger.Component("compat_chat")
	l.Info().Str("url", apiURL).Str("model", modelName).Msg("使用 OpenAI 兼容生成接口")

	return &CompatChatModel{
		apiKey:      cfg.APIKey,
		modelName:   modelName,
		apiURL:      apiURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		logger:      l,
	}, nil
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatResponseFormat struct {
	Type string `json:"type"`
}

type compatChatRequest struct {
	Model          string                `json:"model"`
	Messages       []compatMessage       `json:"messages"`
	Temperature    *float32              `json:"temperature,omitempty"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	ResponseFormat *compatResponseFormat `json:"response_format,omitempty"`
}

type compatChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate 实现 model.ChatModel
func (m *CompatChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
		Model:       &m.modelName,
	}, opts...)

	reqPayload := compatChatRequest{
		Model:          *options.Model,
		Messages:       make([]compatMessage, 0, len(messages)),
		Temperature:    options.Temperature,
		ResponseFormat: &compatResponseFormat{Type: "json_object"},
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		reqPayload.MaxTokens = options.MaxTokens
	}
	for _, msg := range messages {
		reqPayload.Messages = append(reqPayload.Messages, compatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	m.logger.Debug().Str("model", reqPayload.Model).Int("messages", len(messages)).Msg("发送生成请求")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, firstRunes(string(bodyBytes), 300))
	}

	var resp compatChatResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, fmt.Errorf("API 返回错误: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("API 返回空 choices")
	}

	content := ""
	if resp.Choices[0].Message.Content != nil {
		content = *resp.Choices[0].Message.Content
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream 只支持一次性输出，包装为单元素流
func (m *CompatChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 分析场景不使用工具调用
func (m *CompatChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		return nil, fmt.Errorf("CompatChatModel 不支持工具调用")
	}
	return m, nil
}

var _ model.ToolCallingChatModel = (*CompatChatModel)(nil)
