package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// CompatEmbedder 调用 OpenAI 兼容的 /embeddings 接口，实现 eino embedding.Embedder
type CompatEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewCompatEmbedder 创建兼容接口的 Embedder
func NewCompatEmbedder(apiKey string, cfg config.EmbeddingConfig) (*CompatEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url 不能为空")
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(endpoint, "/embeddings") {
		endpoint += "/embeddings"
	}

	return &CompatEmbedder{
		apiKey:     apiKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: config.GetDuration(cfg.Timeout, 30*time.Second)},
		logger:     logger.Component("compat_embedder"),
	}, nil
}

type compatEmbeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type compatEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *compatAPIError `json:"error,omitempty"`
}

type compatAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// EmbedStrings 实现 eino embedding.Embedder
func (c *CompatEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := einoembedding.GetCommonOptions(&einoembedding.Options{}, opts...)
	model := c.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	reqBody := compatEmbeddingRequest{
		Input:          texts,
		Model:          model,
		Dimensions:     c.dimensions,
		EncodingFormat: "float",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug().Str("model", model).Int("texts", len(texts)).Msg("发送向量化请求")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var wrapped struct {
			Error *compatAPIError `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s", resp.StatusCode, wrapped.Error.Type, wrapped.Error.Message)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed compatEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s'", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("返回向量数量 %d 与输入 %d 不一致", len(parsed.Data), len(texts))
	}

	// 服务端不保证按 index 顺序返回
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float64, len(parsed.Data))
	for i, entry := range parsed.Data {
		out[i] = entry.Embedding
	}

	c.logger.Debug().
		Int("texts", len(texts)).
		Int("dim", len(out[0])).
		Int("prompt_tokens", parsed.Usage.PromptTokens).
		Str("preview", previewVector(out[0])).
		Msg("向量化完成")
	return out, nil
}

// previewVector 截断向量用于日志
func previewVector(vector []float64) string {
	const showEachSide = 3
	if len(vector) <= showEachSide*2 {
		return fmt.Sprintf("%v", vector)
	}
	parts := make([]string, 0, showEachSide*2+1)
	for _, v := range vector[:showEachSide] {
		parts = append(parts, fmt.Sprintf("%.4f", v))
	}
	parts = append(parts, "...")
	for _, v := range vector[len(vector)-showEachSide:] {
		parts = append(parts, fmt.Sprintf("%.4f", v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
