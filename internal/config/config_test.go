package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"resume-rag/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")
	return configPath
}

// TestLoadConfigAppliesDefaults 未填写的字段应使用默认值
func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	configPath := writeConfig(t, `
server:
  address: ":9090"
pipeline:
  top_k: 5
`)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, DefaultChunkSize, cfg.Pipeline.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, DefaultMaxContextChars, cfg.Pipeline.MaxContextChars)
	assert.Equal(t, DefaultMaxJDChars, cfg.Pipeline.MaxJDChars)
	assert.Equal(t, DefaultQueryMemoSize, cfg.Pipeline.QueryMemoSize)
	assert.InDelta(t, 0.3, cfg.Generation.Temperature, 1e-6)
	assert.Equal(t, 800, cfg.Generation.MaxTokens)
	assert.Equal(t, "local", cfg.Embedding.Backend)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.False(t, cfg.GenerationEnabled(), "没有密钥时生成后端应视为未配置")
}

// TestLoadConfigRemoteEmbeddingLeavesDimensionsUnset 远程嵌入模型不套用本地模型的 384 维
func TestLoadConfigRemoteEmbeddingLeavesDimensionsUnset(t *testing.T) {
	t.Setenv("EMBEDDING_BACKEND", "")
	configPath := writeConfig(t, `
embedding:
  backend: openai-compat
  model: nomic-embed-text
  base_url: http://localhost:11434/v1
`)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "openai-compat", cfg.Embedding.Backend)
	assert.Equal(t, 0, cfg.Embedding.Dimensions)

	configPath = writeConfig(t, `
embedding:
  backend: openai-compat
  dimensions: 768
`)
	cfg, err = LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.Embedding.Dimensions, "显式配置的维度保留")
}

// TestLoadConfigEnvOverride 环境变量优先于配置文件
func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("SERVER_ADDRESS", ":7070")
	configPath := writeConfig(t, `
generation:
  api_key: "from-file"
server:
  address: ":9090"
`)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "gsk_test", cfg.Generation.APIKey)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.True(t, cfg.GenerationEnabled())
}

// TestLoadConfigRejectsOverlapNotSmallerThanSize 重叠不小于块大小时无法前进，应报配置错误
func TestLoadConfigRejectsOverlapNotSmallerThanSize(t *testing.T) {
	configPath := writeConfig(t, `
pipeline:
  chunk_size: 50
  chunk_overlap: 50
`)

	_, err := LoadConfig(configPath)
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	configPath := writeConfig(t, `
embedding:
  backend: "faiss"
`)

	_, err := LoadConfig(configPath)
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestCreateSampleConfigRoundTrip(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))
	assert.Error(t, CreateSampleConfig(path), "已存在的文件不应被覆盖")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "none", cfg.Snapshot.Backend)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 3*time.Minute, GetDuration("3m", time.Second))
	assert.Equal(t, time.Second, GetDuration("", time.Second))
	assert.Equal(t, time.Second, GetDuration("soon", time.Second))
}
