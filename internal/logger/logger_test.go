package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "debug", Format: "json"}, &buf)

	cl := Component("chunker")
	cl.Debug().Int("chunks", 3).Msg("分块完成")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "输出应为单行JSON")
	assert.Equal(t, "chunker", entry["component"])
	assert.Equal(t, float64(3), entry["chunks"])
	assert.Equal(t, "debug", entry["level"])
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "info"}, &buf)

	Ctx(context.Background()).Info().Msg("no logger in ctx")
	assert.Contains(t, buf.String(), "no logger in ctx")

	buf.Reset()
	ctx := WithRequestID(context.Background(), "req-1")
	Ctx(ctx).Info().Msg("with id")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "verbose"}, &buf)

	Debug().Msg("hidden")
	Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
