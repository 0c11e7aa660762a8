package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorIs(t *testing.T) {
	err := NewEmbeddingBackendError("embed", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, ErrEmbeddingBackend))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "应能穿透到底层原因")
	assert.False(t, errors.Is(err, ErrConfiguration))

	wrapped := fmt.Errorf("pipeline: %w", NewConfigurationError("chunk", "overlap >= size"))
	assert.True(t, IsConfigurationError(wrapped))
	assert.Contains(t, wrapped.Error(), "overlap >= size")
}

func TestNormalizeFillsEmptySlices(t *testing.T) {
	r := AnalysisResult{Score: 140}.Normalize()

	assert.Equal(t, 100, r.Score)
	assert.NotNil(t, r.MissingSkills)
	assert.NotNil(t, r.Suggestions)
	assert.NotNil(t, r.RewrittenBullets)
}
