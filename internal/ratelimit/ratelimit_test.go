package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(60, 2)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "容量耗尽后应拒绝")

	unlimited := NewTokenBucket(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoffRetriesTransientErrors(t *testing.T) {
	tb := NewTokenBucket(0, 0).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	tb := NewTokenBucket(0, 0).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("invalid api key")
	})
	assert.EqualError(t, err, "invalid api key")
	assert.Equal(t, 1, calls)

	calls = 0
	tb.WithRetryable(RetryAll)
	err = tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("invalid api key")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, calls, "首次调用加三次重试")
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(errors.New("status 429: rate limit exceeded")))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(errors.New("bad request")))
	assert.False(t, IsRetryableError(nil))
}

type countingModel struct {
	calls int
}

func (m *countingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	return schema.AssistantMessage("ok", nil), nil
}

func (m *countingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (m *countingModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestRateLimitedChatModel(t *testing.T) {
	inner := &countingModel{}
	assert.Same(t, inner, NewRateLimitedChatModel(inner, 0), "qpm 为 0 时不包装")

	limited := NewRateLimitedChatModel(inner, 120)
	msg, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 1, inner.calls)

	withTools, err := limited.WithTools(nil)
	require.NoError(t, err)
	_, ok := withTools.(*RateLimitedChatModel)
	assert.True(t, ok)
}
