package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/storage"
	"resume-rag/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	data          any
	persistent    bool
}

// fakeQueue 在内存中模拟 RabbitMQ
type fakeQueue struct {
	mu         sync.Mutex
	queues     []string
	exchanges  []string
	bindings   []string
	published  []published
	publishErr error
	deliveries chan []byte
	acks       []bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{deliveries: make(chan []byte, 8)}
}

func (f *fakeQueue) PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchangeName, routingKey, data, persistent})
	return nil
}

func (f *fakeQueue) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	f.exchanges = append(f.exchanges, exchangeName)
	return nil
}

func (f *fakeQueue) EnsureQueue(queueName string, durable bool) error {
	f.queues = append(f.queues, queueName)
	return nil
}

func (f *fakeQueue) BindQueue(queueName, exchangeName, routingKey string) error {
	f.bindings = append(f.bindings, exchangeName+"->"+queueName+":"+routingKey)
	return nil
}

func (f *fakeQueue) StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) (<-chan struct{}, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case body := <-f.deliveries:
				ok := handler(ctx, body)
				f.mu.Lock()
				f.acks = append(f.acks, ok)
				f.mu.Unlock()
			}
		}
	}()
	return done, nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) snapshot() ([]published, []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...), append([]bool(nil), f.acks...)
}

type stubAnalyzer struct {
	result types.AnalysisResult
	err    error
}

func (s stubAnalyzer) Analyze(ctx context.Context, documentText, jd string) (types.AnalysisResult, error) {
	return s.result, s.err
}

func testCfg() config.RabbitMQConfig {
	return config.RabbitMQConfig{
		AnalyzeQueue:   "q.resume_analyze",
		ResultExchange: "resume.analysis.exchange",
		ResultKey:      "resume.analyzed",
		PrefetchCount:  1,
		Workers:        2,
	}
}

func request(t *testing.T, id string) []byte {
	t.Helper()
	body, err := json.Marshal(storage.AnalyzeRequestMessage{RequestID: id, DocumentText: "resume", JobDescription: "jd"})
	require.NoError(t, err)
	return body
}

func TestHandleMessagePublishesResult(t *testing.T) {
	mq := newFakeQueue()
	w := New(mq, stubAnalyzer{result: types.AnalysisResult{Score: 64}}, testCfg())

	require.True(t, w.HandleMessage(context.Background(), request(t, "r-1")))

	pubs, _ := mq.snapshot()
	require.Len(t, pubs, 1)
	assert.Equal(t, "resume.analysis.exchange", pubs[0].exchange)
	assert.Equal(t, "resume.analyzed", pubs[0].key)
	assert.True(t, pubs[0].persistent)

	msg := pubs[0].data.(storage.AnalyzeResultMessage)
	assert.Equal(t, "r-1", msg.RequestID)
	require.NotNil(t, msg.Result)
	assert.Equal(t, 64, msg.Result.Score)
	assert.Equal(t, []string{}, msg.Result.Suggestions)
	assert.Empty(t, msg.Error)
}

func TestHandleMessageAnalyzerError(t *testing.T) {
	mq := newFakeQueue()
	w := New(mq, stubAnalyzer{err: types.NewConfigurationError("chunk", "bad overlap")}, testCfg())

	require.True(t, w.HandleMessage(context.Background(), request(t, "")))
	pubs, _ := mq.snapshot()
	msg := pubs[0].data.(storage.AnalyzeResultMessage)
	assert.NotEmpty(t, msg.RequestID, "缺少 request_id 时自动生成")
	assert.Nil(t, msg.Result)
	assert.Contains(t, msg.Error, "bad overlap")
}

func TestHandleMessageRejectsInvalidJSON(t *testing.T) {
	mq := newFakeQueue()
	w := New(mq, stubAnalyzer{}, testCfg())
	assert.False(t, w.HandleMessage(context.Background(), []byte("{not json")))
	pubs, _ := mq.snapshot()
	assert.Empty(t, pubs)
}

func TestHandleMessagePublishFailure(t *testing.T) {
	mq := newFakeQueue()
	mq.publishErr = errors.New("channel closed")
	w := New(mq, stubAnalyzer{}, testCfg())
	assert.False(t, w.HandleMessage(context.Background(), request(t, "r-2")))
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	mq := newFakeQueue()
	w := New(mq, stubAnalyzer{result: types.AnalysisResult{Score: 10}}, testCfg())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	mq.deliveries <- request(t, "a")
	mq.deliveries <- request(t, "b")

	require.Eventually(t, func() bool {
		_, acks := mq.snapshot()
		return len(acks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run 未在 ctx 取消后退出")
	}

	mq.mu.Lock()
	defer mq.mu.Unlock()
	assert.Equal(t, []string{"q.resume_analyze"}, mq.queues)
	assert.Equal(t, []string{"resume.analysis.exchange"}, mq.exchanges)
	assert.Equal(t, []bool{true, true}, mq.acks)
}

func TestSetupBindsResultQueue(t *testing.T) {
	mq := newFakeQueue()
	cfg := testCfg()
	cfg.ResultQueue = "q.resume_results"
	require.NoError(t, New(mq, stubAnalyzer{}, cfg).Setup())

	assert.Equal(t, []string{"q.resume_analyze", "q.resume_results"}, mq.queues)
	assert.Equal(t, []string{"resume.analysis.exchange->q.resume_results:resume.analyzed"}, mq.bindings)
}
