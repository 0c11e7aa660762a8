package generation

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockResponse MockChatModel 的单次响应
type MockResponse struct {
	Content string
	Error   error
}

// MockChatModel 测试用的 ChatModel，按顺序返回预设响应，最后一个响应重复使用。
// 记录收到的消息和调用选项，可并发调用。
type MockChatModel struct {
	mu        sync.Mutex
	responses []MockResponse
	next      int

	Calls    int
	Received [][]*schema.Message
	Options  []*model.Options
}

// NewMockChatModel 返回固定内容或错误的模型
func NewMockChatModel(content string, err error) *MockChatModel {
	return NewMockChatModelSequential(MockResponse{Content: content, Error: err})
}

// NewMockChatModelSequential 依次返回给定响应
func NewMockChatModelSequential(responses ...MockResponse) *MockChatModel {
	if len(responses) == 0 {
		responses = []MockResponse{{Error: errors.New("mock chat model has no responses configured")}}
	}
	return &MockChatModel{responses: responses}
}

func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Received = append(m.Received, append([]*schema.Message(nil), input...))
	m.Options = append(m.Options, model.GetCommonOptions(&model.Options{}, opts...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return schema.AssistantMessage(resp.Content, nil), nil
}

func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *MockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// LastMessages 最近一次调用收到的消息
func (m *MockChatModel) LastMessages() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Received) == 0 {
		return nil
	}
	return m.Received[len(m.Received)-1]
}
