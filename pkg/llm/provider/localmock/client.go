package localmock

import (
	"context"
	"sync"
	"time"

	"github.com/KitsuneX07/kotoba/pkg/llm"
)

// ProviderName Adapter 标识
const ProviderName = "localmock"

// CallRecord 记录一次调用的详情
type CallRecord struct {
	Request *llm.ChatRequest
	Stream  bool
	Time    time.Time
}

// ResponseFunc 动态响应函数类型
//
// 接收请求和调用次数，返回完整响应。
type ResponseFunc func(request *llm.ChatRequest, callCount int) *llm.ChatResponse

// Client 本地 Mock Provider
//
// 实现 [llm.Provider] 接口，不发起任何网络请求，用于测试和演示。
// 是唯一接受 None 凭证的 Adapter。
type Client struct {
	mu        sync.RWMutex
	response  string
	responses []string
	respIdx   int
	respFunc  ResponseFunc
	delay     time.Duration
	err       error
	calls     []CallRecord
	counter   int
}

// Option 配置选项函数
type Option func(*Client)

// WithResponse 设置预设响应文本
func WithResponse(text string) Option {
	return func(c *Client) {
		c.response = text
	}
}

// WithResponses 设置响应队列（依次返回，用完后循环）
func WithResponses(texts ...string) Option {
	return func(c *Client) {
		c.responses = texts
	}
}

// WithResponseFunc 设置动态响应函数
func WithResponseFunc(fn ResponseFunc) Option {
	return func(c *Client) {
		c.respFunc = fn
	}
}

// WithDelay 设置响应延迟（模拟网络耗时）
func WithDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.delay = delay
	}
}

// WithError 设置返回错误（模拟失败场景）
func WithError(err error) Option {
	return func(c *Client) {
		c.err = err
	}
}

// New 创建 Mock Client
//
// 使用示例：
//
//	client := localmock.New()
//	client := localmock.New(localmock.WithResponses("first", "second"))
//	client := localmock.New(localmock.WithError(llm.NewRateLimitError("simulated", 0)))
func New(opts ...Option) *Client {
	c := &Client{
		response: "This is a mock response.",
		calls:    make([]CallRecord, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromCredential 按凭证创建 Mock Client
//
// 仅接受 None 凭证，其余种类返回 Auth 错误，与真实 Adapter 的
// 凭证门禁保持同一行为。
func NewFromCredential(credential llm.Credential, opts ...Option) (*Client, error) {
	if credential.Type != llm.CredentialNone && credential.Type != "" {
		return nil, llm.NewAuthError("localmock only accepts credential type none")
	}
	return New(opts...), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Name 实现 llm.Provider 接口
func (c *Client) Name() string {
	return ProviderName
}

// Capabilities Mock 声明全部能力，便于测试能力过滤
func (c *Client) Capabilities() llm.CapabilityDescriptor {
	return llm.CapabilityDescriptor{
		SupportsStream:            true,
		SupportsImageInput:        true,
		SupportsAudioInput:        true,
		SupportsVideoInput:        true,
		SupportsTools:             true,
		SupportsStructuredOutput:  true,
		SupportsParallelToolCalls: true,
	}
}

// Chat 同步完成
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := llm.ValidateRequest(request); err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(request, false)
	if c.err != nil {
		return nil, c.err
	}
	return c.nextResponse(request), nil
}

// StreamChat 流式完成
//
// 响应文本按字符切分为文本增量，结尾是 finish + done 事件。
func (c *Client) StreamChat(ctx context.Context, request *llm.ChatRequest) (llm.ChatStream, error) {
	if err := llm.ValidateRequest(request); err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.record(request, true)
	if err := c.err; err != nil {
		c.mu.Unlock()
		return nil, err
	}
	response := c.nextResponse(request)
	c.mu.Unlock()

	out := make(chan *llm.ChatChunk, 10)
	go func() {
		defer close(out)
		metadata := llm.ProviderMetadata{Provider: ProviderName}

		for _, r := range response.GetText() {
			chunk := &llm.ChatChunk{
				Events: []*llm.ChatEvent{{
					Type:      llm.EventTypeText,
					TextDelta: string(r),
				}},
				Provider: metadata,
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}

		terminal := &llm.ChatChunk{
			Events: []*llm.ChatEvent{
				{Type: llm.EventTypeFinish, FinishReason: response.FinishReason},
				{Type: llm.EventTypeDone},
			},
			Usage:      response.Usage,
			IsTerminal: true,
			Provider:   metadata,
		}
		select {
		case out <- terminal:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

// Calls 返回调用记录的副本
func (c *Client) Calls() []CallRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	calls := make([]CallRecord, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// CallCount 返回调用次数
func (c *Client) CallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter
}

// Reset 清空调用记录与响应队列游标
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = c.calls[:0]
	c.counter = 0
	c.respIdx = 0
}

// SetError 运行时切换错误（nil 恢复正常响应）
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return llm.NewTransportError("mock call aborted", ctx.Err())
	}
}

// record 追加调用记录（调用方持锁）
func (c *Client) record(request *llm.ChatRequest, stream bool) {
	c.counter++
	c.calls = append(c.calls, CallRecord{Request: request, Stream: stream, Time: time.Now()})
}

// nextResponse 产出下一个响应（调用方持锁）
func (c *Client) nextResponse(request *llm.ChatRequest) *llm.ChatResponse {
	if c.respFunc != nil {
		return c.respFunc(request, c.counter)
	}

	text := c.response
	if len(c.responses) > 0 {
		text = c.responses[c.respIdx%len(c.responses)]
		c.respIdx++
	}

	message := llm.NewAssistantMessage(text)
	return &llm.ChatResponse{
		Outputs: []llm.OutputItem{{
			Kind:    llm.OutputKindMessage,
			Message: &message,
		}},
		FinishReason: llm.FinishReasonStop,
		Model:        "localmock",
		Provider:     llm.ProviderMetadata{Provider: ProviderName},
		Usage: &llm.TokenUsage{
			PromptTokens:     int64(len(request.Messages)),
			CompletionTokens: int64(len(text)),
		},
	}
}

var _ llm.Provider = (*Client)(nil)
