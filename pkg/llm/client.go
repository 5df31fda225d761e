package llm

import "context"

// ═══════════════════════════════════════════════════════════════════════════
// Client 路由器
// ═══════════════════════════════════════════════════════════════════════════

// Client 将 chat 请求路由到已注册的 Provider
//
// handle → Provider 映射在 Build 之后不可变，因此并发分发无需加锁。
// Provider 实例由 Client 共享持有，生命周期与 Client 一致。
type Client struct {
	providers map[string]Provider
}

// NewBuilder 创建路由器构建器
func NewBuilder() *ClientBuilder {
	return &ClientBuilder{providers: make(map[string]Provider)}
}

// Chat 向 handle 对应的 Provider 发送同步请求
func (c *Client) Chat(ctx context.Context, handle string, request *ChatRequest) (*ChatResponse, error) {
	provider, err := c.getProvider(handle)
	if err != nil {
		return nil, err
	}
	return provider.Chat(ctx, request)
}

// ChatWithRetry 带重试策略的同步请求
//
// 重试只拦截瞬时错误（限流、网络层失败），见 [Retry]。
func (c *Client) ChatWithRetry(ctx context.Context, handle string, request *ChatRequest, config RetryConfig) (*ChatResponse, error) {
	provider, err := c.getProvider(handle)
	if err != nil {
		return nil, err
	}
	return Retry(ctx, config, func(ctx context.Context) (*ChatResponse, error) {
		return provider.Chat(ctx, request)
	})
}

// StreamChat 向 handle 对应的 Provider 发起流式请求
func (c *Client) StreamChat(ctx context.Context, handle string, request *ChatRequest) (ChatStream, error) {
	provider, err := c.getProvider(handle)
	if err != nil {
		return nil, err
	}
	return provider.StreamChat(ctx, request)
}

// Capabilities 返回 handle 对应 Provider 的能力声明
func (c *Client) Capabilities(handle string) (CapabilityDescriptor, error) {
	provider, err := c.getProvider(handle)
	if err != nil {
		return CapabilityDescriptor{}, err
	}
	return provider.Capabilities(), nil
}

// Handles 返回全部已注册的 handle
func (c *Client) Handles() []string {
	handles := make([]string, 0, len(c.providers))
	for handle := range c.providers {
		handles = append(handles, handle)
	}
	return handles
}

// HandlesSupportingTools 返回声明支持工具调用的 handle 子集
//
// 仅读取静态能力声明，不发起任何网络请求。
func (c *Client) HandlesSupportingTools() []string {
	var handles []string
	for handle, provider := range c.providers {
		if provider.Capabilities().SupportsTools {
			handles = append(handles, handle)
		}
	}
	return handles
}

// HandlesSupportingStream 返回声明支持流式输出的 handle 子集
func (c *Client) HandlesSupportingStream() []string {
	var handles []string
	for handle, provider := range c.providers {
		if provider.Capabilities().SupportsStream {
			handles = append(handles, handle)
		}
	}
	return handles
}

// getProvider 解析 handle，未注册时返回明确的 Validation 错误
func (c *Client) getProvider(handle string) (Provider, error) {
	provider, ok := c.providers[handle]
	if !ok {
		return nil, NewValidationError("unknown model handle: " + handle)
	}
	return provider, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 构建器
// ═══════════════════════════════════════════════════════════════════════════

// ClientBuilder 累积 handle → Provider 注册
//
// 注册顺序无关紧要，但重复的 handle 会让 Build 失败，
// 绝不静默覆盖。
type ClientBuilder struct {
	providers map[string]Provider
	err       error
}

// Register 注册一个 Provider
//
// 重复的 handle 被记录为错误并在 Build 时返回。
func (b *ClientBuilder) Register(handle string, provider Provider) *ClientBuilder {
	if b.err != nil {
		return b
	}
	if _, exists := b.providers[handle]; exists {
		b.err = NewValidationError("duplicate handle: " + handle)
		return b
	}
	b.providers[handle] = provider
	return b
}

// Build 产出不可变的 Client
func (b *ClientBuilder) Build() (*Client, error) {
	if b.err != nil {
		return nil, b.err
	}
	providers := make(map[string]Provider, len(b.providers))
	for handle, provider := range b.providers {
		providers[handle] = provider
	}
	return &Client{providers: providers}, nil
}
