package core

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/KitsuneX07/kotoba/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 传输接口
// ═══════════════════════════════════════════════════════════════════════════

// Request 出站 HTTP 请求
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// NewJSONRequest 创建 JSON POST 请求
func NewJSONRequest(url string, body []byte, headers map[string]string) *Request {
	merged := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}
	return &Request{
		Method:  http.MethodPost,
		URL:     url,
		Headers: merged,
		Body:    body,
	}
}

// Response 完整读取的响应
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// StreamResponse 流式响应，Body 由调用方负责关闭
type StreamResponse struct {
	Status  int
	Headers http.Header
	Body    io.ReadCloser
}

// Transport 传输协作者接口
//
// 核心只依赖此抽象；生产环境使用 [RestyTransport]，
// 测试注入固定载荷的替身即可，解码器对两者无感。
type Transport interface {
	// Send 发送请求并完整读取响应体
	Send(ctx context.Context, request *Request) (*Response, error)

	// SendStream 发送请求并返回未读取的响应体流
	SendStream(ctx context.Context, request *Request) (*StreamResponse, error)
}

// ═══════════════════════════════════════════════════════════════════════════
// Resty 传输实现
// ═══════════════════════════════════════════════════════════════════════════

// RestyTransport 基于 resty 的生产传输
type RestyTransport struct {
	client *resty.Client
}

// RestyOption RestyTransport 配置选项
type RestyOption func(*resty.Client)

// WithTimeout 设置请求超时，默认 120 秒
func WithTimeout(timeout time.Duration) RestyOption {
	return func(c *resty.Client) {
		c.SetTimeout(timeout)
	}
}

// WithRestyClient 替换底层 resty 客户端（代理、TLS 等高级配置）
func WithRestyClient(client *resty.Client) RestyOption {
	return func(c *resty.Client) {
		*c = *client
	}
}

// NewRestyTransport 创建生产传输
func NewRestyTransport(opts ...RestyOption) *RestyTransport {
	client := resty.New()
	client.SetTimeout(120 * time.Second)
	// 流式响应不能整体读取，重定向后的重试交给上层重试引擎
	client.SetRetryCount(0)
	for _, opt := range opts {
		opt(client)
	}
	return &RestyTransport{client: client}
}

// Send 实现 Transport 接口
func (t *RestyTransport) Send(ctx context.Context, request *Request) (*Response, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(request.Headers).
		SetBody(request.Body).
		Execute(request.Method, request.URL)
	if err != nil {
		return nil, llm.NewTransportError("request failed", err)
	}
	return &Response{
		Status:  resp.StatusCode(),
		Headers: resp.Header(),
		Body:    resp.Body(),
	}, nil
}

// SendStream 实现 Transport 接口
func (t *RestyTransport) SendStream(ctx context.Context, request *Request) (*StreamResponse, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(request.Headers).
		SetBody(request.Body).
		SetDoNotParseResponse(true).
		Execute(request.Method, request.URL)
	if err != nil {
		return nil, llm.NewTransportError("stream request failed", err)
	}
	body := resp.RawBody()
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	return &StreamResponse{
		Status:  resp.StatusCode(),
		Headers: resp.Header(),
		Body:    body,
	}, nil
}
