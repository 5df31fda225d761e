package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/KitsuneX07/kotoba/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 接口定义
// ═══════════════════════════════════════════════════════════════════════════

// Strategy 协议策略接口
//
// 每个 vendor adapter 实现此接口来定义协议特定的部分：请求体构建、
// 响应解析、错误分类、流事件映射和端点/请求头。通用流程编排由
// [BaseClient] 负责。
type Strategy interface {
	// BuildBody 把统一请求转换为 API 特定格式的请求体
	//
	// 请求中出现 adapter 不支持的特性时返回 UnsupportedFeature 错误。
	BuildBody(request *llm.ChatRequest, stream bool) (map[string]any, error)

	// ParseResponse 解析成功响应体为统一格式
	ParseResponse(body []byte) (*llm.ChatResponse, error)

	// ParseError 把 vendor 错误响应分类为统一错误
	//
	// 只在 status >= 400 时调用，返回值必须非 nil。
	ParseError(status int, headers http.Header, body []byte) error

	// EventMapper 返回流式事件映射器
	EventMapper() EventMapper

	// Endpoint 返回完整请求 URL
	//
	// 部分协议（Gemini）把模型编码在路径中，因此端点依赖请求。
	Endpoint(request *llm.ChatRequest, stream bool) (string, error)

	// Headers 返回认证头和其他必要的 HTTP 头
	Headers() map[string]string
}

// ═══════════════════════════════════════════════════════════════════════════
// BaseClient 基础客户端
// ═══════════════════════════════════════════════════════════════════════════

// BaseClient 基础客户端
//
// 封装了请求校验、能力检查、Patch 应用、HTTP 通信和错误分派的
// 通用流程。所有 Provider 嵌入 BaseClient 来复用这些功能，协议
// 差异委托给 [Strategy]。
//
// 使用示例：
//
//	strategy := openai.NewStrategy(cfg)
//	base, _ := core.NewBaseClient("openai_chat", strategy, transport, caps, cfg.Patch)
//
//	client := &openai.Client{BaseClient: base}
type BaseClient struct {
	name         string
	strategy     Strategy
	transport    Transport
	capabilities llm.CapabilityDescriptor
	patch        *CompiledPatch
}

// NewBaseClient 创建基础客户端
//
// patch 在此处编译，畸形的删除路径立即以 InvalidConfig 失败，
// 绝不等到首次请求。patch 为 nil 时按无 Patch 处理。
func NewBaseClient(
	name string,
	strategy Strategy,
	transport Transport,
	capabilities llm.CapabilityDescriptor,
	patch *llm.RequestPatch,
) (*BaseClient, error) {
	compiled, err := CompilePatch(patch)
	if err != nil {
		return nil, err
	}
	return &BaseClient{
		name:         name,
		strategy:     strategy,
		transport:    transport,
		capabilities: capabilities,
		patch:        compiled,
	}, nil
}

// Name 实现 llm.Provider 接口
func (c *BaseClient) Name() string {
	return c.name
}

// Capabilities 实现 llm.Provider 接口
func (c *BaseClient) Capabilities() llm.CapabilityDescriptor {
	return c.capabilities
}

// Chat 同步完成（通用实现）
//
// 通用流程：
//  1. 校验请求不变式
//  2. 能力检查（工具、多模态、结构化输出）
//  3. 构建 API 请求体（委托给 Strategy）
//  4. 应用请求 Patch（URL → Body → Headers → 删除）
//  5. 发送 HTTP 请求
//  6. status >= 400 时委托 Strategy 分类错误
//  7. 解析响应为统一格式
func (c *BaseClient) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	url, headers, bodyBytes, err := c.prepare(request, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Send(ctx, NewJSONRequest(url, bodyBytes, headers))
	if err != nil {
		return nil, err
	}

	if resp.Status >= 400 {
		return nil, c.strategy.ParseError(resp.Status, resp.Headers, resp.Body)
	}

	response, err := c.strategy.ParseResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	response.Provider.Provider = c.name
	response.Provider.Endpoint = url
	if requestID := resp.Headers.Get("X-Request-Id"); requestID != "" {
		response.Provider.RequestID = requestID
	}
	return response, nil
}

// StreamChat 流式完成（通用实现）
//
// 与 Chat 相同的前置流程，成功后把响应体移交 [StreamDecoder]。
// 返回的 channel 在终止 chunk 之后关闭；取消 ctx 会关闭底层连接。
func (c *BaseClient) StreamChat(ctx context.Context, request *llm.ChatRequest) (llm.ChatStream, error) {
	if !c.capabilities.SupportsStream {
		return nil, llm.NewUnsupportedFeatureError("streaming")
	}

	url, headers, bodyBytes, err := c.prepare(request, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.SendStream(ctx, NewJSONRequest(url, bodyBytes, headers))
	if err != nil {
		return nil, err
	}

	if resp.Status >= 400 {
		// 错误响应体很小，整体读出用于分类
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		_ = resp.Body.Close()
		return nil, c.strategy.ParseError(resp.Status, resp.Headers, errBody)
	}

	decoder := NewStreamDecoder(resp.Body, c.strategy.EventMapper(), c.name, url)
	return decoder.Events(ctx), nil
}

// prepare 执行校验、能力检查、请求体构建和 Patch 应用
func (c *BaseClient) prepare(request *llm.ChatRequest, stream bool) (string, map[string]string, []byte, error) {
	if err := llm.ValidateRequest(request); err != nil {
		return "", nil, nil, err
	}
	if err := c.checkCapabilities(request); err != nil {
		return "", nil, nil, err
	}

	body, err := c.strategy.BuildBody(request, stream)
	if err != nil {
		return "", nil, nil, err
	}

	url, err := c.strategy.Endpoint(request, stream)
	if err != nil {
		return "", nil, nil, err
	}
	headers := c.strategy.Headers()
	if c.patch != nil {
		url, headers, body = c.patch.Apply(url, headers, body)
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", nil, nil, llm.NewValidationError("marshal request body: " + err.Error())
	}
	return url, headers, bodyBytes, nil
}

// checkCapabilities 拒绝声明之外的特性，先于任何网络请求
func (c *BaseClient) checkCapabilities(request *llm.ChatRequest) error {
	if len(request.Tools) > 0 && !c.capabilities.SupportsTools {
		return llm.NewUnsupportedFeatureError("tools")
	}
	if request.ResponseFormat != nil &&
		(request.ResponseFormat.Type == llm.ResponseFormatJSONObject || request.ResponseFormat.Type == llm.ResponseFormatJSONSchema) &&
		!c.capabilities.SupportsStructuredOutput {
		return llm.NewUnsupportedFeatureError("structured_output")
	}
	for _, message := range request.Messages {
		for _, part := range message.Content {
			switch part.(type) {
			case *llm.ImagePart:
				if !c.capabilities.SupportsImageInput {
					return llm.NewUnsupportedFeatureError("image_input")
				}
			case *llm.AudioPart:
				if !c.capabilities.SupportsAudioInput {
					return llm.NewUnsupportedFeatureError("audio_input")
				}
			case *llm.VideoPart:
				if !c.capabilities.SupportsVideoInput {
					return llm.NewUnsupportedFeatureError("video_input")
				}
			}
		}
	}
	return nil
}
