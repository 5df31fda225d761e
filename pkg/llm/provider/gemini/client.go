package gemini

import (
	"maps"
	"net/http"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
	protocol "github.com/KitsuneX07/kotoba/pkg/llm/protocol/gemini"
)

// DefaultBaseURL Google Generative Language 官方地址
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// Credential 访问凭证（api_key，映射到 x-goog-api-key 头）
	Credential llm.Credential

	// BaseURL API 基础地址，默认 https://generativelanguage.googleapis.com
	BaseURL string

	// Model 默认模型名称（models/ 前缀可省略）
	Model string

	// Headers 额外的请求头
	Headers map[string]string

	// Patch 可选的请求覆盖
	Patch *llm.RequestPatch
}

// Client Google Gemini GenerateContent 客户端
//
// 实现 [llm.Provider] 接口。模型编码在请求路径中，因此端点
// 逐请求构建。
type Client struct {
	*core.BaseClient
}

// Capabilities Gemini 的静态能力声明
func Capabilities() llm.CapabilityDescriptor {
	return llm.CapabilityDescriptor{
		SupportsStream:           true,
		SupportsImageInput:       true,
		SupportsAudioInput:       true,
		SupportsVideoInput:       true,
		SupportsTools:            true,
		SupportsStructuredOutput: true,
	}
}

// New 创建 Gemini 客户端
func New(config *Config, transport core.Transport) (*Client, error) {
	if config == nil {
		return nil, llm.NewInvalidConfigError("config", "config is required")
	}
	headers, err := buildHeaders(config)
	if err != nil {
		return nil, err
	}

	strategy := &strategy{
		adapter: protocol.NewAdapter(),
		mapper:  protocol.NewEventMapper(),
		config:  config,
		headers: headers,
	}
	base, err := core.NewBaseClient(protocol.ProviderName, strategy, transport, Capabilities(), config.Patch)
	if err != nil {
		return nil, err
	}
	return &Client{BaseClient: base}, nil
}

// buildHeaders 构建认证头
func buildHeaders(config *Config) (map[string]string, error) {
	headers := map[string]string{"Accept": "application/json"}

	switch config.Credential.Type {
	case llm.CredentialAPIKey:
		if config.Credential.Key == "" {
			return nil, llm.NewAuthError("google_gemini requires a non-empty API key")
		}
		header := config.Credential.Header
		if header == "" {
			header = "x-goog-api-key"
		}
		headers[header] = config.Credential.Key
	default:
		return nil, llm.NewAuthError("google_gemini does not accept credential type " + string(config.Credential.Type))
	}

	maps.Copy(headers, config.Headers)
	return headers, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Strategy 实现
// ═══════════════════════════════════════════════════════════════════════════

type strategy struct {
	adapter *protocol.Adapter
	mapper  *protocol.EventMapper
	config  *Config
	headers map[string]string
}

func (s *strategy) BuildBody(request *llm.ChatRequest, stream bool) (map[string]any, error) {
	return s.adapter.BuildBody(request, s.resolveModel(request), stream)
}

func (s *strategy) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	return s.adapter.ParseResponse(body)
}

func (s *strategy) ParseError(status int, headers http.Header, body []byte) error {
	return s.adapter.ParseError(status, headers, body)
}

func (s *strategy) EventMapper() core.EventMapper {
	return s.mapper
}

// Endpoint 模型编码在路径中：models/{model}:generateContent
//
// 流式端点追加 ?alt=sse，否则响应是 JSON 数组而非 SSE。
func (s *strategy) Endpoint(request *llm.ChatRequest, stream bool) (string, error) {
	model := s.resolveModel(request)
	if model == "" {
		return "", llm.NewValidationError("model is required for Gemini GenerateContent")
	}

	base := s.config.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1beta") {
		base += "/v1beta"
	}

	modelPath := protocol.NormalizeModel(model)
	if stream {
		return base + "/" + modelPath + ":streamGenerateContent?alt=sse", nil
	}
	return base + "/" + modelPath + ":generateContent", nil
}

func (s *strategy) Headers() map[string]string {
	return s.headers
}

func (s *strategy) resolveModel(request *llm.ChatRequest) string {
	if request.Options.Model != "" {
		return request.Options.Model
	}
	return s.config.Model
}

var _ core.Strategy = (*strategy)(nil)
var _ llm.Provider = (*Client)(nil)
