package openai

import (
	"maps"
	"net/http"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
	protocol "github.com/KitsuneX07/kotoba/pkg/llm/protocol/openai"
)

// DefaultBaseURL OpenAI 官方地址
const DefaultBaseURL = "https://api.openai.com"

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// Credential 访问凭证（api_key 或 bearer）
	Credential llm.Credential

	// BaseURL API 基础地址，默认 https://api.openai.com
	BaseURL string

	// Model 默认模型名称
	Model string

	// Organization OpenAI-Organization 请求头（可选）
	Organization string

	// Project OpenAI-Project 请求头（可选）
	Project string

	// Headers 额外的请求头
	Headers map[string]string

	// Patch 可选的请求覆盖
	Patch *llm.RequestPatch
}

// Client OpenAI Chat Completions 客户端
//
// 实现 [llm.Provider] 接口。通用流程由 core.BaseClient 编排，
// 协议差异由 protocol/openai 适配器封装。
type Client struct {
	*core.BaseClient
}

// Capabilities OpenAI Chat 的静态能力声明
func Capabilities() llm.CapabilityDescriptor {
	return llm.CapabilityDescriptor{
		SupportsStream:            true,
		SupportsImageInput:        true,
		SupportsAudioInput:        true,
		SupportsTools:             true,
		SupportsStructuredOutput:  true,
		SupportsParallelToolCalls: true,
	}
}

// New 创建 OpenAI 客户端
//
// 凭证必须为 api_key 或 bearer；ServiceAccount 与 None 被拒绝。
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

// buildHeaders 构建认证头与附加头
func buildHeaders(config *Config) (map[string]string, error) {
	headers := map[string]string{"Accept": "application/json"}

	switch config.Credential.Type {
	case llm.CredentialAPIKey:
		if config.Credential.Key == "" {
			return nil, llm.NewAuthError("openai_chat requires a non-empty API key")
		}
		if config.Credential.Header != "" {
			headers[config.Credential.Header] = config.Credential.Key
		} else {
			headers["Authorization"] = "Bearer " + config.Credential.Key
		}
	case llm.CredentialBearer:
		if config.Credential.Token == "" {
			return nil, llm.NewAuthError("openai_chat requires a non-empty bearer token")
		}
		headers["Authorization"] = "Bearer " + config.Credential.Token
	default:
		return nil, llm.NewAuthError("openai_chat does not accept credential type " + string(config.Credential.Type))
	}

	if config.Organization != "" {
		headers["OpenAI-Organization"] = config.Organization
	}
	if config.Project != "" {
		headers["OpenAI-Project"] = config.Project
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
	model := request.Options.Model
	if model == "" {
		model = s.config.Model
	}
	body, err := s.adapter.BuildBody(request, model, stream)
	if err != nil {
		return nil, err
	}
	if stream {
		// 让最后一个 chunk 携带用量
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	return body, nil
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

// Endpoint base_url 已含 /v1 时直接拼 /chat/completions
func (s *strategy) Endpoint(request *llm.ChatRequest, stream bool) (string, error) {
	base := s.config.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions", nil
	}
	return base + "/v1/chat/completions", nil
}

func (s *strategy) Headers() map[string]string {
	return s.headers
}

var _ core.Strategy = (*strategy)(nil)
var _ llm.Provider = (*Client)(nil)
