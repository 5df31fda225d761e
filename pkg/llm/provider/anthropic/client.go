package anthropic

import (
	"maps"
	"net/http"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
	protocol "github.com/KitsuneX07/kotoba/pkg/llm/protocol/anthropic"
)

// DefaultBaseURL Anthropic 官方地址
const DefaultBaseURL = "https://api.anthropic.com"

// DefaultVersion anthropic-version 请求头默认值
const DefaultVersion = "2023-06-01"

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// Credential 访问凭证（api_key，映射到 x-api-key 头）
	Credential llm.Credential

	// BaseURL API 基础地址，默认 https://api.anthropic.com
	BaseURL string

	// Model 默认模型名称
	Model string

	// Version anthropic-version 头，默认 2023-06-01
	Version string

	// Beta 可选的 anthropic-beta 头（支持逗号分隔的 beta 名称）
	Beta string

	// Headers 额外的请求头
	Headers map[string]string

	// Patch 可选的请求覆盖
	Patch *llm.RequestPatch
}

// Client Anthropic Messages 客户端
//
// 实现 [llm.Provider] 接口。
type Client struct {
	*core.BaseClient
}

// Capabilities Anthropic Messages 的静态能力声明
//
// 结构化输出未声明：Messages API 没有 response_format 等价物。
func Capabilities() llm.CapabilityDescriptor {
	return llm.CapabilityDescriptor{
		SupportsStream:            true,
		SupportsImageInput:        true,
		SupportsTools:             true,
		SupportsParallelToolCalls: true,
	}
}

// New 创建 Anthropic 客户端
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

// buildHeaders 构建认证头与版本头
func buildHeaders(config *Config) (map[string]string, error) {
	headers := map[string]string{"Accept": "application/json"}

	switch config.Credential.Type {
	case llm.CredentialAPIKey:
		if config.Credential.Key == "" {
			return nil, llm.NewAuthError("anthropic_messages requires a non-empty API key")
		}
		header := config.Credential.Header
		if header == "" {
			header = "x-api-key"
		}
		headers[header] = config.Credential.Key
	case llm.CredentialBearer:
		if config.Credential.Token == "" {
			return nil, llm.NewAuthError("anthropic_messages requires a non-empty bearer token")
		}
		headers["Authorization"] = "Bearer " + config.Credential.Token
	default:
		return nil, llm.NewAuthError("anthropic_messages does not accept credential type " + string(config.Credential.Type))
	}

	version := config.Version
	if version == "" {
		version = DefaultVersion
	}
	headers["anthropic-version"] = version
	if config.Beta != "" {
		headers["anthropic-beta"] = config.Beta
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
	return s.adapter.BuildBody(request, model, stream)
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

// Endpoint base_url 已含 /v1 时直接拼 /messages
func (s *strategy) Endpoint(request *llm.ChatRequest, stream bool) (string, error) {
	base := s.config.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/messages", nil
	}
	return base + "/v1/messages", nil
}

func (s *strategy) Headers() map[string]string {
	return s.headers
}

var _ core.Strategy = (*strategy)(nil)
var _ llm.Provider = (*Client)(nil)
