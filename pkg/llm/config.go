package llm

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider 种类
// ═══════════════════════════════════════════════════════════════════════════

// ProviderKind Adapter 种类
type ProviderKind string

const (
	// ProviderKindOpenAIChat OpenAI Chat Completions 协议
	ProviderKindOpenAIChat ProviderKind = "openai_chat"

	// ProviderKindOpenAIResponses OpenAI Responses 协议
	ProviderKindOpenAIResponses ProviderKind = "openai_responses"

	// ProviderKindAnthropicMessages Anthropic Messages 协议
	ProviderKindAnthropicMessages ProviderKind = "anthropic_messages"

	// ProviderKindGoogleGemini Google Gemini generateContent 协议
	ProviderKindGoogleGemini ProviderKind = "google_gemini"

	// ProviderKindLocalMock 本地 Mock（测试用，无需凭证）
	ProviderKindLocalMock ProviderKind = "localmock"
)

// String 返回字符串表示
func (k ProviderKind) String() string {
	return string(k)
}

// ═══════════════════════════════════════════════════════════════════════════
// 凭证
// ═══════════════════════════════════════════════════════════════════════════

// CredentialType 凭证种类
type CredentialType string

const (
	CredentialAPIKey         CredentialType = "api_key"
	CredentialBearer         CredentialType = "bearer"
	CredentialServiceAccount CredentialType = "service_account"
	CredentialNone           CredentialType = "none"
)

// Credential 访问凭证
//
// ServiceAccount 与 None 默认被所有 Adapter 拒绝（Auth 错误），
// 除非 Adapter 显式声明接受（如 localmock 接受 None）。
type Credential struct {
	Type CredentialType `yaml:"type" json:"type"`

	// Header APIKey 凭证的自定义请求头（为空时使用 Adapter 默认头）
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// Key APIKey 凭证的密钥
	Key string `yaml:"key,omitempty" json:"key,omitempty"`

	// Token Bearer 凭证的令牌
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// JSON ServiceAccount 凭证的原始 JSON
	JSON map[string]any `yaml:"json,omitempty" json:"json,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求 Patch
// ═══════════════════════════════════════════════════════════════════════════

// RequestPatch 出站请求的运行时覆盖
//
// 应用顺序固定：URL 替换 → Body 深度合并 → Headers 设置/删除 →
// RemoveFields 逐路径删除。配置对象本身不会被修改。
type RequestPatch struct {
	// URL 非空时整体替换请求 URL
	URL *string `yaml:"url,omitempty" json:"url,omitempty"`

	// Body 深度合并进请求体的片段（数组整体替换，不做逐元素合并）
	Body map[string]any `yaml:"body,omitempty" json:"body,omitempty"`

	// Headers 值非 nil 设置/覆盖，nil 删除；未提及的头不受影响
	Headers map[string]*string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// RemoveFields 点分隔的删除路径（段可为对象键或数组下标）
	RemoveFields []string `yaml:"remove_fields,omitempty" json:"remove_fields,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型配置
// ═══════════════════════════════════════════════════════════════════════════

// ModelConfig 单个 handle 的注册条目
//
// 配置驱动的工厂按序消费一组 ModelConfig，产出 Client 路由器。
type ModelConfig struct {
	// Handle 调用方选择的不透明名称（构建期要求唯一）
	Handle string `yaml:"handle" json:"handle"`

	// Provider Adapter 种类
	Provider ProviderKind `yaml:"provider" json:"provider"`

	// Credential 访问凭证
	Credential Credential `yaml:"credential" json:"credential"`

	// DefaultModel 请求未指定模型时的默认值
	DefaultModel string `yaml:"default_model,omitempty" json:"default_model,omitempty"`

	// BaseURL 覆盖 Adapter 的默认地址
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Extra Adapter 特定的扩展配置（anthropic version/beta 等）
	Extra map[string]any `yaml:"extra,omitempty" json:"extra,omitempty"`

	// Patch 可选的请求覆盖
	Patch *RequestPatch `yaml:"patch,omitempty" json:"patch,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置文件加载
// ═══════════════════════════════════════════════════════════════════════════

// configFile YAML 配置文件结构
type configFile struct {
	Models []ModelConfig `yaml:"models"`
}

// LoadOption 配置加载选项
type LoadOption func(*loadOptions)

type loadOptions struct {
	dotenvFiles []string
	expandEnv   bool
}

// WithDotEnv 加载前先读取 .env 文件（凭证常以此方式提供）
func WithDotEnv(files ...string) LoadOption {
	return func(o *loadOptions) {
		if len(files) == 0 {
			files = []string{".env"}
		}
		o.dotenvFiles = append(o.dotenvFiles, files...)
	}
}

// WithoutEnvExpansion 关闭 ${VAR} 环境变量展开
func WithoutEnvExpansion() LoadOption {
	return func(o *loadOptions) {
		o.expandEnv = false
	}
}

// LoadConfigFile 从 YAML 文件加载模型配置序列
//
// 文件格式：
//
//	models:
//	  - handle: fast
//	    provider: openai_chat
//	    credential:
//	      type: api_key
//	      key: "${OPENAI_API_KEY}"
//	    default_model: gpt-4o-mini
//
// 凭证与 base_url 字段中的 ${VAR} 默认按环境变量展开。
// 返回的序列保持文件顺序；handle 唯一性在路由器构建时检查。
func LoadConfigFile(path string, opts ...LoadOption) ([]ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewInvalidConfigError("path", fmt.Sprintf("read config file: %v", err))
	}
	return LoadConfigFromBytes(data, opts...)
}

// LoadConfigFromBytes 从 YAML 字节加载模型配置序列
func LoadConfigFromBytes(data []byte, opts ...LoadOption) ([]ModelConfig, error) {
	options := loadOptions{expandEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	if len(options.dotenvFiles) > 0 {
		// godotenv 不覆盖已有环境变量，文件缺失不视为错误
		_ = godotenv.Load(options.dotenvFiles...)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewInvalidConfigError("models", fmt.Sprintf("parse config: %v", err))
	}
	if len(file.Models) == 0 {
		return nil, NewInvalidConfigError("models", "at least one model entry is required")
	}

	for i := range file.Models {
		entry := &file.Models[i]
		if entry.Handle == "" {
			return nil, NewInvalidConfigError("handle", fmt.Sprintf("model entry %d is missing a handle", i))
		}
		if entry.Provider == "" {
			return nil, NewInvalidConfigError("provider", fmt.Sprintf("model entry %q is missing a provider kind", entry.Handle))
		}
		if options.expandEnv {
			expandCredential(entry)
		}
	}

	return file.Models, nil
}

// expandCredential 按环境变量展开凭证与地址字段中的 ${VAR}
func expandCredential(entry *ModelConfig) {
	entry.Credential.Key = os.ExpandEnv(entry.Credential.Key)
	entry.Credential.Token = os.ExpandEnv(entry.Credential.Token)
	entry.BaseURL = os.ExpandEnv(entry.BaseURL)
}
