package llm

import "context"

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口
// ═══════════════════════════════════════════════════════════════════════════

// Provider LLM 提供者接口
//
// 每个 vendor adapter 实现此接口。实现必须可以被多个 goroutine
// 并发调用；Capabilities 和 Name 不得发起网络请求。
type Provider interface {
	// Chat 同步完成，返回完整响应
	Chat(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// StreamChat 流式完成，返回惰性的 chunk 序列
	//
	// 返回的序列有限且不可重放；取消 ctx 会立即关闭底层连接。
	StreamChat(ctx context.Context, request *ChatRequest) (ChatStream, error)

	// Capabilities 返回该实例的静态能力声明
	Capabilities() CapabilityDescriptor

	// Name 返回 Provider 标识，如 "openai_chat"
	Name() string
}

// ChatStream 流式响应序列
//
// channel 在终止 chunk（IsTerminal=true）之后关闭。消费者放弃读取时
// 应取消创建流的 context，以便及时释放底层连接。
type ChatStream <-chan *ChatChunk

// ═══════════════════════════════════════════════════════════════════════════
// 请求类型
// ═══════════════════════════════════════════════════════════════════════════

// ChatRequest 跨 Provider 的统一请求
//
// 每次调用应新建；除 Patch 引擎产出新值外，引擎不会原地修改请求。
type ChatRequest struct {
	// Messages 有序消息列表
	Messages []Message `json:"messages"`

	// Options 采样与行为选项
	Options ChatOptions `json:"options,omitzero"`

	// Tools 可用的工具定义（有序）
	Tools []ToolDefinition `json:"tools,omitempty"`

	// ToolChoice 工具调用策略
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// ResponseFormat 输出格式要求
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Metadata 透传给 Provider 的元数据
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatOptions 跨 Provider 的通用选项
type ChatOptions struct {
	// Model 覆盖配置中的默认模型
	Model string `json:"model,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxOutputTokens  int      `json:"max_output_tokens,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// ParallelToolCalls 是否允许并行工具调用
	ParallelToolCalls *bool `json:"parallel_tool_calls,omitempty"`

	// Reasoning 推理模型扩展选项
	Reasoning *ReasoningOptions `json:"reasoning,omitempty"`

	// Extra Provider 特定的附加选项（service tier、安全设置等）
	Extra map[string]any `json:"extra,omitempty"`
}

// ReasoningOptions 推理扩展配置
type ReasoningOptions struct {
	// Effort 推理力度："low", "medium", "high" 或 Provider 自定义值
	Effort string `json:"effort,omitempty"`

	// BudgetTokens 推理 token 预算
	BudgetTokens int `json:"budget_tokens,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 工具定义
// ═══════════════════════════════════════════════════════════════════════════

// ToolKind 工具类别
type ToolKind string

const (
	ToolKindFunction    ToolKind = "function"
	ToolKindFileSearch  ToolKind = "file_search"
	ToolKindWebSearch   ToolKind = "web_search"
	ToolKindComputerUse ToolKind = "computer_use"
	ToolKindCustom      ToolKind = "custom"
)

// ToolDefinition 向模型暴露的工具声明
type ToolDefinition struct {
	Kind ToolKind `json:"kind,omitempty"`

	Name string `json:"name"`

	Description string `json:"description,omitempty"`

	// InputSchema 参数的 JSON Schema
	InputSchema map[string]any `json:"input_schema,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolChoiceMode 工具选择策略类别
type ToolChoiceMode string

const (
	ToolChoiceAuto   ToolChoiceMode = "auto"   // Provider 自行决定
	ToolChoiceAny    ToolChoiceMode = "any"    // 必须调用至少一个工具
	ToolChoiceNone   ToolChoiceMode = "none"   // 禁用工具
	ToolChoiceTool   ToolChoiceMode = "tool"   // 强制调用指定工具
	ToolChoiceCustom ToolChoiceMode = "custom" // Provider 自定义配置
)

// ToolChoice 工具调用策略
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`

	// Name Mode 为 tool 时的目标工具名
	Name string `json:"name,omitempty"`

	// Custom Mode 为 custom 时透传的原始配置
	Custom any `json:"custom,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应格式
// ═══════════════════════════════════════════════════════════════════════════

// ResponseFormatType 响应格式类别
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
	ResponseFormatCustom     ResponseFormatType = "custom"
)

// ResponseFormat 响应格式配置 (Structured Output)
type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`

	// Name Schema 名称（部分 Provider 要求）
	Name string `json:"name,omitempty"`

	// Schema JSON Schema 定义（type 为 json_schema 时）
	Schema map[string]any `json:"schema,omitempty"`

	// Custom type 为 custom 时透传的原始配置
	Custom any `json:"custom,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应类型
// ═══════════════════════════════════════════════════════════════════════════

// FinishReason 完成原因
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonError         FinishReason = "error"
	FinishReasonOther         FinishReason = "other"
)

// ChatResponse 跨 Provider 的统一响应
//
// 每次非流式调用产出一个；归调用方所有。
type ChatResponse struct {
	// Outputs 有序的输出项
	Outputs []OutputItem `json:"outputs"`

	Usage *TokenUsage `json:"usage,omitempty"`

	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Model Provider 报告的实际模型
	Model string `json:"model,omitempty"`

	// Provider 调用元数据
	Provider ProviderMetadata `json:"provider,omitzero"`
}

// GetText 拼接响应中全部消息输出的文本
func (r *ChatResponse) GetText() string {
	var text string
	for _, out := range r.Outputs {
		if out.Message != nil {
			text += out.Message.GetText()
		}
	}
	return text
}

// GetToolCalls 获取响应中的全部工具调用
func (r *ChatResponse) GetToolCalls() []*ToolCallPart {
	var calls []*ToolCallPart
	for _, out := range r.Outputs {
		if out.ToolCall != nil {
			calls = append(calls, out.ToolCall)
		}
		if out.Message != nil {
			calls = append(calls, out.Message.GetToolCalls()...)
		}
	}
	return calls
}

// OutputItemKind 输出项类别
type OutputItemKind string

const (
	OutputKindMessage    OutputItemKind = "message"
	OutputKindToolCall   OutputItemKind = "tool_call"
	OutputKindToolResult OutputItemKind = "tool_result"
	OutputKindReasoning  OutputItemKind = "reasoning"
	OutputKindCustom     OutputItemKind = "custom"
)

// OutputItem 响应输出项（标签联合，Kind 决定哪个字段有效）
type OutputItem struct {
	Kind  OutputItemKind `json:"kind"`
	Index int            `json:"index"`

	Message    *Message        `json:"message,omitempty"`
	ToolCall   *ToolCallPart   `json:"tool_call,omitempty"`
	ToolResult *ToolResultPart `json:"tool_result,omitempty"`

	// Reasoning 推理轨迹文本（Kind 为 reasoning）
	Reasoning string `json:"reasoning,omitempty"`

	// Custom Provider 自定义数据（Kind 为 custom）
	Custom any `json:"custom,omitempty"`
}

// TokenUsage Token 使用量
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	ReasoningTokens  int64 `json:"reasoning_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens,omitempty"`

	// Details Provider 特定的用量细节（缓存 tokens 等）
	Details map[string]any `json:"details,omitempty"`
}

// ProviderMetadata 每次调用附带的 Provider 元数据
type ProviderMetadata struct {
	// Provider 标识，如 "anthropic_messages"
	Provider string `json:"provider,omitempty"`

	// RequestID 上游请求追踪 ID
	RequestID string `json:"request_id,omitempty"`

	// Endpoint 实际请求的端点
	Endpoint string `json:"endpoint,omitempty"`

	// Raw 原始响应片段（调试用）
	Raw any `json:"raw,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 能力声明
// ═══════════════════════════════════════════════════════════════════════════

// CapabilityDescriptor Adapter 实例的静态能力声明
//
// 构造后不可变，用于运行时的能力过滤路由。
type CapabilityDescriptor struct {
	SupportsStream             bool `json:"supports_stream"`
	SupportsImageInput         bool `json:"supports_image_input"`
	SupportsAudioInput         bool `json:"supports_audio_input"`
	SupportsVideoInput         bool `json:"supports_video_input"`
	SupportsTools              bool `json:"supports_tools"`
	SupportsStructuredOutput   bool `json:"supports_structured_output"`
	SupportsParallelToolCalls  bool `json:"supports_parallel_tool_calls"`
}
