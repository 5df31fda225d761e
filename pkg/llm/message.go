package llm

// ═══════════════════════════════════════════════════════════════════════════
// 角色定义
// ═══════════════════════════════════════════════════════════════════════════

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ═══════════════════════════════════════════════════════════════════════════
// 消息结构
// ═══════════════════════════════════════════════════════════════════════════

// Message 统一对话消息
//
// 跨 Provider 的规范化消息结构。Content 为有序内容部件序列，
// 放入 ChatRequest 后不应再修改。
type Message struct {
	Role Role `json:"role"`

	// Name 可选的消息名称（部分 Provider 支持）
	Name string `json:"name,omitempty"`

	// Content 有序的多模态内容部件
	Content []ContentPart `json:"content,omitempty"`

	// Metadata 透传给 Provider 的元数据
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextMessage 创建纯文本消息
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentPart{&TextPart{Text: text}},
	}
}

// NewUserMessage 创建用户文本消息
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewSystemMessage 创建系统文本消息
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewAssistantMessage 创建助手文本消息
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolResultMessage 创建工具结果消息（tool 角色，单一 ToolResult 部件）
func NewToolResultMessage(callID string, output any, isError bool) Message {
	return Message{
		Role: RoleTool,
		Content: []ContentPart{&ToolResultPart{
			CallID:  callID,
			Output:  output,
			IsError: isError,
		}},
	}
}

// GetText 拼接消息中的全部文本部件
func (m *Message) GetText() string {
	var text string
	for _, part := range m.Content {
		if tp, ok := part.(*TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// GetToolCalls 获取消息中的工具调用部件
func (m *Message) GetToolCalls() []*ToolCallPart {
	var calls []*ToolCallPart
	for _, part := range m.Content {
		if tc, ok := part.(*ToolCallPart); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// GetToolResults 获取消息中的工具结果部件
func (m *Message) GetToolResults() []*ToolResultPart {
	var results []*ToolResultPart
	for _, part := range m.Content {
		if tr, ok := part.(*ToolResultPart); ok {
			results = append(results, tr)
		}
	}
	return results
}

// HasToolCalls 检查消息是否包含工具调用
func (m *Message) HasToolCalls() bool {
	return len(m.GetToolCalls()) > 0
}

// ═══════════════════════════════════════════════════════════════════════════
// 内容部件类型
// ═══════════════════════════════════════════════════════════════════════════

// ContentPart 内容部件接口
//
// 多模态消息的标签联合：文本、图片、音频、视频、文件引用、
// 工具调用、工具结果以及 Provider 自定义数据。
// 某个 Adapter 接受哪些变体由其能力声明决定，不是全局规则。
type ContentPart interface {
	PartType() string
}

// TextPart 文本部件
type TextPart struct {
	Text string `json:"text"`
}

// PartType 实现 ContentPart 接口
func (p *TextPart) PartType() string { return "text" }

// ImagePart 图片部件
type ImagePart struct {
	Source ImageSource `json:"source"`

	// Detail 细节等级提示："low", "high", "auto"
	Detail string `json:"detail,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType 实现 ContentPart 接口
func (p *ImagePart) PartType() string { return "image" }

// ImageSource 图片来源
//
// 三种来源互斥：公开 URL、Base64 内联数据、Provider 托管的文件 ID。
type ImageSource struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	FileID   string `json:"file_id,omitempty"`
}

// AudioPart 音频部件
type AudioPart struct {
	Source   MediaSource    `json:"source"`
	MIMEType string         `json:"mime_type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType 实现 ContentPart 接口
func (p *AudioPart) PartType() string { return "audio" }

// VideoPart 视频部件
type VideoPart struct {
	Source   MediaSource    `json:"source"`
	MIMEType string         `json:"mime_type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType 实现 ContentPart 接口
func (p *VideoPart) PartType() string { return "video" }

// MediaSource 音视频来源（内联 base64、文件 ID 或 URL，三者互斥）
type MediaSource struct {
	Data   string `json:"data,omitempty"`
	FileID string `json:"file_id,omitempty"`
	URL    string `json:"url,omitempty"`
}

// FilePart 文件引用部件
type FilePart struct {
	FileID   string         `json:"file_id"`
	Purpose  string         `json:"purpose,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType 实现 ContentPart 接口
func (p *FilePart) PartType() string { return "file" }

// ToolCallPart 工具调用部件（assistant 角色发出）
type ToolCallPart struct {
	// ID Provider 分配的调用标识
	ID string `json:"id,omitempty"`

	Name string `json:"name"`

	// Arguments 结构化参数（通常为 map[string]any，也可为原始 JSON 字符串）
	Arguments any `json:"arguments,omitempty"`
}

// PartType 实现 ContentPart 接口
func (p *ToolCallPart) PartType() string { return "tool_call" }

// ToolResultPart 工具结果部件（tool 角色消息应恰好包含一个）
type ToolResultPart struct {
	// CallID 关联的工具调用 ID
	CallID string `json:"call_id,omitempty"`

	// Output 工具返回的结果（字符串或任意 JSON 值）
	Output any `json:"output,omitempty"`

	IsError bool `json:"is_error,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType 实现 ContentPart 接口
func (p *ToolResultPart) PartType() string { return "tool_result" }

// DataPart Provider 自定义内容部件
type DataPart struct {
	Data any `json:"data"`
}

// PartType 实现 ContentPart 接口
func (p *DataPart) PartType() string { return "data" }
