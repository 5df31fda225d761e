package llm

// ═══════════════════════════════════════════════════════════════════════════
// 流式事件类型
// ═══════════════════════════════════════════════════════════════════════════

// EventType 流式事件类型
type EventType string

const (
	EventTypeText      EventType = "text"      // 文本增量
	EventTypeToolCall  EventType = "tool_call" // 工具调用增量
	EventTypeReasoning EventType = "reasoning" // 推理内容增量
	EventTypeFinish    EventType = "finish"    // 完成信号（携带 FinishReason）
	EventTypeDone      EventType = "done"      // 终止（序列结束）
	EventTypeError     EventType = "error"     // 终止错误
)

// ChatEvent 统一流式事件
//
// 使用示例：
//
//	for chunk := range stream {
//	    for _, event := range chunk.Events {
//	        switch event.Type {
//	        case llm.EventTypeText:
//	            fmt.Print(event.TextDelta)
//	        case llm.EventTypeToolCall:
//	            fmt.Printf("[tool %s]", event.ToolCall.Name)
//	        case llm.EventTypeError:
//	            log.Fatal(event.Err)
//	        }
//	    }
//	}
type ChatEvent struct {
	Type EventType `json:"type"`

	// Index 目标输出索引
	Index int `json:"index,omitempty"`

	// TextDelta 文本增量（Type 为 text）
	TextDelta string `json:"text_delta,omitempty"`

	// ToolCall 工具调用增量（Type 为 tool_call）
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`

	// Reasoning 推理增量（Type 为 reasoning）
	Reasoning *ReasoningDelta `json:"reasoning,omitempty"`

	// FinishReason 完成原因（Type 为 finish 或 done）
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Err 错误对象（Type 为 error，不序列化）
	Err error `json:"-"`

	// ErrorMessage 错误消息（序列化用）
	ErrorMessage string `json:"error,omitempty"`
}

// ToolCallDelta 工具调用增量
//
// 同一 Index 的增量按序拼接 ArgumentsDelta 可还原完整参数 JSON。
type ToolCallDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// ReasoningDelta 推理内容增量
type ReasoningDelta struct {
	ThoughtDelta string `json:"thought_delta,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式 Chunk
// ═══════════════════════════════════════════════════════════════════════════

// ChatChunk 一次流式推送
//
// 一个 chunk 携带有序的事件序列。IsTerminal 为 true 的 chunk 是序列的
// 最后一个；其后 channel 关闭，不再处理任何已缓冲的字节。
type ChatChunk struct {
	Events []*ChatEvent `json:"events"`

	// Usage 实时用量更新（可选）
	Usage *TokenUsage `json:"usage,omitempty"`

	IsTerminal bool `json:"is_terminal,omitempty"`

	Provider ProviderMetadata `json:"provider,omitzero"`
}

// Err 返回 chunk 中的终止错误（无错误事件时为 nil）
func (c *ChatChunk) Err() error {
	for _, event := range c.Events {
		if event.Type == EventTypeError {
			return event.Err
		}
	}
	return nil
}
