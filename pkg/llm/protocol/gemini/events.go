package gemini

import (
	"encoding/json"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Gemini SSE 事件映射器
// ═══════════════════════════════════════════════════════════════════════════

// EventMapper Gemini SSE 事件映射器
//
// Gemini 流式格式（streamGenerateContent?alt=sse）：
//   - 无显式事件类型，也无 [DONE] 哨兵
//   - 每个 chunk 是完整的 GenerateContentResponse 片段
//   - 最后一个 chunk 携带 finishReason，视为终止信号
type EventMapper struct{}

// NewEventMapper 创建 Gemini 事件映射器
func NewEventMapper() *EventMapper {
	return &EventMapper{}
}

// Sentinel Gemini 不使用数据哨兵
func (m *EventMapper) Sentinel() string {
	return ""
}

// MapEvent 处理 Gemini 流式事件
//
// candidate 携带 finishReason 时本 chunk 终止序列，其后的流自然
// 结束不会再触发 StreamClosed。
func (m *EventMapper) MapEvent(eventType string, payload map[string]any) ([]*llm.ChatEvent, *llm.TokenUsage, bool) {
	var events []*llm.ChatEvent
	terminal := false

	for defaultIndex, rawCandidate := range core.GetSlice(payload["candidates"]) {
		candidate := core.GetMap(rawCandidate)
		if candidate == nil {
			continue
		}
		index := defaultIndex
		if v, ok := candidate["index"]; ok {
			index = core.GetInt(v)
		}

		if content := core.GetMap(candidate["content"]); content != nil {
			for _, rawPart := range core.GetSlice(content["parts"]) {
				partData := core.GetMap(rawPart)
				if partData == nil {
					continue
				}

				// 函数调用一次性到达，参数整体序列化为增量
				if call := core.GetMap(partData["functionCall"]); call != nil {
					args, err := json.Marshal(call["args"])
					if err != nil {
						args = []byte("{}")
					}
					events = append(events, &llm.ChatEvent{
						Type:  llm.EventTypeToolCall,
						Index: index,
						ToolCall: &llm.ToolCallDelta{
							Index:          index,
							Name:           core.GetString(call["name"]),
							ArgumentsDelta: string(args),
						},
					})
					continue
				}

				if thought, ok := partData["thought"].(bool); ok && thought {
					if text := core.GetString(partData["text"]); text != "" {
						events = append(events, &llm.ChatEvent{
							Type:      llm.EventTypeReasoning,
							Index:     index,
							Reasoning: &llm.ReasoningDelta{ThoughtDelta: text},
						})
					}
					continue
				}

				if text := core.GetString(partData["text"]); text != "" {
					events = append(events, &llm.ChatEvent{
						Type:      llm.EventTypeText,
						Index:     index,
						TextDelta: text,
					})
				}
			}
		}

		if fr := core.GetString(candidate["finishReason"]); fr != "" {
			events = append(events, &llm.ChatEvent{
				Type:         llm.EventTypeFinish,
				Index:        index,
				FinishReason: ConvertFinishReason(fr),
			})
			terminal = true
		}
	}

	usage := ConvertUsage(core.GetMap(payload["usageMetadata"]))
	return events, usage, terminal
}

// 确保 EventMapper 实现了 core.EventMapper 接口
var _ core.EventMapper = (*EventMapper)(nil)
