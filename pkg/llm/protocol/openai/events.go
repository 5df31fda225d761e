package openai

import (
	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI SSE 事件映射器
// ═══════════════════════════════════════════════════════════════════════════

// EventMapper OpenAI SSE 事件映射器
//
// OpenAI 流式格式：
//   - 无显式事件类型（eventType 总是空字符串）
//   - 数据结构：choices[0].delta
//   - 终止信号：data: [DONE] 哨兵
//
// delta 结构：
//
//	{
//	  "choices": [{
//	    "delta": {
//	      "content": "...",                    // 文本增量
//	      "reasoning_content": "...",          // 推理内容 (DeepSeek R1)
//	      "tool_calls": [{"index": 0, ...}]    // 工具调用增量
//	    },
//	    "finish_reason": "stop"
//	  }],
//	  "usage": {...}                           // 最后一个 chunk 可携带
//	}
type EventMapper struct{}

// NewEventMapper 创建 OpenAI 事件映射器
func NewEventMapper() *EventMapper {
	return &EventMapper{}
}

// Sentinel 返回 [DONE] 终止哨兵
func (m *EventMapper) Sentinel() string {
	return "[DONE]"
}

// MapEvent 处理 OpenAI 流式事件
//
// finish_reason 产生 finish 事件但不终止序列，权威终止来自 [DONE]
// 哨兵；哨兵之后的字节即使已缓冲也不再处理。
func (m *EventMapper) MapEvent(eventType string, payload map[string]any) ([]*llm.ChatEvent, *llm.TokenUsage, bool) {
	var events []*llm.ChatEvent

	for _, rawChoice := range core.GetSlice(payload["choices"]) {
		choice := core.GetMap(rawChoice)
		if choice == nil {
			continue
		}
		index := core.GetInt(choice["index"])

		if delta := core.GetMap(choice["delta"]); delta != nil {
			if content := core.GetString(delta["content"]); content != "" {
				events = append(events, &llm.ChatEvent{
					Type:      llm.EventTypeText,
					Index:     index,
					TextDelta: content,
				})
			}

			// 推理内容 (DeepSeek R1, Kimi thinking)
			if reasoning := core.GetString(delta["reasoning_content"]); reasoning != "" {
				events = append(events, &llm.ChatEvent{
					Type:      llm.EventTypeReasoning,
					Index:     index,
					Reasoning: &llm.ReasoningDelta{ThoughtDelta: reasoning},
				})
			}

			for _, rawCall := range core.GetSlice(delta["tool_calls"]) {
				callData := core.GetMap(rawCall)
				if callData == nil {
					continue
				}
				d := &llm.ToolCallDelta{
					Index: core.GetInt(callData["index"]),
					ID:    core.GetString(callData["id"]),
				}
				if fn := core.GetMap(callData["function"]); fn != nil {
					d.Name = core.GetString(fn["name"])
					d.ArgumentsDelta = core.GetString(fn["arguments"])
				}
				events = append(events, &llm.ChatEvent{
					Type:     llm.EventTypeToolCall,
					Index:    index,
					ToolCall: d,
				})
			}
		}

		if fr := core.GetString(choice["finish_reason"]); fr != "" {
			events = append(events, &llm.ChatEvent{
				Type:         llm.EventTypeFinish,
				Index:        index,
				FinishReason: ConvertFinishReason(fr),
			})
		}
	}

	usage := ConvertUsage(core.GetMap(payload["usage"]))
	return events, usage, false
}

// 确保 EventMapper 实现了 core.EventMapper 接口
var _ core.EventMapper = (*EventMapper)(nil)
