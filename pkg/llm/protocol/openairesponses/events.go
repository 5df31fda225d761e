package openairesponses

import (
	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Responses SSE 事件映射器
// ═══════════════════════════════════════════════════════════════════════════

// EventMapper Responses SSE 事件映射器
//
// Responses 流式格式：
//   - 事件类型在载荷的 type 字段里（event: 行不可靠，部分网关不转发）
//   - 文本增量：response.output_text.delta，{"delta": "...", "output_index": 0}
//   - 终止信号：response.completed 携带完整响应（含 usage），
//     之后可能还有 data: [DONE] 哨兵，两者都视为权威终止
//   - response.created / response.in_progress / output_item.* 等
//     过程事件不产生统一事件
type EventMapper struct{}

// NewEventMapper 创建 Responses 事件映射器
func NewEventMapper() *EventMapper {
	return &EventMapper{}
}

// Sentinel 返回 [DONE] 终止哨兵
func (m *EventMapper) Sentinel() string {
	return "[DONE]"
}

// MapEvent 处理 Responses 流式事件
func (m *EventMapper) MapEvent(eventType string, payload map[string]any) ([]*llm.ChatEvent, *llm.TokenUsage, bool) {
	kind := eventType
	if kind == "" {
		kind = core.GetString(payload["type"])
	}

	switch kind {
	case "response.output_text.delta":
		delta := core.GetString(payload["delta"])
		if delta == "" {
			return nil, nil, false
		}
		event := &llm.ChatEvent{
			Type:      llm.EventTypeText,
			Index:     core.GetInt(payload["output_index"]),
			TextDelta: delta,
		}
		return []*llm.ChatEvent{event}, nil, false

	case "response.reasoning_summary_text.delta":
		delta := core.GetString(payload["delta"])
		if delta == "" {
			return nil, nil, false
		}
		event := &llm.ChatEvent{
			Type:      llm.EventTypeReasoning,
			Index:     core.GetInt(payload["output_index"]),
			Reasoning: &llm.ReasoningDelta{ThoughtDelta: delta},
		}
		return []*llm.ChatEvent{event}, nil, false

	case "response.completed":
		var usage *llm.TokenUsage
		var events []*llm.ChatEvent
		if response := core.GetMap(payload["response"]); response != nil {
			usage = ConvertUsage(core.GetMap(response["usage"]))
			if reason := convertStatus(core.GetString(response["status"]), response["error"]); reason != "" {
				events = append(events, &llm.ChatEvent{
					Type:         llm.EventTypeFinish,
					FinishReason: reason,
				})
			}
		}
		return events, usage, true

	default:
		return nil, nil, false
	}
}

var _ core.EventMapper = (*EventMapper)(nil)
