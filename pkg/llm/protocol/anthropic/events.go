package anthropic

import (
	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Anthropic SSE 事件映射器
// ═══════════════════════════════════════════════════════════════════════════

// EventMapper Anthropic SSE 事件映射器
//
// Anthropic 流式格式：
//   - 有显式事件类型（event: message_start, content_block_delta 等）
//   - 根据事件类型处理不同的数据结构
//   - 无数据哨兵，message_stop 事件终止序列
//
// 事件类型：
//   - message_start:        消息开始
//   - content_block_start:  内容块开始（含工具调用初始化）
//   - content_block_delta:  内容块增量（text_delta / input_json_delta / thinking_delta）
//   - content_block_stop:   内容块结束
//   - message_delta:        消息元数据增量（stop_reason 与 usage）
//   - message_stop:         消息结束（终止）
//   - ping:                 心跳
type EventMapper struct{}

// NewEventMapper 创建 Anthropic 事件映射器
func NewEventMapper() *EventMapper {
	return &EventMapper{}
}

// Sentinel Anthropic 不使用数据哨兵
func (m *EventMapper) Sentinel() string {
	return ""
}

// MapEvent 处理 Anthropic 流式事件
func (m *EventMapper) MapEvent(eventType string, payload map[string]any) ([]*llm.ChatEvent, *llm.TokenUsage, bool) {
	var events []*llm.ChatEvent
	var usage *llm.TokenUsage

	switch eventType {
	case "content_block_start":
		// 工具调用开始：携带 id 与 name，参数随后以增量到达
		if block := core.GetMap(payload["content_block"]); block != nil {
			if core.GetString(block["type"]) == "tool_use" {
				events = append(events, &llm.ChatEvent{
					Type: llm.EventTypeToolCall,
					ToolCall: &llm.ToolCallDelta{
						Index: core.GetInt(payload["index"]),
						ID:    core.GetString(block["id"]),
						Name:  core.GetString(block["name"]),
					},
				})
			}
		}

	case "content_block_delta":
		delta := core.GetMap(payload["delta"])
		if delta == nil {
			break
		}
		index := core.GetInt(payload["index"])

		switch core.GetString(delta["type"]) {
		case "text_delta":
			if text := core.GetString(delta["text"]); text != "" {
				events = append(events, &llm.ChatEvent{
					Type:      llm.EventTypeText,
					Index:     index,
					TextDelta: text,
				})
			}

		case "input_json_delta":
			if partial := core.GetString(delta["partial_json"]); partial != "" {
				events = append(events, &llm.ChatEvent{
					Type:  llm.EventTypeToolCall,
					Index: index,
					ToolCall: &llm.ToolCallDelta{
						Index:          index,
						ArgumentsDelta: partial,
					},
				})
			}

		case "thinking_delta":
			if thinking := core.GetString(delta["thinking"]); thinking != "" {
				events = append(events, &llm.ChatEvent{
					Type:      llm.EventTypeReasoning,
					Index:     index,
					Reasoning: &llm.ReasoningDelta{ThoughtDelta: thinking},
				})
			}
		}

	case "message_delta":
		if delta := core.GetMap(payload["delta"]); delta != nil {
			if stopReason := core.GetString(delta["stop_reason"]); stopReason != "" {
				events = append(events, &llm.ChatEvent{
					Type:         llm.EventTypeFinish,
					FinishReason: ConvertStopReason(stopReason),
				})
			}
		}
		// 最终用量随 message_delta 到达（顶层或 delta 内）
		if u := ConvertUsage(core.GetMap(payload["usage"])); u != nil {
			usage = u
		} else if delta := core.GetMap(payload["delta"]); delta != nil {
			usage = ConvertUsage(core.GetMap(delta["usage"]))
		}

	case "message_stop":
		events = append(events, &llm.ChatEvent{
			Type:         llm.EventTypeDone,
			FinishReason: llm.FinishReasonStop,
		})
		return events, usage, true

	case "message_start", "content_block_stop", "ping":
		// 无需输出

	default:
		// 未知事件类型，静默忽略
	}

	return events, usage, false
}

// 确保 EventMapper 实现了 core.EventMapper 接口
var _ core.EventMapper = (*EventMapper)(nil)
