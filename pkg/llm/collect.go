package llm

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ═══════════════════════════════════════════════════════════════════════════
// 流式结果聚合
// ═══════════════════════════════════════════════════════════════════════════

// CollectStream 将流式 chunk 序列折叠为完整响应
//
// 文本与推理增量按序拼接；工具调用按 Index 聚合参数增量并在结束时
// 解析为结构化参数。增量拼出的参数 JSON 偶尔被 Provider 截断或转义
// 损坏，解析失败时先尝试修复再重试，仍失败则保留原始字符串。
//
// 流在终止信号之前结束返回 StreamClosed 错误；
// 错误事件原样返回其携带的错误。
func CollectStream(stream ChatStream) (*ChatResponse, error) {
	var (
		text         strings.Builder
		reasoning    strings.Builder
		finishReason FinishReason
		usage        *TokenUsage
		provider     ProviderMetadata
		terminal     bool
		toolCalls    = make(map[int]*toolCallAccumulator)
	)

	for chunk := range stream {
		if chunk.Provider.Provider != "" {
			provider = chunk.Provider
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, event := range chunk.Events {
			switch event.Type {
			case EventTypeText:
				text.WriteString(event.TextDelta)
			case EventTypeReasoning:
				if event.Reasoning != nil {
					reasoning.WriteString(event.Reasoning.ThoughtDelta)
				}
			case EventTypeToolCall:
				if delta := event.ToolCall; delta != nil {
					acc, ok := toolCalls[delta.Index]
					if !ok {
						acc = &toolCallAccumulator{}
						toolCalls[delta.Index] = acc
					}
					acc.apply(delta)
				}
			case EventTypeFinish, EventTypeDone:
				if event.FinishReason != "" {
					finishReason = event.FinishReason
				}
			case EventTypeError:
				if event.Err != nil {
					return nil, event.Err
				}
				return nil, NewUnknownError(event.ErrorMessage, nil)
			}
		}
		if chunk.IsTerminal {
			terminal = true
		}
	}

	if !terminal {
		return nil, NewStreamClosedError("stream ended before a terminal signal", nil)
	}

	response := &ChatResponse{
		FinishReason: finishReason,
		Usage:        usage,
		Provider:     provider,
	}

	index := 0
	if text.Len() > 0 {
		msg := NewAssistantMessage(text.String())
		response.Outputs = append(response.Outputs, OutputItem{
			Kind:    OutputKindMessage,
			Index:   index,
			Message: &msg,
		})
		index++
	}
	if reasoning.Len() > 0 {
		response.Outputs = append(response.Outputs, OutputItem{
			Kind:      OutputKindReasoning,
			Index:     index,
			Reasoning: reasoning.String(),
		})
		index++
	}

	indices := make([]int, 0, len(toolCalls))
	for i := range toolCalls {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		acc := toolCalls[i]
		response.Outputs = append(response.Outputs, OutputItem{
			Kind:     OutputKindToolCall,
			Index:    index,
			ToolCall: acc.finish(),
		})
		index++
	}

	return response, nil
}

// toolCallAccumulator 聚合单个工具调用的增量
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func (a *toolCallAccumulator) apply(delta *ToolCallDelta) {
	if delta.ID != "" {
		a.id = delta.ID
	}
	if delta.Name != "" {
		a.name = delta.Name
	}
	a.args.WriteString(delta.ArgumentsDelta)
}

// finish 将累积的参数增量解析为结构化参数
func (a *toolCallAccumulator) finish() *ToolCallPart {
	call := &ToolCallPart{ID: a.id, Name: a.name}
	raw := strings.TrimSpace(a.args.String())
	if raw == "" {
		return call
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		call.Arguments = parsed
		return call
	}

	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
			call.Arguments = parsed
			return call
		}
	}

	// 修复失败，保留原始字符串交给调用方
	call.Arguments = raw
	return call
}
