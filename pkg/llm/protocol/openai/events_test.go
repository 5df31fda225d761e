package openai

import (
	"testing"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════
// MapEvent 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestEventMapper_TextDelta(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"index": float64(0),
				"delta": map[string]any{"content": "Hello"},
			},
		},
	}

	events, usage, terminal := mapper.MapEvent("", payload)

	assert.False(t, terminal, "finish comes from the [DONE] sentinel, not payloads")
	assert.Nil(t, usage)
	require.Len(t, events, 1)
	assert.Equal(t, llm.EventTypeText, events[0].Type)
	assert.Equal(t, "Hello", events[0].TextDelta)
}

func TestEventMapper_ReasoningContent(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"delta": map[string]any{"reasoning_content": "thinking..."},
			},
		},
	}

	events, _, _ := mapper.MapEvent("", payload)

	require.Len(t, events, 1)
	assert.Equal(t, llm.EventTypeReasoning, events[0].Type)
	require.NotNil(t, events[0].Reasoning)
	assert.Equal(t, "thinking...", events[0].Reasoning.ThoughtDelta)
}

func TestEventMapper_ToolCallDelta(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"delta": map[string]any{
					"tool_calls": []any{
						map[string]any{
							"index":    float64(0),
							"id":       "call_1",
							"function": map[string]any{"name": "get_weather", "arguments": `{"ci`},
						},
					},
				},
			},
		},
	}

	events, _, _ := mapper.MapEvent("", payload)

	require.Len(t, events, 1)
	assert.Equal(t, llm.EventTypeToolCall, events[0].Type)
	delta := events[0].ToolCall
	require.NotNil(t, delta)
	assert.Equal(t, "call_1", delta.ID)
	assert.Equal(t, "get_weather", delta.Name)
	assert.Equal(t, `{"ci`, delta.ArgumentsDelta)
}

func TestEventMapper_FinishReason(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"delta":         map[string]any{},
				"finish_reason": "tool_calls",
			},
		},
	}

	events, _, terminal := mapper.MapEvent("", payload)

	assert.False(t, terminal, "finish_reason does not terminate; the sentinel does")
	require.Len(t, events, 1)
	assert.Equal(t, llm.EventTypeFinish, events[0].Type)
	assert.Equal(t, llm.FinishReasonToolCalls, events[0].FinishReason)
}

func TestEventMapper_UsageChunk(t *testing.T) {
	// stream_options.include_usage 的最终 chunk：choices 为空，仅带 usage
	mapper := NewEventMapper()
	payload := map[string]any{
		"choices": []any{},
		"usage": map[string]any{
			"prompt_tokens":     float64(10),
			"completion_tokens": float64(5),
			"total_tokens":      float64(15),
		},
	}

	events, usage, terminal := mapper.MapEvent("", payload)

	assert.Empty(t, events)
	assert.False(t, terminal)
	require.NotNil(t, usage)
	assert.Equal(t, int64(10), usage.PromptTokens)
	assert.Equal(t, int64(5), usage.CompletionTokens)
}

func TestEventMapper_Sentinel(t *testing.T) {
	assert.Equal(t, "[DONE]", NewEventMapper().Sentinel())
}
