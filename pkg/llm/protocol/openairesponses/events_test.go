package openairesponses

import (
	"testing"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMapper_OutputTextDelta(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"type":         "response.output_text.delta",
		"output_index": float64(1),
		"delta":        "hello",
	}

	events, usage, terminal := mapper.MapEvent("", payload)
	require.Len(t, events, 1)
	assert.Nil(t, usage)
	assert.False(t, terminal)
	assert.Equal(t, llm.EventTypeText, events[0].Type)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, "hello", events[0].TextDelta)
}

func TestEventMapper_TypeFromEventLine(t *testing.T) {
	mapper := NewEventMapper()
	// event: 行存在时优先于载荷里的 type 字段
	payload := map[string]any{"delta": "hi"}

	events, _, terminal := mapper.MapEvent("response.output_text.delta", payload)
	require.Len(t, events, 1)
	assert.False(t, terminal)
	assert.Equal(t, "hi", events[0].TextDelta)
}

func TestEventMapper_ReasoningSummaryDelta(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"type":  "response.reasoning_summary_text.delta",
		"delta": "thinking...",
	}

	events, _, terminal := mapper.MapEvent("", payload)
	require.Len(t, events, 1)
	assert.False(t, terminal)
	assert.Equal(t, llm.EventTypeReasoning, events[0].Type)
	assert.Equal(t, "thinking...", events[0].Reasoning.ThoughtDelta)
}

func TestEventMapper_CompletedIsTerminal(t *testing.T) {
	mapper := NewEventMapper()
	payload := map[string]any{
		"type": "response.completed",
		"response": map[string]any{
			"status": "completed",
			"usage": map[string]any{
				"input_tokens":  float64(10),
				"output_tokens": float64(5),
				"total_tokens":  float64(15),
			},
		},
	}

	events, usage, terminal := mapper.MapEvent("", payload)
	assert.True(t, terminal)
	require.NotNil(t, usage)
	assert.Equal(t, int64(10), usage.PromptTokens)
	assert.Equal(t, int64(5), usage.CompletionTokens)
	require.Len(t, events, 1)
	assert.Equal(t, llm.EventTypeFinish, events[0].Type)
	assert.Equal(t, llm.FinishReasonStop, events[0].FinishReason)
}

func TestEventMapper_LifecycleEventsIgnored(t *testing.T) {
	mapper := NewEventMapper()
	for _, kind := range []string{
		"response.created",
		"response.in_progress",
		"response.output_item.added",
		"response.output_text.done",
		"response.content_part.added",
	} {
		events, usage, terminal := mapper.MapEvent("", map[string]any{"type": kind})
		assert.Empty(t, events, kind)
		assert.Nil(t, usage, kind)
		assert.False(t, terminal, kind)
	}
}

func TestEventMapper_EmptyDeltaIgnored(t *testing.T) {
	mapper := NewEventMapper()
	events, usage, terminal := mapper.MapEvent("", map[string]any{
		"type":  "response.output_text.delta",
		"delta": "",
	})
	assert.Empty(t, events)
	assert.Nil(t, usage)
	assert.False(t, terminal)
}

func TestEventMapper_Sentinel(t *testing.T) {
	assert.Equal(t, "[DONE]", NewEventMapper().Sentinel())
}
