package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamOf(chunks ...*ChatChunk) ChatStream {
	ch := make(chan *ChatChunk, len(chunks))
	for _, chunk := range chunks {
		ch <- chunk
	}
	close(ch)
	return ch
}

// ═══════════════════════════════════════════════════════════════════════════
// CollectStream 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestCollectStream_TextAggregation(t *testing.T) {
	stream := streamOf(
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeText, TextDelta: "Hello"}}},
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeText, TextDelta: ", world"}}},
		&ChatChunk{
			Events:     []*ChatEvent{{Type: EventTypeDone, FinishReason: FinishReasonStop}},
			Usage:      &TokenUsage{PromptTokens: 3, CompletionTokens: 2},
			IsTerminal: true,
		},
	)

	response, err := CollectStream(stream)

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", response.GetText())
	assert.Equal(t, FinishReasonStop, response.FinishReason)
	require.NotNil(t, response.Usage)
	assert.Equal(t, int64(3), response.Usage.PromptTokens)
}

func TestCollectStream_ToolCallAssembly(t *testing.T) {
	stream := streamOf(
		&ChatChunk{Events: []*ChatEvent{{
			Type:     EventTypeToolCall,
			ToolCall: &ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather"},
		}}},
		&ChatChunk{Events: []*ChatEvent{{
			Type:     EventTypeToolCall,
			ToolCall: &ToolCallDelta{Index: 0, ArgumentsDelta: `{"city":`},
		}}},
		&ChatChunk{Events: []*ChatEvent{{
			Type:     EventTypeToolCall,
			ToolCall: &ToolCallDelta{Index: 0, ArgumentsDelta: `"Tokyo"}`},
		}}},
		&ChatChunk{
			Events:     []*ChatEvent{{Type: EventTypeDone, FinishReason: FinishReasonToolCalls}},
			IsTerminal: true,
		},
	)

	response, err := CollectStream(stream)

	require.NoError(t, err)
	calls := response.GetToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, map[string]any{"city": "Tokyo"}, calls[0].Arguments)
}

func TestCollectStream_RepairsTruncatedArguments(t *testing.T) {
	// Provider 偶尔截断参数 JSON；聚合时先尝试修复
	stream := streamOf(
		&ChatChunk{Events: []*ChatEvent{{
			Type:     EventTypeToolCall,
			ToolCall: &ToolCallDelta{Index: 0, Name: "lookup", ArgumentsDelta: `{"query": "unterminated`},
		}}},
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeDone}}, IsTerminal: true},
	)

	response, err := CollectStream(stream)

	require.NoError(t, err)
	calls := response.GetToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"query": "unterminated"}, calls[0].Arguments)
}

func TestCollectStream_ReasoningOutput(t *testing.T) {
	stream := streamOf(
		&ChatChunk{Events: []*ChatEvent{{
			Type:      EventTypeReasoning,
			Reasoning: &ReasoningDelta{ThoughtDelta: "step one; "},
		}}},
		&ChatChunk{Events: []*ChatEvent{{
			Type:      EventTypeReasoning,
			Reasoning: &ReasoningDelta{ThoughtDelta: "step two"},
		}}},
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeText, TextDelta: "answer"}}},
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeDone}}, IsTerminal: true},
	)

	response, err := CollectStream(stream)

	require.NoError(t, err)
	assert.Equal(t, "answer", response.GetText())

	var reasoning string
	for _, out := range response.Outputs {
		if out.Kind == OutputKindReasoning {
			reasoning = out.Reasoning
		}
	}
	assert.Equal(t, "step one; step two", reasoning)
}

func TestCollectStream_ErrorEvent(t *testing.T) {
	cause := NewProviderError("test", 500, "upstream exploded")
	stream := streamOf(
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeText, TextDelta: "partial"}}},
		&ChatChunk{
			Events:     []*ChatEvent{{Type: EventTypeError, Err: cause, ErrorMessage: cause.Error()}},
			IsTerminal: true,
		},
	)

	_, err := CollectStream(stream)

	require.Error(t, err)
	assert.Equal(t, cause, err, "error events return their carried error verbatim")
}

func TestCollectStream_MissingTerminal(t *testing.T) {
	stream := streamOf(
		&ChatChunk{Events: []*ChatEvent{{Type: EventTypeText, TextDelta: "cut off"}}},
	)

	_, err := CollectStream(stream)

	require.Error(t, err)
	assert.True(t, IsStreamClosedError(err))
}
