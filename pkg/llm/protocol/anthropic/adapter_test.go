package anthropic

import (
	"net/http"
	"testing"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRequest(messages ...llm.Message) *llm.ChatRequest {
	return &llm.ChatRequest{
		Messages: messages,
		Options:  llm.ChatOptions{MaxOutputTokens: 1024},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// BuildBody 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestAdapter_BuildBody_SystemFolding(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(
		llm.NewSystemMessage("You are terse."),
		llm.NewTextMessage(llm.RoleDeveloper, "Prefer JSON."),
		llm.NewUserMessage("hi"),
	)

	body, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.NoError(t, err)

	// ⚠️ system/developer 折叠为顶层 system，不进 messages
	assert.Equal(t, "You are terse.\n\nPrefer JSON.", body["system"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestAdapter_BuildBody_MaxTokensRequired(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("hi")}}

	_, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.Error(t, err)
	assert.True(t, llm.IsValidationError(err))
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestAdapter_BuildBody_SystemOnlyRejected(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.NewSystemMessage("alone"))

	_, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.Error(t, err)
	assert.True(t, llm.IsValidationError(err))
}

func TestAdapter_BuildBody_ToolUseBlock(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.Message{
		Role: llm.RoleAssistant,
		Content: []llm.ContentPart{
			&llm.ToolCallPart{ID: "toolu_1", Name: "get_weather", Arguments: map[string]any{"city": "Tokyo"}},
		},
	})

	body, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.NoError(t, err)

	messages := body["messages"].([]any)
	blocks := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 1)
	block := blocks[0].(map[string]any)
	assert.Equal(t, "tool_use", block["type"])
	assert.Equal(t, "toolu_1", block["id"])
	// ⚠️ 参数保持结构化 JSON，不序列化为字符串
	assert.Equal(t, map[string]any{"city": "Tokyo"}, block["input"])
}

func TestAdapter_BuildBody_ToolResultBlock(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.NewToolResultMessage("toolu_1", map[string]any{"temp": 22}, false))

	body, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.NoError(t, err)

	messages := body["messages"].([]any)
	msg := messages[0].(map[string]any)
	// tool 角色降级为 user，结果是 tool_result 内容块
	assert.Equal(t, "user", msg["role"])
	block := msg["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "toolu_1", block["tool_use_id"])
	assert.Equal(t, `{"temp":22}`, block["content"])
	assert.Equal(t, false, block["is_error"])
}

func TestAdapter_BuildBody_ToolResultRequiresCallID(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.NewToolResultMessage("", "out", false))

	_, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.Error(t, err)
	assert.True(t, llm.IsValidationError(err))
}

func TestAdapter_BuildBody_Thinking(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.NewUserMessage("hard problem"))
	request.Options.Reasoning = &llm.ReasoningOptions{BudgetTokens: 4096}

	body, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.NoError(t, err)

	thinking := body["thinking"].(map[string]any)
	assert.Equal(t, "enabled", thinking["type"])
	assert.Equal(t, 4096, thinking["budget_tokens"])
}

func TestAdapter_BuildBody_StructuredOutputUnsupported(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.NewUserMessage("hi"))
	request.ResponseFormat = &llm.ResponseFormat{Type: llm.ResponseFormatJSONSchema}

	_, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.Error(t, err)
	assert.Equal(t, llm.KindUnsupportedFeature, llm.KindOf(err))
}

func TestAdapter_BuildBody_NonBase64ImageUnsupported(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.Message{
		Role:    llm.RoleUser,
		Content: []llm.ContentPart{&llm.ImagePart{Source: llm.ImageSource{URL: "https://example.com/x.png"}}},
	})

	_, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.Error(t, err)
	assert.Equal(t, llm.KindUnsupportedFeature, llm.KindOf(err))
}

func TestAdapter_BuildBody_ToolChoiceParallel(t *testing.T) {
	adapter := NewAdapter()
	disabled := false

	request := baseRequest(llm.NewUserMessage("hi"))
	request.ToolChoice = &llm.ToolChoice{Mode: llm.ToolChoiceAny}
	request.Options.ParallelToolCalls = &disabled

	body, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.NoError(t, err)

	choice := body["tool_choice"].(map[string]any)
	assert.Equal(t, "any", choice["type"])
	assert.Equal(t, true, choice["disable_parallel_tool_use"])
}

func TestAdapter_BuildBody_ToolChoiceNoneOmitted(t *testing.T) {
	adapter := NewAdapter()
	request := baseRequest(llm.NewUserMessage("hi"))
	request.ToolChoice = &llm.ToolChoice{Mode: llm.ToolChoiceNone}

	body, err := adapter.BuildBody(request, "claude-sonnet-4-5", false)
	require.NoError(t, err)
	assert.NotContains(t, body, "tool_choice")
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestAdapter_ParseResponse_TextAndUsage(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{
		"id": "msg_01",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "Hello!"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 3, "cache_read_input_tokens": 7}
	}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)

	assert.Equal(t, "Hello!", response.GetText())
	assert.Equal(t, llm.FinishReasonStop, response.FinishReason)
	assert.Equal(t, "msg_01", response.Provider.RequestID)
	require.NotNil(t, response.Usage)
	assert.Equal(t, int64(10), response.Usage.PromptTokens)
	assert.Equal(t, int64(13), response.Usage.TotalTokens, "total is the sum of input and output")
	assert.Equal(t, int64(7), response.Usage.Details["cache_read_input_tokens"])
}

func TestAdapter_ParseResponse_ToolUseAndThinking(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{
		"content": [
			{"type": "thinking", "thinking": "Let me reason..."},
			{"type": "text", "text": "Checking the weather."},
			{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Tokyo"}}
		],
		"stop_reason": "tool_use"
	}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)

	assert.Equal(t, llm.FinishReasonToolCalls, response.FinishReason)
	assert.Equal(t, "Checking the weather.", response.GetText())

	calls := response.GetToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].ID)
	assert.Equal(t, map[string]any{"city": "Tokyo"}, calls[0].Arguments)

	var reasoning string
	for _, out := range response.Outputs {
		if out.Kind == llm.OutputKindReasoning {
			reasoning = out.Reasoning
		}
	}
	assert.Equal(t, "Let me reason...", reasoning)
}

func TestConvertStopReason(t *testing.T) {
	assert.Equal(t, llm.FinishReasonStop, ConvertStopReason("end_turn"))
	assert.Equal(t, llm.FinishReasonStop, ConvertStopReason("stop_sequence"))
	assert.Equal(t, llm.FinishReasonLength, ConvertStopReason("max_tokens"))
	assert.Equal(t, llm.FinishReasonToolCalls, ConvertStopReason("tool_use"))
	assert.Equal(t, llm.FinishReason("refusal"), ConvertStopReason("refusal"))
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseError 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestAdapter_ParseError_Classification(t *testing.T) {
	adapter := NewAdapter()

	cases := []struct {
		name   string
		status int
		body   string
		kind   llm.ErrorKind
	}{
		{"auth", 401, `{"error": {"type": "authentication_error", "message": "invalid x-api-key"}}`, llm.KindAuth},
		{"rate limit", 429, `{"error": {"type": "rate_limit_error", "message": "Number of requests exceeded"}}`, llm.KindRateLimit},
		{"validation", 400, `{"error": {"type": "invalid_request_error", "message": "messages: at least one required"}}`, llm.KindValidation},
		{"token limit", 400, `{"error": {"type": "invalid_request_error", "message": "prompt is too long: 210000 tokens"}}`, llm.KindTokenLimitExceeded},
		{"not found", 404, `{"error": {"type": "not_found_error", "message": "model \"claude-9\" not found"}}`, llm.KindModelNotFound},
		{"overloaded", 529, `{"error": {"type": "overloaded_error", "message": "Overloaded"}}`, llm.KindProvider},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := adapter.ParseError(tc.status, http.Header{}, []byte(tc.body))
			require.Error(t, err)
			assert.Equal(t, tc.kind, llm.KindOf(err))
		})
	}
}
