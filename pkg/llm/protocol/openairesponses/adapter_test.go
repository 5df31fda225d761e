package openairesponses

import (
	"net/http"
	"testing"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

// ═══════════════════════════════════════════════════════════════════════════
// BuildBody 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestAdapter_BuildBody_TextMessage(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hello")},
	}
	request.Options.Temperature = floatPtr(0.3)
	request.Options.MaxOutputTokens = 256

	body, err := adapter.BuildBody(request, "gpt-4.1", false)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", body["model"])
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, 0.3, body["temperature"])
	// ⚠️ Responses 原生使用 max_output_tokens，不是 max_tokens
	assert.Equal(t, 256, body["max_output_tokens"])
	assert.NotContains(t, body, "max_tokens")

	input := body["input"].([]any)
	require.Len(t, input, 1)
	msg := input[0].(map[string]any)
	assert.Equal(t, "message", msg["type"])
	assert.Equal(t, "user", msg["role"])
	content := msg["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, map[string]any{"type": "input_text", "text": "hello"}, content[0])
}

func TestAdapter_BuildBody_ModelRequired(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("hi")}}

	_, err := adapter.BuildBody(request, "", false)
	require.Error(t, err)
	assert.True(t, llm.IsValidationError(err))
}

func TestAdapter_BuildBody_InstructionsFolding(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage("You are terse."),
			llm.NewTextMessage(llm.RoleDeveloper, "Answer in English."),
			llm.NewUserMessage("Hello!"),
		},
	}

	body, err := adapter.BuildBody(request, "gpt-4.1", false)
	require.NoError(t, err)

	// system/developer 折叠进 instructions，不出现在 input 里
	assert.Equal(t, "You are terse.\n\nAnswer in English.", body["instructions"])
	input := body["input"].([]any)
	require.Len(t, input, 1)
	assert.Equal(t, "user", input[0].(map[string]any)["role"])
}

func TestAdapter_BuildBody_ToolContentsRejected(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{
		Messages: []llm.Message{llm.NewToolResultMessage("call_1", "out", false)},
	}

	_, err := adapter.BuildBody(request, "gpt-4.1", false)
	require.Error(t, err)
	assert.True(t, llm.IsValidationError(err))
	assert.Contains(t, err.Error(), "input messages")
}

func TestAdapter_BuildBody_FlatFunctionTools(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("weather?")},
		Tools: []llm.ToolDefinition{{
			Name:        "get_weather",
			Description: "Get the weather",
			InputSchema: map[string]any{"type": "object"},
		}},
	}

	body, err := adapter.BuildBody(request, "gpt-4.1", false)
	require.NoError(t, err)

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	// 扁平结构：没有 function 包装，默认 strict
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, "get_weather", tool["name"])
	assert.Equal(t, map[string]any{"type": "object"}, tool["parameters"])
	assert.Equal(t, true, tool["strict"])
	assert.NotContains(t, tool, "function")
}

func TestAdapter_BuildBody_ToolChoice(t *testing.T) {
	adapter := NewAdapter()
	cases := []struct {
		choice   *llm.ToolChoice
		expected any
	}{
		{&llm.ToolChoice{Mode: llm.ToolChoiceAuto}, "auto"},
		{&llm.ToolChoice{Mode: llm.ToolChoiceAny}, "required"},
		{&llm.ToolChoice{Mode: llm.ToolChoiceNone}, "none"},
		{
			&llm.ToolChoice{Mode: llm.ToolChoiceTool, Name: "get_weather"},
			map[string]any{"type": "function", "function": map[string]any{"name": "get_weather"}},
		},
	}

	for _, tc := range cases {
		request := &llm.ChatRequest{
			Messages:   []llm.Message{llm.NewUserMessage("hi")},
			ToolChoice: tc.choice,
		}
		body, err := adapter.BuildBody(request, "gpt-4.1", false)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, body["tool_choice"], "mode %s", tc.choice.Mode)
	}
}

func TestAdapter_BuildBody_TextFormat(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
		ResponseFormat: &llm.ResponseFormat{
			Type:   llm.ResponseFormatJSONSchema,
			Name:   "weather",
			Schema: map[string]any{"type": "object"},
		},
	}

	body, err := adapter.BuildBody(request, "gpt-4.1", false)
	require.NoError(t, err)

	text := body["text"].(map[string]any)
	format := text["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "weather", format["name"])
	assert.Equal(t, map[string]any{"type": "object"}, format["schema"])
}

func TestAdapter_BuildBody_ReasoningObject(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("hi")}}
	request.Options.Reasoning = &llm.ReasoningOptions{
		Effort: "high",
		Extra:  map[string]any{"summary": "auto"},
	}
	request.Options.Extra = map[string]any{"service_tier": "default"}

	body, err := adapter.BuildBody(request, "gpt-4.1", true)
	require.NoError(t, err)

	reasoning := body["reasoning"].(map[string]any)
	assert.Equal(t, "high", reasoning["effort"])
	assert.Equal(t, "auto", reasoning["summary"])
	assert.Equal(t, "default", body["service_tier"])
	assert.Equal(t, true, body["stream"])
}

func TestAdapter_BuildBody_ImageDataURL(t *testing.T) {
	adapter := NewAdapter()
	request := &llm.ChatRequest{
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: []llm.ContentPart{
				&llm.ImagePart{Source: llm.ImageSource{Data: "aGk=", MIMEType: "image/png"}, Detail: "high"},
			},
		}},
	}

	body, err := adapter.BuildBody(request, "gpt-4.1", false)
	require.NoError(t, err)

	input := body["input"].([]any)
	content := input[0].(map[string]any)["content"].([]any)
	part := content[0].(map[string]any)
	assert.Equal(t, "input_image", part["type"])
	assert.Equal(t, "data:image/png;base64,aGk=", part["image_url"])
	assert.Equal(t, "high", part["detail"])
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestAdapter_ParseResponse_TextAndUsage(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{
		"status": "completed",
		"model": "gpt-4.1",
		"output": [{
			"type": "message",
			"role": "assistant",
			"content": [{"type": "output_text", "text": "hello responses", "annotations": []}]
		}],
		"usage": {
			"input_tokens": 10,
			"output_tokens": 5,
			"total_tokens": 15,
			"output_tokens_details": {"reasoning_tokens": 2}
		}
	}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", response.Model)
	assert.Equal(t, "hello responses", response.GetText())
	assert.Equal(t, llm.FinishReasonStop, response.FinishReason)
	require.NotNil(t, response.Usage)
	assert.Equal(t, int64(10), response.Usage.PromptTokens)
	assert.Equal(t, int64(5), response.Usage.CompletionTokens)
	assert.Equal(t, int64(2), response.Usage.ReasoningTokens)
}

func TestAdapter_ParseResponse_FunctionCallAndResult(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{
		"status": "completed",
		"model": "gpt-4.1",
		"output": [
			{
				"type": "function_call",
				"call_id": "call_1",
				"name": "get_weather",
				"arguments": "{\"city\":\"Tokyo\"}"
			},
			{
				"type": "function_call_output",
				"call_id": "call_1",
				"output": "{\"temperature\": 25}"
			}
		]
	}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)
	require.Len(t, response.Outputs, 2)

	call := response.Outputs[0]
	assert.Equal(t, llm.OutputKindToolCall, call.Kind)
	assert.Equal(t, "call_1", call.ToolCall.ID)
	assert.Equal(t, "get_weather", call.ToolCall.Name)
	assert.Equal(t, map[string]any{"city": "Tokyo"}, call.ToolCall.Arguments)

	result := response.Outputs[1]
	assert.Equal(t, llm.OutputKindToolResult, result.Kind)
	assert.Equal(t, "call_1", result.ToolResult.CallID)
	assert.Equal(t, map[string]any{"temperature": float64(25)}, result.ToolResult.Output)
}

func TestAdapter_ParseResponse_ReasoningSummary(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{
		"status": "completed",
		"model": "o4-mini",
		"output": [
			{"type": "reasoning", "summary": [{"text": "step one"}, {"text": "step two"}]},
			{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "done"}]}
		]
	}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)
	require.Len(t, response.Outputs, 2)
	assert.Equal(t, llm.OutputKindReasoning, response.Outputs[0].Kind)
	assert.Equal(t, "step one\nstep two", response.Outputs[0].Reasoning)
	assert.Equal(t, "done", response.GetText())
}

func TestAdapter_ParseResponse_UnknownOutputKept(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{
		"status": "completed",
		"model": "gpt-4.1",
		"output": [{"type": "web_search_call", "id": "ws_1", "status": "completed"}]
	}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)
	require.Len(t, response.Outputs, 1)
	assert.Equal(t, llm.OutputKindCustom, response.Outputs[0].Kind)
	custom := response.Outputs[0].Custom.(map[string]any)
	assert.Equal(t, "web_search_call", custom["type"])
}

func TestAdapter_ParseResponse_IncompleteStatus(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{"status": "incomplete", "model": "gpt-4.1", "output": []}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, llm.FinishReason("incomplete"), response.FinishReason)
}

func TestAdapter_ParseResponse_ErrorStatus(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{"status": "failed", "error": {"code": "server_error"}, "model": "gpt-4.1", "output": []}`)

	response, err := adapter.ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, llm.FinishReasonError, response.FinishReason)
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
		{"auth", 401, `{"error":{"message":"invalid api key","code":"invalid_api_key"}}`, llm.KindAuth},
		{"forbidden", 403, `{"error":{"message":"no access"}}`, llm.KindAuth},
		{"rate limit", 429, `{"error":{"message":"rate limited","code":"rate_limit_exceeded"}}`, llm.KindRateLimit},
		{"validation", 400, `{"error":{"message":"bad request","code":"some_code"}}`, llm.KindValidation},
		{"token limit", 400, `{"error":{"message":"Input tokens exceed the maximum context window.","code":"context_length_exceeded"}}`, llm.KindTokenLimitExceeded},
		{"server error", 500, `{"error":{"message":"boom"}}`, llm.KindProvider},
		{"non-json body", 502, `bad gateway`, llm.KindProvider},
	}

	for _, tc := range cases {
		err := adapter.ParseError(tc.status, http.Header{}, []byte(tc.body))
		require.Error(t, err, tc.name)
		assert.Equal(t, tc.kind, llm.KindOf(err), tc.name)
	}
}

func TestAdapter_ParseError_ModelNotFound(t *testing.T) {
	adapter := NewAdapter()
	body := []byte(`{"error":{"message":"The model ` + "`responses:gpt-missing`" + ` is not available","code":"model_not_found"}}`)

	err := adapter.ParseError(404, http.Header{}, body)
	require.Error(t, err)
	assert.Equal(t, llm.KindModelNotFound, llm.KindOf(err))
	llmErr, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "responses:gpt-missing", llmErr.Model)
}

func TestAdapter_ParseError_RetryAfterHint(t *testing.T) {
	adapter := NewAdapter()
	headers := http.Header{}
	headers.Set("Retry-After", "20")

	err := adapter.ParseError(429, headers, []byte(`{"error":{"message":"slow down"}}`))
	require.Error(t, err)
	hint, ok := llm.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, "20s", hint.String())
}
