package openai

import (
	"encoding/json"
	"net/http"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ProviderName Adapter 标识
const ProviderName = "openai_chat"

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI Chat Completions 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter OpenAI Chat Completions 协议适配器
//
// 处理 OpenAI API 特有的协议格式。
//
// 关键协议差异：
//  1. 工具参数：必须序列化为 JSON 字符串
//  2. 工具结果：展开为独立的 tool 角色消息（tool_call_id + content）
//  3. 系统消息：内联在消息数组中
//  4. Token 字段名：prompt_tokens, completion_tokens
//  5. 终止信号：data: [DONE] 哨兵
type Adapter struct{}

// NewAdapter 创建 OpenAI 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ═══════════════════════════════════════════════════════════════════════════
// BuildBody - 构建请求体
// ═══════════════════════════════════════════════════════════════════════════

// BuildBody 把统一请求转换为 Chat Completions 格式
//
// model 必须已解析（请求覆盖或配置默认值），为空时返回校验错误。
func (a *Adapter) BuildBody(request *llm.ChatRequest, model string, stream bool) (map[string]any, error) {
	if model == "" {
		return nil, llm.NewValidationError("model is required for OpenAI Chat")
	}

	messages, err := convertMessages(request.Messages)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"model":    model,
		"messages": messages,
	}

	opts := &request.Options
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if opts.MaxOutputTokens > 0 {
		// Chat Completions 历史上使用 max_tokens，大量兼容网关尚未
		// 适配后来新增的 max_completion_tokens，这里用更通用的字段
		body["max_tokens"] = opts.MaxOutputTokens
	}
	if opts.PresencePenalty != nil {
		body["presence_penalty"] = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		body["frequency_penalty"] = *opts.FrequencyPenalty
	}
	if opts.ParallelToolCalls != nil {
		body["parallel_tool_calls"] = *opts.ParallelToolCalls
	}
	if opts.Reasoning != nil {
		if opts.Reasoning.Effort != "" {
			body["reasoning_effort"] = opts.Reasoning.Effort
		}
		if opts.Reasoning.BudgetTokens > 0 {
			body["max_reasoning_tokens"] = opts.Reasoning.BudgetTokens
		}
		for k, v := range opts.Reasoning.Extra {
			body[k] = v
		}
	}

	if len(request.Tools) > 0 {
		tools, err := convertTools(request.Tools)
		if err != nil {
			return nil, err
		}
		body["tools"] = tools
	}
	if request.ToolChoice != nil {
		choice, err := convertToolChoice(request.ToolChoice)
		if err != nil {
			return nil, err
		}
		if choice != nil {
			body["tool_choice"] = choice
		}
	}
	if request.ResponseFormat != nil {
		body["response_format"] = convertResponseFormat(request.ResponseFormat)
	}
	if len(request.Metadata) > 0 {
		body["metadata"] = request.Metadata
	}
	for k, v := range opts.Extra {
		body[k] = v
	}

	body["stream"] = stream
	return body, nil
}

// convertMessages 转换消息列表为 OpenAI 格式
func convertMessages(messages []llm.Message) ([]map[string]any, error) {
	result := make([]map[string]any, 0, len(messages))
	for i := range messages {
		converted, err := convertMessage(&messages[i])
		if err != nil {
			return nil, err
		}
		result = append(result, converted)
	}
	return result, nil
}

// convertMessage 转换单条消息
//
// tool 角色消息折叠为 {role, tool_call_id, content}；其余角色的
// 工具调用部件收敛到 tool_calls 字段，内容部件进 content 数组。
func convertMessage(message *llm.Message) (map[string]any, error) {
	obj := map[string]any{"role": string(message.Role)}
	if message.Name != "" {
		obj["name"] = message.Name
	}

	var contentParts []any
	var toolCalls []any

	for _, part := range message.Content {
		switch p := part.(type) {
		case *llm.ToolCallPart:
			call, err := convertToolCall(p)
			if err != nil {
				return nil, err
			}
			toolCalls = append(toolCalls, call)
		case *llm.ToolResultPart:
			if message.Role != llm.RoleTool {
				return nil, llm.NewValidationError("tool results belong in tool role messages")
			}
			if p.CallID == "" {
				return nil, llm.NewValidationError("tool message missing call_id")
			}
			obj["tool_call_id"] = p.CallID
			obj["content"] = stringifyOutput(p.Output)
		default:
			converted, err := convertContentPart(part)
			if err != nil {
				return nil, err
			}
			contentParts = append(contentParts, converted)
		}
	}

	if message.Role != llm.RoleTool {
		if len(contentParts) > 0 {
			obj["content"] = contentParts
		} else {
			obj["content"] = nil
		}
		if len(toolCalls) > 0 {
			obj["tool_calls"] = toolCalls
		}
	}
	return obj, nil
}

// convertContentPart 转换内容部件
func convertContentPart(part llm.ContentPart) (any, error) {
	switch p := part.(type) {
	case *llm.TextPart:
		return map[string]any{"type": "text", "text": p.Text}, nil

	case *llm.ImagePart:
		detail := p.Detail
		if detail == "" {
			detail = "auto"
		}
		switch {
		case p.Source.URL != "":
			return map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": p.Source.URL, "detail": detail},
			}, nil
		case p.Source.Data != "":
			// 内联数据拼接为标准 Data URL，兼容官方接口和大多数兼容网关
			mime := p.Source.MIMEType
			if mime == "" {
				mime = "application/octet-stream"
			}
			return map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": "data:" + mime + ";base64," + p.Source.Data, "detail": detail},
			}, nil
		default:
			return map[string]any{
				"type":        "input_image",
				"input_image": map[string]any{"file_id": p.Source.FileID},
			}, nil
		}

	case *llm.AudioPart:
		format := p.MIMEType
		if format == "" {
			format = "wav"
		}
		return map[string]any{
			"type":        "input_audio",
			"input_audio": map[string]any{"data": mediaSourceValue(p.Source), "format": format},
		}, nil

	case *llm.VideoPart:
		var source map[string]any
		switch {
		case p.Source.Data != "":
			source = map[string]any{"data": p.Source.Data}
		case p.Source.FileID != "":
			source = map[string]any{"file_id": p.Source.FileID}
		default:
			source = map[string]any{"url": p.Source.URL}
		}
		return map[string]any{
			"type":        "input_video",
			"input_video": map[string]any{"source": source, "format": p.MIMEType},
		}, nil

	case *llm.FilePart:
		return map[string]any{
			"type": "file",
			"file": map[string]any{"file_id": p.FileID},
		}, nil

	case *llm.DataPart:
		return p.Data, nil

	default:
		return nil, llm.NewValidationError("unsupported content part: " + part.PartType())
	}
}

// mediaSourceValue 取音视频来源的载荷值（内联数据、文件 ID 或 URL）
func mediaSourceValue(source llm.MediaSource) string {
	switch {
	case source.Data != "":
		return source.Data
	case source.FileID != "":
		return source.FileID
	default:
		return source.URL
	}
}

// convertToolCall 转换工具调用（参数必须序列化为 JSON 字符串）
func convertToolCall(call *llm.ToolCallPart) (map[string]any, error) {
	arguments, err := stringifyArguments(call.Arguments)
	if err != nil {
		return nil, llm.NewValidationError("invalid tool arguments: " + err.Error())
	}
	obj := map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":      call.Name,
			"arguments": arguments,
		},
	}
	if call.ID != "" {
		obj["id"] = call.ID
	}
	return obj, nil
}

// convertTools 转换工具定义（仅支持 function）
func convertTools(tools []llm.ToolDefinition) ([]any, error) {
	result := make([]any, 0, len(tools))
	for _, tool := range tools {
		if tool.Kind != "" && tool.Kind != llm.ToolKindFunction {
			return nil, llm.NewValidationError("OpenAI Chat tools only support function definitions")
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.InputSchema,
			},
		})
	}
	return result, nil
}

// convertToolChoice 转换工具选择策略
func convertToolChoice(choice *llm.ToolChoice) (any, error) {
	switch choice.Mode {
	case llm.ToolChoiceAuto:
		return "auto", nil
	case llm.ToolChoiceAny:
		return "required", nil
	case llm.ToolChoiceNone:
		return "none", nil
	case llm.ToolChoiceTool:
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": choice.Name},
		}, nil
	case llm.ToolChoiceCustom:
		return choice.Custom, nil
	default:
		return nil, llm.NewValidationError("unsupported tool choice mode: " + string(choice.Mode))
	}
}

// convertResponseFormat 转换响应格式配置
func convertResponseFormat(format *llm.ResponseFormat) any {
	switch format.Type {
	case llm.ResponseFormatJSONObject:
		return map[string]any{"type": "json_object"}
	case llm.ResponseFormatJSONSchema:
		name := format.Name
		if name == "" {
			name = "response"
		}
		return map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"schema": format.Schema,
				"strict": true,
			},
		}
	case llm.ResponseFormatCustom:
		return format.Custom
	default:
		return map[string]any{"type": "text"}
	}
}

// stringifyArguments 序列化工具参数为 JSON 字符串
//
// 字符串参数被视为已经是 JSON 文本，原样透传。
func stringifyArguments(arguments any) (string, error) {
	if arguments == nil {
		return "{}", nil
	}
	if s, ok := arguments.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(arguments)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// stringifyOutput 序列化工具结果为字符串
func stringifyOutput(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	data, err := json.Marshal(output)
	if err != nil {
		return ""
	}
	return string(data)
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse - 解析响应
// ═══════════════════════════════════════════════════════════════════════════

// ParseResponse 解析 Chat Completions 响应为统一格式
//
// 响应格式：
//
//	{
//	  "choices": [{
//	    "index": 0,
//	    "message": {
//	      "content": "...",
//	      "tool_calls": [{"function": {"arguments": "{...}"}}]
//	    },
//	    "finish_reason": "stop"
//	  }],
//	  "usage": {"prompt_tokens": 1, "completion_tokens": 2}
//	}
func (a *Adapter) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewProviderError(ProviderName, 0, "failed to parse response: "+err.Error()).WithRaw(string(body))
	}

	response := &llm.ChatResponse{
		Model: core.GetString(resp["model"]),
	}

	for _, rawChoice := range core.GetSlice(resp["choices"]) {
		choice := core.GetMap(rawChoice)
		if choice == nil {
			continue
		}
		index := core.GetInt(choice["index"])

		if messageData := core.GetMap(choice["message"]); messageData != nil {
			message, toolCalls := convertResponseMessage(messageData)
			response.Outputs = append(response.Outputs, llm.OutputItem{
				Kind:    llm.OutputKindMessage,
				Index:   index,
				Message: message,
			})
			for _, call := range toolCalls {
				response.Outputs = append(response.Outputs, llm.OutputItem{
					Kind:     llm.OutputKindToolCall,
					Index:    index,
					ToolCall: call,
				})
			}
		}

		if response.FinishReason == "" {
			if fr := core.GetString(choice["finish_reason"]); fr != "" {
				response.FinishReason = ConvertFinishReason(fr)
			}
		}
	}

	response.Usage = ConvertUsage(core.GetMap(resp["usage"]))
	return response, nil
}

// convertResponseMessage 转换响应消息与其工具调用
func convertResponseMessage(messageData map[string]any) (*llm.Message, []*llm.ToolCallPart) {
	role := llm.Role(core.GetString(messageData["role"]))
	if role == "" {
		role = llm.RoleAssistant
	}
	message := &llm.Message{Role: role, Name: core.GetString(messageData["name"])}

	switch content := messageData["content"].(type) {
	case string:
		if content != "" {
			message.Content = append(message.Content, &llm.TextPart{Text: content})
		}
	case []any:
		for _, rawPart := range content {
			partData := core.GetMap(rawPart)
			if partData == nil {
				continue
			}
			switch core.GetString(partData["type"]) {
			case "text":
				message.Content = append(message.Content, &llm.TextPart{Text: core.GetString(partData["text"])})
			case "image_url":
				imageURL := core.GetMap(partData["image_url"])
				message.Content = append(message.Content, &llm.ImagePart{
					Source: llm.ImageSource{URL: core.GetString(imageURL["url"])},
					Detail: core.GetString(imageURL["detail"]),
				})
			default:
				message.Content = append(message.Content, &llm.DataPart{Data: partData})
			}
		}
	}

	var toolCalls []*llm.ToolCallPart
	for _, rawCall := range core.GetSlice(messageData["tool_calls"]) {
		callData := core.GetMap(rawCall)
		if callData == nil {
			continue
		}
		fn := core.GetMap(callData["function"])

		// 参数从 JSON 字符串反序列化，失败时保留原始字符串
		var arguments any
		if argsStr := core.GetString(fn["arguments"]); argsStr != "" {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(argsStr), &parsed); err == nil {
				arguments = parsed
			} else {
				arguments = argsStr
			}
		}

		toolCalls = append(toolCalls, &llm.ToolCallPart{
			ID:        core.GetString(callData["id"]),
			Name:      core.GetString(fn["name"]),
			Arguments: arguments,
		})
	}
	return message, toolCalls
}

// ConvertFinishReason 转换完成原因
func ConvertFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "tool_calls", "function_call":
		return llm.FinishReasonToolCalls
	case "content_filter":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReason(reason)
	}
}

// ConvertUsage 解析 OpenAI 的 Token 使用量
//
// 字段名：prompt_tokens, completion_tokens, total_tokens，
// 推理 tokens 在 completion_tokens_details.reasoning_tokens。
func ConvertUsage(usage map[string]any) *llm.TokenUsage {
	if usage == nil {
		return nil
	}
	result := &llm.TokenUsage{
		PromptTokens:     core.GetInt64(usage["prompt_tokens"]),
		CompletionTokens: core.GetInt64(usage["completion_tokens"]),
		TotalTokens:      core.GetInt64(usage["total_tokens"]),
	}
	if details := core.GetMap(usage["completion_tokens_details"]); details != nil {
		result.ReasoningTokens = core.GetInt64(details["reasoning_tokens"])
	}
	if details := core.GetMap(usage["prompt_tokens_details"]); details != nil {
		if cached := core.GetInt64(details["cached_tokens"]); cached > 0 {
			result.Details = map[string]any{"cached_tokens": cached}
		}
	}
	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseError - 错误分类
// ═══════════════════════════════════════════════════════════════════════════

// ParseError 把 OpenAI 错误响应分类为统一错误
//
// 分类规则：
//   - 401/403 → Auth
//   - 429 → RateLimit（Retry-After 响应头作为重试提示）
//   - 400 → 上下文超限启发式命中时 TokenLimitExceeded，否则 Validation
//   - 404 → 消息中能提取模型标识时 ModelNotFound，否则 Provider
//   - 其余 → Provider
func (a *Adapter) ParseError(status int, headers http.Header, body []byte) error {
	message, code := extractErrorFields(body)
	if message == "" {
		return llm.NewProviderError(ProviderName, status, "status "+http.StatusText(status)).WithRaw(string(body))
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(message)
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(message, llm.RetryAfterFromHeaders(headers))
	case http.StatusBadRequest:
		if llm.LooksLikeTokenLimitError(code, message) {
			return llm.NewTokenLimitError(message, 0, 0)
		}
		return llm.NewValidationError(message)
	case http.StatusNotFound:
		if model := llm.ExtractModelIdentifier(message); model != "" {
			return llm.NewModelNotFoundError(model, message)
		}
		return llm.NewProviderError(ProviderName, status, message)
	default:
		return llm.NewProviderError(ProviderName, status, message)
	}
}

// extractErrorFields 提取 {"error": {"message", "code"}} 结构
//
// code 可能是字符串或数字，统一转为字符串拼进消息。
func extractErrorFields(body []byte) (message, code string) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", ""
	}
	errData := core.GetMap(parsed["error"])
	if errData == nil {
		return "", ""
	}
	message = core.GetString(errData["message"])
	if message == "" {
		message = "unknown error"
	}
	switch c := errData["code"].(type) {
	case string:
		code = c
	case float64:
		data, _ := json.Marshal(c)
		code = string(data)
	}
	if code != "" {
		message = message + " (" + code + ")"
	}
	return message, code
}
