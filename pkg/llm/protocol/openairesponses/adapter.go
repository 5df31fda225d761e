package openairesponses

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ProviderName Adapter 标识
const ProviderName = "openai_responses"

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI Responses 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter OpenAI Responses 协议适配器
//
// 处理 Responses API 特有的协议格式。
//
// 与 Chat Completions 的关键差异：
//  1. system/developer 消息折叠为顶层 instructions 字段
//  2. 对话消息进 input 数组，内容部件类型带 input_ 前缀
//  3. 工具定义是扁平结构（无 function 包装），默认 strict
//  4. 输出是多态的 output 数组：message / function_call / reasoning
//  5. Token 字段名：input_tokens, output_tokens
//  6. 终止信号：response.completed 事件或 data: [DONE] 哨兵
type Adapter struct{}

// NewAdapter 创建 Responses 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ═══════════════════════════════════════════════════════════════════════════
// BuildBody - 构建请求体
// ═══════════════════════════════════════════════════════════════════════════

// BuildBody 把统一请求转换为 Responses 格式
func (a *Adapter) BuildBody(request *llm.ChatRequest, model string, stream bool) (map[string]any, error) {
	if model == "" {
		return nil, llm.NewValidationError("model is required for OpenAI Responses")
	}

	body := map[string]any{"model": model}

	// system / developer 折叠为顶层 instructions，其余进入 input
	var instructionParts []string
	var input []any
	for i := range request.Messages {
		message := &request.Messages[i]
		switch message.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			if text := message.GetText(); text != "" {
				instructionParts = append(instructionParts, text)
			}
		default:
			converted, err := convertInputMessage(message)
			if err != nil {
				return nil, err
			}
			input = append(input, converted)
		}
	}
	if len(input) > 0 {
		body["input"] = input
	}
	if len(instructionParts) > 0 {
		body["instructions"] = strings.Join(instructionParts, "\n\n")
	}

	opts := &request.Options
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if opts.MaxOutputTokens > 0 {
		// Responses 原生就叫 max_output_tokens，无需改名
		body["max_output_tokens"] = opts.MaxOutputTokens
	}
	if opts.ParallelToolCalls != nil {
		body["parallel_tool_calls"] = *opts.ParallelToolCalls
	}
	if opts.Reasoning != nil {
		if reasoning := buildReasoning(opts.Reasoning); len(reasoning) > 0 {
			body["reasoning"] = reasoning
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
		if _, set := body["text"]; !set {
			body["text"] = convertTextConfig(request.ResponseFormat)
		}
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

// buildReasoning 构建 reasoning 对象（effort + 透传附加字段）
func buildReasoning(reasoning *llm.ReasoningOptions) map[string]any {
	obj := map[string]any{}
	if reasoning.Effort != "" {
		obj["effort"] = reasoning.Effort
	}
	for k, v := range reasoning.Extra {
		obj[k] = v
	}
	return obj
}

// convertInputMessage 转换单条 input 消息
//
// 工具调用和结果不允许出现在 input 消息里，Responses 有专门的
// function_call / function_call_output 输出项承载它们。
func convertInputMessage(message *llm.Message) (map[string]any, error) {
	obj := map[string]any{
		"type": "message",
		"role": string(message.Role),
	}

	var content []any
	for _, part := range message.Content {
		switch part.(type) {
		case *llm.ToolCallPart, *llm.ToolResultPart:
			return nil, llm.NewValidationError("tool contents are not allowed in Responses input messages")
		}
		converted, err := convertContentPart(part)
		if err != nil {
			return nil, err
		}
		content = append(content, converted)
	}
	// 字符串和数组都合法，统一用数组以兼容多模态输入
	obj["content"] = content
	return obj, nil
}

// convertContentPart 转换内容部件为 input_* 形状
func convertContentPart(part llm.ContentPart) (any, error) {
	switch p := part.(type) {
	case *llm.TextPart:
		return map[string]any{"type": "input_text", "text": p.Text}, nil

	case *llm.ImagePart:
		detail := p.Detail
		if detail == "" {
			detail = "auto"
		}
		switch {
		case p.Source.URL != "":
			return map[string]any{"type": "input_image", "image_url": p.Source.URL, "detail": detail}, nil
		case p.Source.Data != "":
			mime := p.Source.MIMEType
			if mime == "" {
				mime = "application/octet-stream"
			}
			return map[string]any{
				"type":      "input_image",
				"image_url": "data:" + mime + ";base64," + p.Source.Data,
				"detail":    detail,
			}, nil
		default:
			return map[string]any{"type": "input_image", "file_id": p.Source.FileID, "detail": detail}, nil
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
		return map[string]any{"type": "input_file", "file_id": p.FileID}, nil

	case *llm.DataPart:
		return p.Data, nil

	default:
		return nil, llm.NewValidationError("unsupported content part: " + part.PartType())
	}
}

// mediaSourceValue 取音视频来源的载荷值
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

// convertTools 转换工具定义为 Responses 的扁平结构
func convertTools(tools []llm.ToolDefinition) ([]any, error) {
	result := make([]any, 0, len(tools))
	for _, tool := range tools {
		switch tool.Kind {
		case "", llm.ToolKindFunction:
			obj := map[string]any{
				"type": "function",
				"name": tool.Name,
				// Responses 的 function 工具默认 strict，元数据可覆盖
				"strict": true,
			}
			if tool.Description != "" {
				obj["description"] = tool.Description
			}
			if tool.InputSchema != nil {
				obj["parameters"] = tool.InputSchema
			}
			for k, v := range tool.Metadata {
				if k == "type" || k == "name" || k == "parameters" {
					continue
				}
				obj[k] = v
			}
			result = append(result, obj)

		case llm.ToolKindFileSearch, llm.ToolKindWebSearch, llm.ToolKindComputerUse:
			obj := map[string]any{}
			for k, v := range tool.Metadata {
				obj[k] = v
			}
			if _, ok := obj["type"]; !ok {
				obj["type"] = builtinToolType(tool.Kind)
			}
			result = append(result, obj)

		case llm.ToolKindCustom:
			if config := tool.Metadata; len(config) > 0 {
				result = append(result, config)
			} else {
				result = append(result, map[string]any{"type": "custom", "name": tool.Name})
			}

		default:
			return nil, llm.NewValidationError("unsupported tool kind: " + string(tool.Kind))
		}
	}
	return result, nil
}

// builtinToolType 内置工具的默认 type 值
func builtinToolType(kind llm.ToolKind) string {
	switch kind {
	case llm.ToolKindFileSearch:
		return "file_search"
	case llm.ToolKindWebSearch:
		return "web_search_preview"
	default:
		return "computer_use_preview"
	}
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

// convertTextConfig 响应格式映射到 text.format
func convertTextConfig(format *llm.ResponseFormat) any {
	switch format.Type {
	case llm.ResponseFormatJSONObject:
		return map[string]any{"format": map[string]any{"type": "json_object"}}
	case llm.ResponseFormatJSONSchema:
		name := format.Name
		if name == "" {
			name = "response"
		}
		return map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   name,
				"schema": format.Schema,
			},
		}
	case llm.ResponseFormatCustom:
		return format.Custom
	default:
		return map[string]any{"format": map[string]any{"type": "text"}}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse - 解析响应
// ═══════════════════════════════════════════════════════════════════════════

// ParseResponse 解析 Responses 响应为统一格式
//
// 响应主体是多态的 output 数组：
//
//	{
//	  "status": "completed",
//	  "model": "gpt-4.1",
//	  "output": [
//	    {"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "..."}]},
//	    {"type": "function_call", "call_id": "...", "name": "...", "arguments": "{...}"},
//	    {"type": "reasoning", "summary": [{"text": "..."}]}
//	  ],
//	  "usage": {"input_tokens": 1, "output_tokens": 2}
//	}
func (a *Adapter) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewProviderError(ProviderName, 0, "failed to parse response: "+err.Error()).WithRaw(string(body))
	}

	response := &llm.ChatResponse{
		Model: core.GetString(resp["model"]),
	}

	for index, rawItem := range core.GetSlice(resp["output"]) {
		item := core.GetMap(rawItem)
		if item == nil {
			continue
		}
		response.Outputs = append(response.Outputs, convertOutputItem(item, index))
	}

	response.Usage = ConvertUsage(core.GetMap(resp["usage"]))
	response.FinishReason = convertStatus(core.GetString(resp["status"]), resp["error"])
	return response, nil
}

// convertOutputItem 转换单个 output 项
//
// 未知类型整体保留为 Custom 输出，不丢数据。
func convertOutputItem(item map[string]any, index int) llm.OutputItem {
	switch core.GetString(item["type"]) {
	case "message":
		return llm.OutputItem{
			Kind:    llm.OutputKindMessage,
			Index:   index,
			Message: convertOutputMessage(item),
		}

	case "function_call":
		return llm.OutputItem{
			Kind:  llm.OutputKindToolCall,
			Index: index,
			ToolCall: &llm.ToolCallPart{
				ID:        core.GetString(item["call_id"]),
				Name:      core.GetString(item["name"]),
				Arguments: parseJSONOrKeep(core.GetString(item["arguments"])),
			},
		}

	case "function_call_output":
		return llm.OutputItem{
			Kind:  llm.OutputKindToolResult,
			Index: index,
			ToolResult: &llm.ToolResultPart{
				CallID: core.GetString(item["call_id"]),
				Output: parseJSONOrKeep(core.GetString(item["output"])),
			},
		}

	case "reasoning":
		if text := reasoningSummaryText(item); text != "" {
			return llm.OutputItem{Kind: llm.OutputKindReasoning, Index: index, Reasoning: text}
		}
		return llm.OutputItem{Kind: llm.OutputKindCustom, Index: index, Custom: item}

	default:
		return llm.OutputItem{Kind: llm.OutputKindCustom, Index: index, Custom: item}
	}
}

// convertOutputMessage 转换 message 输出项
//
// output_text 部件进文本，refusal / citation 等整体透传为 Data。
func convertOutputMessage(item map[string]any) *llm.Message {
	role := llm.Role(core.GetString(item["role"]))
	if role == "" {
		role = llm.RoleAssistant
	}
	message := &llm.Message{Role: role, Name: core.GetString(item["name"])}

	switch content := item["content"].(type) {
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
			if core.GetString(partData["type"]) == "output_text" {
				message.Content = append(message.Content, &llm.TextPart{Text: core.GetString(partData["text"])})
			} else {
				message.Content = append(message.Content, &llm.DataPart{Data: partData})
			}
		}
	}
	return message
}

// reasoningSummaryText 拼接 reasoning 项的 summary 文本
func reasoningSummaryText(item map[string]any) string {
	var parts []string
	for _, rawEntry := range core.GetSlice(item["summary"]) {
		entry := core.GetMap(rawEntry)
		if text := core.GetString(entry["text"]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// parseJSONOrKeep 反序列化 JSON 字符串，失败时保留原始文本
func parseJSONOrKeep(raw string) any {
	if raw == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}

// convertStatus 把 Responses 的 status 映射为完成原因
func convertStatus(status string, errValue any) llm.FinishReason {
	if errValue != nil {
		return llm.FinishReasonError
	}
	switch status {
	case "":
		return ""
	case "completed":
		return llm.FinishReasonStop
	default:
		return llm.FinishReason(status)
	}
}

// ConvertUsage 解析 Responses 的 Token 使用量
//
// 字段名：input_tokens, output_tokens, total_tokens，
// 推理 tokens 在 output_tokens_details.reasoning_tokens。
func ConvertUsage(usage map[string]any) *llm.TokenUsage {
	if usage == nil {
		return nil
	}
	result := &llm.TokenUsage{
		PromptTokens:     core.GetInt64(usage["input_tokens"]),
		CompletionTokens: core.GetInt64(usage["output_tokens"]),
		TotalTokens:      core.GetInt64(usage["total_tokens"]),
	}
	if details := core.GetMap(usage["output_tokens_details"]); details != nil {
		result.ReasoningTokens = core.GetInt64(details["reasoning_tokens"])
	}
	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseError - 错误分类
// ═══════════════════════════════════════════════════════════════════════════

// ParseError 把 Responses 错误响应分类为统一错误
//
// 错误体结构与 Chat Completions 一致，分类规则也相同：
//   - 401/403 → Auth
//   - 429 → RateLimit（Retry-After 响应头作为重试提示）
//   - 400 → 上下文超限启发式命中时 TokenLimitExceeded，否则 Validation
//   - 404 或 code=model_not_found → ModelNotFound（能提取模型标识时）
//   - 其余 → Provider
func (a *Adapter) ParseError(status int, headers http.Header, body []byte) error {
	message, code := extractErrorFields(body)
	if message == "" {
		return llm.NewProviderError(ProviderName, status, "status "+http.StatusText(status)).WithRaw(string(body))
	}

	if llm.LooksLikeTokenLimitError(code, message) {
		return llm.NewTokenLimitError(message, 0, 0)
	}
	if status == http.StatusNotFound || code == "model_not_found" {
		if model := llm.ExtractModelIdentifier(message); model != "" {
			return llm.NewModelNotFoundError(model, message)
		}
		return llm.NewProviderError(ProviderName, status, message)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(message)
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(message, llm.RetryAfterFromHeaders(headers))
	case http.StatusBadRequest:
		return llm.NewValidationError(message)
	default:
		return llm.NewProviderError(ProviderName, status, message)
	}
}

// extractErrorFields 提取 {"error": {"message", "code"}} 结构
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
