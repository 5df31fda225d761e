package anthropic

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ProviderName Adapter 标识
const ProviderName = "anthropic_messages"

// ═══════════════════════════════════════════════════════════════════════════
// Anthropic Messages 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter Anthropic Messages 协议适配器
//
// 处理 Claude Messages API 特有的协议格式。
//
// 关键协议差异：
//  1. system/developer 消息折叠为顶层 system 字段，不进消息数组
//  2. max_tokens 为必填字段
//  3. 工具调用是 tool_use 内容块，参数为结构化 JSON（非字符串）
//  4. 工具结果是 user 消息中的 tool_result 内容块
//  5. Token 字段名：input_tokens, output_tokens
//  6. 终止信号：message_stop 事件（无数据哨兵）
type Adapter struct{}

// NewAdapter 创建 Anthropic 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ═══════════════════════════════════════════════════════════════════════════
// BuildBody - 构建请求体
// ═══════════════════════════════════════════════════════════════════════════

// BuildBody 把统一请求转换为 Messages 格式
func (a *Adapter) BuildBody(request *llm.ChatRequest, model string, stream bool) (map[string]any, error) {
	if model == "" {
		return nil, llm.NewValidationError("model is required for Anthropic Messages")
	}
	body := map[string]any{"model": model}

	// system / developer 折叠为顶层 system，其余进入 messages
	var systemTexts []string
	var messages []any
	for i := range request.Messages {
		message := &request.Messages[i]
		switch message.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			if text := message.GetText(); text != "" {
				systemTexts = append(systemTexts, text)
			}
		default:
			converted, err := convertMessage(message)
			if err != nil {
				return nil, err
			}
			messages = append(messages, converted)
		}
	}
	// 校验发生在折叠之后：tool 消息会进入 user 角色的 tool_result 块，
	// 只有折叠后 messages 仍为空才算无效请求
	if len(messages) == 0 {
		return nil, llm.NewValidationError("Anthropic Messages requires at least one non-system message")
	}
	body["messages"] = messages
	if len(systemTexts) > 0 {
		body["system"] = strings.Join(systemTexts, "\n\n")
	}

	opts := &request.Options
	if opts.MaxOutputTokens <= 0 {
		return nil, llm.NewValidationError("Anthropic Messages requires ChatOptions.MaxOutputTokens (mapped to max_tokens)")
	}
	body["max_tokens"] = opts.MaxOutputTokens
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}

	if opts.Reasoning != nil {
		if thinking := buildThinking(opts.Reasoning); thinking != nil {
			body["thinking"] = thinking
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
		parallel := true
		if opts.ParallelToolCalls != nil {
			parallel = *opts.ParallelToolCalls
		}
		choice, err := convertToolChoice(request.ToolChoice, parallel)
		if err != nil {
			return nil, err
		}
		if choice != nil {
			body["tool_choice"] = choice
		}
	}

	if request.ResponseFormat != nil {
		switch request.ResponseFormat.Type {
		case llm.ResponseFormatText:
			// 默认行为，无需字段
		default:
			return nil, llm.NewUnsupportedFeatureError("structured_output")
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

// convertMessage 转换单条消息
//
// Anthropic 仅支持 user / assistant 角色，其它角色保守降级为 user。
func convertMessage(message *llm.Message) (map[string]any, error) {
	role := "user"
	if message.Role == llm.RoleAssistant {
		role = "assistant"
	}

	var blocks []any
	for _, part := range message.Content {
		block, err := convertContentPart(part)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return nil, llm.NewValidationError("message must contain at least one content part")
	}

	return map[string]any{"role": role, "content": blocks}, nil
}

// convertContentPart 转换内容部件为 Anthropic 内容块
func convertContentPart(part llm.ContentPart) (any, error) {
	switch p := part.(type) {
	case *llm.TextPart:
		return map[string]any{"type": "text", "text": p.Text}, nil

	case *llm.ImagePart:
		if p.Source.Data == "" {
			return nil, llm.NewUnsupportedFeatureError("image_source_non_base64")
		}
		mediaType := p.Source.MIMEType
		if mediaType == "" {
			mediaType = "image/png"
		}
		return map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": mediaType,
				"data":       p.Source.Data,
			},
		}, nil

	case *llm.ToolCallPart:
		// assistant 回放历史中的工具调用
		arguments := p.Arguments
		if arguments == nil {
			arguments = map[string]any{}
		}
		return map[string]any{
			"type":  "tool_use",
			"id":    p.ID,
			"name":  p.Name,
			"input": arguments,
		}, nil

	case *llm.ToolResultPart:
		if p.CallID == "" {
			return nil, llm.NewValidationError("tool_result content requires call_id (mapped to tool_use_id)")
		}
		content := ""
		if s, ok := p.Output.(string); ok {
			content = s
		} else if p.Output != nil {
			data, _ := json.Marshal(p.Output)
			content = string(data)
		}
		return map[string]any{
			"type":        "tool_result",
			"tool_use_id": p.CallID,
			"content":     content,
			"is_error":    p.IsError,
		}, nil

	case *llm.DataPart:
		return p.Data, nil

	default:
		return nil, llm.NewUnsupportedFeatureError("anthropic_messages_content_type")
	}
}

// buildThinking 构建 thinking 配置
//
// extra 中已有完整 thinking 配置时直接透传。
func buildThinking(reasoning *llm.ReasoningOptions) any {
	if explicit, ok := reasoning.Extra["thinking"]; ok {
		return explicit
	}
	if reasoning.BudgetTokens <= 0 {
		return nil
	}
	thinking := map[string]any{
		"type":          "enabled",
		"budget_tokens": reasoning.BudgetTokens,
	}
	for k, v := range reasoning.Extra {
		thinking[k] = v
	}
	return thinking
}

// convertTools 转换工具定义
func convertTools(tools []llm.ToolDefinition) ([]any, error) {
	result := make([]any, 0, len(tools))
	for _, tool := range tools {
		switch tool.Kind {
		case "", llm.ToolKindFunction:
			result = append(result, map[string]any{
				"type":         "custom",
				"name":         tool.Name,
				"description":  tool.Description,
				"input_schema": tool.InputSchema,
			})
		case llm.ToolKindCustom:
			if config, ok := tool.Metadata["config"]; ok {
				result = append(result, config)
			} else {
				result = append(result, map[string]any{"type": "custom", "name": tool.Name})
			}
		default:
			return nil, llm.NewValidationError("Anthropic tools currently only support function or custom tool configs")
		}
	}
	return result, nil
}

// convertToolChoice 转换工具选择策略
//
// Anthropic 没有显式 "none" 选项，none 时不设置 tool_choice，
// 调用方若要完全禁用工具应直接不提供 tools。
func convertToolChoice(choice *llm.ToolChoice, parallel bool) (any, error) {
	disableParallel := !parallel
	switch choice.Mode {
	case llm.ToolChoiceAuto:
		return map[string]any{"type": "auto", "disable_parallel_tool_use": disableParallel}, nil
	case llm.ToolChoiceAny:
		return map[string]any{"type": "any", "disable_parallel_tool_use": disableParallel}, nil
	case llm.ToolChoiceTool:
		return map[string]any{"type": "tool", "name": choice.Name, "disable_parallel_tool_use": disableParallel}, nil
	case llm.ToolChoiceNone:
		return nil, nil
	case llm.ToolChoiceCustom:
		return choice.Custom, nil
	default:
		return nil, llm.NewValidationError("unsupported tool choice mode: " + string(choice.Mode))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse - 解析响应
// ═══════════════════════════════════════════════════════════════════════════

// ParseResponse 解析 Messages 响应为统一格式
//
// 响应格式：
//
//	{
//	  "id": "msg_...",
//	  "model": "claude-...",
//	  "content": [
//	    {"type": "text", "text": "..."},
//	    {"type": "tool_use", "id": "...", "name": "...", "input": {...}}
//	  ],
//	  "stop_reason": "end_turn",
//	  "usage": {"input_tokens": 10, "output_tokens": 5}
//	}
func (a *Adapter) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewProviderError(ProviderName, 0, "failed to parse response: "+err.Error()).WithRaw(string(body))
	}

	response := &llm.ChatResponse{
		Model: core.GetString(resp["model"]),
		Provider: llm.ProviderMetadata{
			RequestID: core.GetString(resp["id"]),
		},
	}

	var messageParts []llm.ContentPart
	var toolCalls []*llm.ToolCallPart

	for _, rawBlock := range core.GetSlice(resp["content"]) {
		block := core.GetMap(rawBlock)
		if block == nil {
			continue
		}
		switch core.GetString(block["type"]) {
		case "text":
			messageParts = append(messageParts, &llm.TextPart{Text: core.GetString(block["text"])})
		case "thinking":
			response.Outputs = append(response.Outputs, llm.OutputItem{
				Kind:      llm.OutputKindReasoning,
				Reasoning: core.GetString(block["thinking"]),
			})
		case "tool_use":
			input := block["input"]
			if input == nil {
				input = map[string]any{}
			}
			toolCalls = append(toolCalls, &llm.ToolCallPart{
				ID:        core.GetString(block["id"]),
				Name:      core.GetString(block["name"]),
				Arguments: input,
			})
		case "image":
			if source := core.GetMap(block["source"]); source != nil {
				messageParts = append(messageParts, &llm.ImagePart{
					Source: llm.ImageSource{
						Data:     core.GetString(source["data"]),
						MIMEType: core.GetString(source["media_type"]),
					},
				})
			} else {
				messageParts = append(messageParts, &llm.DataPart{Data: block})
			}
		default:
			// 文档等未建模的块作为原始数据透传
			messageParts = append(messageParts, &llm.DataPart{Data: block})
		}
	}

	if len(messageParts) > 0 {
		response.Outputs = append(response.Outputs, llm.OutputItem{
			Kind:    llm.OutputKindMessage,
			Message: &llm.Message{Role: llm.RoleAssistant, Content: messageParts},
		})
	}
	for _, call := range toolCalls {
		response.Outputs = append(response.Outputs, llm.OutputItem{
			Kind:     llm.OutputKindToolCall,
			ToolCall: call,
		})
	}

	if stopReason := core.GetString(resp["stop_reason"]); stopReason != "" {
		response.FinishReason = ConvertStopReason(stopReason)
	}
	response.Usage = ConvertUsage(core.GetMap(resp["usage"]))
	return response, nil
}

// ConvertStopReason 转换完成原因
func ConvertStopReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	default:
		return llm.FinishReason(reason)
	}
}

// ConvertUsage 解析 Anthropic 的 Token 使用量
//
// 字段名：input_tokens, output_tokens；缓存 tokens 进 Details。
func ConvertUsage(usage map[string]any) *llm.TokenUsage {
	if usage == nil {
		return nil
	}
	result := &llm.TokenUsage{
		PromptTokens:     core.GetInt64(usage["input_tokens"]),
		CompletionTokens: core.GetInt64(usage["output_tokens"]),
	}
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	details := map[string]any{}
	if v := core.GetInt64(usage["cache_creation_input_tokens"]); v > 0 {
		details["cache_creation_input_tokens"] = v
	}
	if v := core.GetInt64(usage["cache_read_input_tokens"]); v > 0 {
		details["cache_read_input_tokens"] = v
	}
	if len(details) > 0 {
		result.Details = details
	}
	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseError - 错误分类
// ═══════════════════════════════════════════════════════════════════════════

// ParseError 把 Anthropic 错误响应分类为统一错误
//
// 错误体格式：{"error": {"type": "...", "message": "..."}}
func (a *Adapter) ParseError(status int, headers http.Header, body []byte) error {
	message := extractErrorMessage(body)
	if message == "" {
		return llm.NewProviderError(ProviderName, status, "status "+http.StatusText(status)).WithRaw(string(body))
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(message)
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(message, llm.RetryAfterFromHeaders(headers))
	case http.StatusBadRequest:
		if llm.LooksLikeTokenLimitError("", message) {
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

// extractErrorMessage 提取 {"error": {"message", "type"}} 结构
func extractErrorMessage(body []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	errData := core.GetMap(parsed["error"])
	if errData == nil {
		return ""
	}
	message := core.GetString(errData["message"])
	if message == "" {
		message = "unknown error"
	}
	if code := core.GetString(errData["code"]); code != "" {
		message = message + " (" + code + ")"
	}
	return message
}
