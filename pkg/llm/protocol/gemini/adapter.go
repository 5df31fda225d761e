package gemini

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
)

// ProviderName Adapter 标识
const ProviderName = "google_gemini"

// ═══════════════════════════════════════════════════════════════════════════
// Google Gemini GenerateContent 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter Google Gemini GenerateContent 协议适配器
//
// 处理 Gemini API 特有的协议格式。
//
// 关键协议差异：
//  1. 模型编码在 URL 路径中（models/{model}:generateContent），不在请求体
//  2. system/developer 消息折叠为 system_instruction 字段
//  3. assistant 角色映射为 "model"
//  4. 采样参数收敛到 generationConfig 对象（camelCase 字段名）
//  5. 工具调用/结果是 parts 中的 functionCall / functionResponse
//  6. 无终止哨兵，最后一个 chunk 携带 finishReason 后流自然结束
type Adapter struct{}

// NewAdapter 创建 Gemini 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// NormalizeModel 补全 models/ 前缀
func NormalizeModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// ═══════════════════════════════════════════════════════════════════════════
// BuildBody - 构建请求体
// ═══════════════════════════════════════════════════════════════════════════

// BuildBody 把统一请求转换为 GenerateContent 格式
//
// model 只影响 URL，不会出现在请求体中。
func (a *Adapter) BuildBody(request *llm.ChatRequest, model string, stream bool) (map[string]any, error) {
	_ = model
	_ = stream

	body := map[string]any{}

	// system / developer 折叠为 system_instruction，其余进入 contents
	var systemTexts []string
	var contents []any
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
			contents = append(contents, converted)
		}
	}
	if len(contents) == 0 {
		return nil, llm.NewValidationError("Gemini GenerateContent request requires at least one content message")
	}
	body["contents"] = contents

	if len(systemTexts) > 0 {
		body["system_instruction"] = map[string]any{
			"role":  "system",
			"parts": []any{map[string]any{"text": strings.Join(systemTexts, "\n\n")}},
		}
	}

	if genCfg := buildGenerationConfig(request); genCfg != nil {
		body["generationConfig"] = genCfg
	}

	if len(request.Tools) > 0 {
		tools, err := convertTools(request.Tools)
		if err != nil {
			return nil, err
		}
		body["tools"] = tools
	}
	if request.ToolChoice != nil {
		config, err := convertToolChoice(request.ToolChoice)
		if err != nil {
			return nil, err
		}
		if config != nil {
			body["toolConfig"] = config
		}
	}

	if len(request.Metadata) > 0 {
		body["metadata"] = request.Metadata
	}
	// safetySettings、cachedContent 等扩展配置原样透传
	for k, v := range request.Options.Extra {
		body[k] = v
	}

	return body, nil
}

// convertMessage 转换单条消息为 Gemini Content
func convertMessage(message *llm.Message) (map[string]any, error) {
	role := string(message.Role)
	if message.Role == llm.RoleAssistant {
		role = "model"
	}

	var parts []any
	for _, part := range message.Content {
		converted, err := convertContentPart(part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, converted)
	}
	return map[string]any{"role": role, "parts": parts}, nil
}

// convertContentPart 转换内容部件为 Gemini Part
func convertContentPart(part llm.ContentPart) (any, error) {
	switch p := part.(type) {
	case *llm.TextPart:
		return map[string]any{"text": p.Text}, nil

	case *llm.ImagePart:
		if p.Source.Data != "" {
			mime := p.Source.MIMEType
			if mime == "" {
				mime = "image/jpeg"
			}
			return inlineData(mime, p.Source.Data), nil
		}
		uri := p.Source.URL
		if uri == "" {
			uri = p.Source.FileID
		}
		return fileData("application/octet-stream", uri), nil

	case *llm.AudioPart:
		mime := p.MIMEType
		if mime == "" {
			mime = "audio/mpeg"
		}
		return mediaPart(p.Source, mime), nil

	case *llm.VideoPart:
		mime := p.MIMEType
		if mime == "" {
			mime = "video/mp4"
		}
		return mediaPart(p.Source, mime), nil

	case *llm.FilePart:
		return fileData("application/octet-stream", p.FileID), nil

	case *llm.ToolCallPart:
		// assistant 回放历史中的函数调用
		arguments := p.Arguments
		if arguments == nil {
			arguments = map[string]any{}
		}
		return map[string]any{
			"functionCall": map[string]any{"name": p.Name, "args": arguments},
		}, nil

	case *llm.ToolResultPart:
		response := p.Output
		if _, ok := response.(map[string]any); !ok {
			response = map[string]any{"result": p.Output}
		}
		return map[string]any{
			"functionResponse": map[string]any{"name": p.CallID, "response": response},
		}, nil

	case *llm.DataPart:
		return p.Data, nil

	default:
		return nil, llm.NewValidationError("unsupported content part: " + part.PartType())
	}
}

func inlineData(mime, data string) map[string]any {
	return map[string]any{
		"inlineData": map[string]any{"mimeType": mime, "data": data},
	}
}

func fileData(mime, uri string) map[string]any {
	return map[string]any{
		"fileData": map[string]any{"mimeType": mime, "fileUri": uri},
	}
}

// mediaPart 音视频来源映射（内联 → inlineData，URL/文件 ID → fileData）
func mediaPart(source llm.MediaSource, mime string) map[string]any {
	if source.Data != "" {
		return inlineData(mime, source.Data)
	}
	uri := source.URL
	if uri == "" {
		uri = source.FileID
	}
	return fileData(mime, uri)
}

// buildGenerationConfig 构建 generationConfig 字段
//
// ResponseFormat 为 Custom 时整体替换 generationConfig，调用方
// 控制全部字段。
func buildGenerationConfig(request *llm.ChatRequest) map[string]any {
	cfg := map[string]any{}
	opts := &request.Options

	if opts.Temperature != nil {
		cfg["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		cfg["topP"] = *opts.TopP
	}
	if opts.MaxOutputTokens > 0 {
		cfg["maxOutputTokens"] = opts.MaxOutputTokens
	}
	if opts.PresencePenalty != nil {
		cfg["presencePenalty"] = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		cfg["frequencyPenalty"] = *opts.FrequencyPenalty
	}
	if opts.Reasoning != nil && opts.Reasoning.BudgetTokens > 0 {
		cfg["thinkingConfig"] = map[string]any{"thinkingBudget": opts.Reasoning.BudgetTokens}
	}

	if format := request.ResponseFormat; format != nil {
		switch format.Type {
		case llm.ResponseFormatJSONObject:
			cfg["response_mime_type"] = "application/json"
		case llm.ResponseFormatJSONSchema:
			cfg["response_mime_type"] = "application/json"
			cfg["response_schema"] = format.Schema
		case llm.ResponseFormatCustom:
			if custom, ok := format.Custom.(map[string]any); ok {
				return custom
			}
		}
	}

	if len(cfg) == 0 {
		return nil
	}
	return cfg
}

// convertTools 转换工具定义
//
// 每个函数独立成一个 tool 条目：{"functionDeclarations": [{...}]}。
func convertTools(tools []llm.ToolDefinition) ([]any, error) {
	result := make([]any, 0, len(tools))
	for _, tool := range tools {
		switch tool.Kind {
		case "", llm.ToolKindFunction:
			decl := map[string]any{"name": tool.Name}
			if tool.Description != "" {
				decl["description"] = tool.Description
			}
			if tool.InputSchema != nil {
				decl["parameters"] = tool.InputSchema
			}
			result = append(result, map[string]any{"functionDeclarations": []any{decl}})
		case llm.ToolKindCustom:
			if config, ok := tool.Metadata["config"]; ok {
				result = append(result, config)
			} else {
				result = append(result, map[string]any{"name": tool.Name})
			}
		default:
			return nil, llm.NewValidationError("Gemini tools currently only support function definitions or custom tool configs")
		}
	}
	return result, nil
}

// convertToolChoice 转换为 toolConfig.functionCallingConfig
func convertToolChoice(choice *llm.ToolChoice) (any, error) {
	switch choice.Mode {
	case llm.ToolChoiceAuto:
		return nil, nil
	case llm.ToolChoiceAny:
		return map[string]any{
			"functionCallingConfig": map[string]any{"mode": "any"},
		}, nil
	case llm.ToolChoiceNone:
		return map[string]any{
			"functionCallingConfig": map[string]any{"mode": "none"},
		}, nil
	case llm.ToolChoiceTool:
		return map[string]any{
			"functionCallingConfig": map[string]any{
				"mode":                 "any",
				"allowedFunctionNames": []any{choice.Name},
			},
		}, nil
	case llm.ToolChoiceCustom:
		return choice.Custom, nil
	default:
		return nil, llm.NewValidationError("unsupported tool choice mode: " + string(choice.Mode))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse - 解析响应
// ═══════════════════════════════════════════════════════════════════════════

// ParseResponse 解析 GenerateContent 响应为统一格式
//
// 响应格式：
//
//	{
//	  "candidates": [{
//	    "content": {"role": "model", "parts": [{"text": "..."}]},
//	    "finishReason": "STOP",
//	    "index": 0
//	  }],
//	  "usageMetadata": {"promptTokenCount": 1, "candidatesTokenCount": 2},
//	  "modelVersion": "gemini-2.0-flash"
//	}
func (a *Adapter) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewProviderError(ProviderName, 0, "failed to parse response: "+err.Error()).WithRaw(string(body))
	}

	response := &llm.ChatResponse{
		Model: core.GetString(resp["modelVersion"]),
		Provider: llm.ProviderMetadata{
			RequestID: core.GetString(resp["responseId"]),
		},
	}

	for defaultIndex, rawCandidate := range core.GetSlice(resp["candidates"]) {
		candidate := core.GetMap(rawCandidate)
		if candidate == nil {
			continue
		}
		index := defaultIndex
		if v, ok := candidate["index"]; ok {
			index = core.GetInt(v)
		}

		if content := core.GetMap(candidate["content"]); content != nil {
			message, toolCalls, toolResults := convertCandidateContent(content)
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
			for _, result := range toolResults {
				response.Outputs = append(response.Outputs, llm.OutputItem{
					Kind:       llm.OutputKindToolResult,
					Index:      index,
					ToolResult: result,
				})
			}
		}

		if response.FinishReason == "" {
			if fr := core.GetString(candidate["finishReason"]); fr != "" {
				response.FinishReason = ConvertFinishReason(fr)
			}
		}
	}

	response.Usage = ConvertUsage(core.GetMap(resp["usageMetadata"]))
	return response, nil
}

// convertCandidateContent 拆分 candidate 内容为消息、工具调用与结果
func convertCandidateContent(content map[string]any) (*llm.Message, []*llm.ToolCallPart, []*llm.ToolResultPart) {
	role := llm.RoleAssistant
	if r := core.GetString(content["role"]); r != "" && r != "model" {
		role = llm.Role(r)
	}
	message := &llm.Message{Role: role}

	var toolCalls []*llm.ToolCallPart
	var toolResults []*llm.ToolResultPart

	for _, rawPart := range core.GetSlice(content["parts"]) {
		partData := core.GetMap(rawPart)
		if partData == nil {
			continue
		}

		if call := core.GetMap(partData["functionCall"]); call != nil {
			toolCalls = append(toolCalls, &llm.ToolCallPart{
				Name:      core.GetString(call["name"]),
				Arguments: call["args"],
			})
			continue
		}
		if fnResp := core.GetMap(partData["functionResponse"]); fnResp != nil {
			toolResults = append(toolResults, &llm.ToolResultPart{
				Output: fnResp["response"],
			})
			continue
		}
		if text := core.GetString(partData["text"]); text != "" {
			message.Content = append(message.Content, &llm.TextPart{Text: text})
			continue
		}

		// 其余多模态/元信息透传为 Data，供上层按需解析
		message.Content = append(message.Content, &llm.DataPart{Data: partData})
	}
	return message, toolCalls, toolResults
}

// ConvertFinishReason 转换完成原因（Gemini 使用大写常量）
func ConvertFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "STOP":
		return llm.FinishReasonStop
	case "MAX_TOKENS":
		return llm.FinishReasonLength
	case "MALFORMED_FUNCTION_CALL":
		return llm.FinishReasonToolCalls
	case "SAFETY", "RECITATION", "LANGUAGE", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReason(reason)
	}
}

// ConvertUsage 解析 usageMetadata
//
// 字段名：promptTokenCount, candidatesTokenCount, totalTokenCount；
// 思考 tokens 在 thoughtsTokenCount。
func ConvertUsage(usage map[string]any) *llm.TokenUsage {
	if usage == nil {
		return nil
	}
	result := &llm.TokenUsage{
		PromptTokens:     core.GetInt64(usage["promptTokenCount"]),
		CompletionTokens: core.GetInt64(usage["candidatesTokenCount"]),
		ReasoningTokens:  core.GetInt64(usage["thoughtsTokenCount"]),
		TotalTokens:      core.GetInt64(usage["totalTokenCount"]),
	}

	details := map[string]any{}
	if v := core.GetInt64(usage["cachedContentTokenCount"]); v > 0 {
		details["cached_content_token_count"] = v
	}
	if v := core.GetInt64(usage["toolUsePromptTokenCount"]); v > 0 {
		details["tool_use_prompt_token_count"] = v
	}
	if len(details) > 0 {
		result.Details = details
	}
	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseError - 错误分类
// ═══════════════════════════════════════════════════════════════════════════

// ParseError 把 Gemini 错误响应分类为统一错误
//
// 错误体格式：{"error": {"code": 400, "message": "...", "status": "INVALID_ARGUMENT"}}
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

// extractErrorMessage 提取 {"error": {"message", "status"}} 结构
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
	if statusText := core.GetString(errData["status"]); statusText != "" {
		message = message + " (" + statusText + ")"
	}
	return message
}
