package llm

// ═══════════════════════════════════════════════════════════════════════════
// 共享校验器
// ═══════════════════════════════════════════════════════════════════════════
//
// 所有 Adapter 复用这里的谓词，使同一逻辑违规在任何 vendor 下
// 都产生相同的错误类别与消息。

// ValidateRequest 校验请求的通用不变式
//
// 检查：请求非空、至少一条消息、tool 角色消息恰好携带一个 ToolResult。
func ValidateRequest(request *ChatRequest) error {
	if request == nil {
		return NewValidationError("request is required")
	}
	if len(request.Messages) == 0 {
		return NewValidationError("request requires at least one message")
	}
	for i := range request.Messages {
		if err := ValidateToolMessage(&request.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

// RequireUserOrAssistantMessage 要求至少一条 user/assistant 消息
//
// 由拒绝纯 system 请求的 Adapter 调用。
func RequireUserOrAssistantMessage(request *ChatRequest) error {
	for _, msg := range request.Messages {
		if msg.Role == RoleUser || msg.Role == RoleAssistant {
			return nil
		}
	}
	return NewValidationError("request requires at least one user/assistant message")
}

// ValidateToolMessage 校验 tool 角色消息恰好携带一个 ToolResult 部件
func ValidateToolMessage(msg *Message) error {
	if msg.Role != RoleTool {
		return nil
	}
	if len(msg.Content) != 1 {
		return NewValidationError("tool role expects a single ToolResult content")
	}
	if _, ok := msg.Content[0].(*ToolResultPart); !ok {
		return NewValidationError("tool role expects a single ToolResult content")
	}
	return nil
}
