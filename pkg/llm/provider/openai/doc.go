// Package openai 提供 OpenAI Chat Completions 格式的 LLM Provider 实现
//
// 本包实现了 [llm.Provider] 接口，支持所有 OpenAI 兼容的 API 服务，
// 包括 OpenAI 官方 API、OpenRouter、Azure OpenAI、本地 Ollama 等。
//
// # 概述
//
// [Client] 是核心类型，通用流程由 core.BaseClient 编排：
//
//   - 支持同步完成 (Chat) 和流式完成 (StreamChat)
//   - 支持工具调用 (Tool Calling / Function Calling)
//   - 支持结构化输出 (response_format: json_schema)
//   - 自动处理消息格式转换
//   - 内置 SSE 流式响应解析
//
// # 快速开始
//
//	client, err := openai.New(&openai.Config{
//	    Credential: llm.Credential{Type: llm.CredentialAPIKey, Key: "sk-xxx"},
//	    Model:      "gpt-4o",
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// 同步完成
//	resp, err := client.Chat(ctx, request)
//
//	// 流式完成
//	stream, err := client.StreamChat(ctx, request)
//
// # 支持的服务
//
// 本包支持所有遵循 OpenAI Chat Completions API 格式的服务：
//
//   - OpenAI: https://api.openai.com
//   - OpenRouter: https://openrouter.ai/api/v1
//   - Azure OpenAI: https://{resource}.openai.azure.com/openai/deployments/{deployment}
//   - Ollama: http://localhost:11434/v1
//   - 其他兼容服务
//
// BaseURL 若已带 /v1 后缀则直接拼接 /chat/completions，否则自动补全。
//
// # 消息格式
//
// 使用 [llm.Message] 作为输入，自动转换为 OpenAI API 格式：
//
//   - system / developer: 系统提示词
//   - user: 用户消息（文本、图片、音频等多模态分片）
//   - assistant: 助手响应（可包含 tool_calls）
//   - tool: 工具执行结果（要求 CallID）
//
// # 错误处理
//
// API 错误会解析为 [llm.Error]，按 HTTP 状态码分类：401/403 认证、
// 429 限流（携带 Retry-After 提示）、400 校验或 token 超限、
// 404 模型不存在。
//
// # 线程安全
//
// [Client] 是线程安全的，可以并发调用 Chat 和 StreamChat 方法。
package openai
