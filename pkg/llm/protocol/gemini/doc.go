// Package gemini 实现 Google Gemini API 的协议适配器
//
// Gemini API 使用独特的 Content/Parts 格式，与 OpenAI 和 Anthropic 都不同。
//
// # 协议特点
//
//   - 内容格式：Content{Role, Parts[]} 结构
//   - 角色映射：user→user, assistant→model, tool→user(functionResponse)
//   - 系统消息：使用独立的 system_instruction 字段
//   - 工具格式：functionDeclarations 数组
//   - 模型定位：编码在请求路径中，不出现在请求体里
//   - 流式传输：:streamGenerateContent?alt=sse，无结束哨兵，
//     终止由 candidate 的 finishReason 判定
//
// # 请求格式示例
//
//	{
//	  "system_instruction": {"role": "system", "parts": [{"text": "..."}]},
//	  "contents": [
//	    {"role": "user", "parts": [{"text": "..."}]},
//	    {"role": "model", "parts": [{"text": "..."}]}
//	  ],
//	  "tools": [{"functionDeclarations": [...]}],
//	  "generationConfig": {...}
//	}
//
// # Thinking 支持
//
// 通过 generationConfig.thinkingConfig 启用：
//
//	{
//	  "thinkingConfig": {
//	    "thinkingBudget": 32768
//	  }
//	}
//
// 响应流中 thought 为 true 的文本分片会映射为推理增量事件。
package gemini
