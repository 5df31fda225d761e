// Package llm 定义跨 Provider 的统一 chat 模型与路由器
//
// 本包给调用方一套规范化的请求/响应/事件/错误词汇，并通过可互换的
// vendor adapter 分发调用，vendor 特有的 JSON 形状不会泄漏进业务代码。
//
// # 架构
//
//   - pkg/llm: 规范类型模型、共享校验器、错误分类、重试策略、Client 路由器
//   - pkg/llm/core: 共享引擎（HTTP 传输、SSE 解码器、请求 Patch 引擎）
//   - pkg/llm/protocol/*: 各 vendor 的纯协议映射策略
//   - pkg/llm/provider/*: 实现 Provider 契约的 adapter 客户端与统一工厂
//
// # 快速开始
//
//	cfgs, err := llm.LoadConfigFile("models.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := provider.FromConfigs(cfgs, core.NewRestyTransport())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Chat(ctx, "fast", &llm.ChatRequest{
//	    Messages: []llm.Message{llm.NewUserMessage("Hello!")},
//	})
//
// # 流式响应
//
// StreamChat 返回惰性的 chunk 序列；放弃消费时取消 ctx 即可及时关闭
// 底层连接。用 [CollectStream] 聚合完整消息：
//
//	stream, err := client.StreamChat(ctx, "fast", request)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := llm.CollectStream(stream)
//
// # 错误处理
//
// 所有错误都是携带 [ErrorKind] 的 [*Error]。重试引擎只拦截瞬时类别
// （rate_limit、transport），其余类别首次出现即传播。
//
// # 并发
//
// Client 的 handle 映射构建后只读，可跨 goroutine 安全共享；
// 每个流式调用独占自己的解码缓冲，互不干扰。
package llm
