// Package core 提供各 vendor adapter 共用的引擎层
//
// 本包实现了与具体协议无关的通用机制，包括：
//   - [BaseClient]: 请求编排骨架（校验 → 构建 → Patch → 发送 → 解析）
//   - [Strategy]: 协议策略接口，vendor 差异的唯一扩展点
//   - [StreamDecoder]: SSE 流解码器，字节流 → ChatChunk 序列
//   - [EventMapper]: 流事件映射器接口
//   - [CompiledPatch]: 请求 Patch 引擎（URL 替换、深度合并、字段删除）
//   - [Transport]: HTTP 传输抽象与 resty 实现
//
// # 架构设计
//
// 模板方法模式：BaseClient 定义请求流程骨架，协议差异委托给
// Strategy 接口。vendor adapter 只需实现 BuildBody / ParseResponse /
// ParseError / EventMapper / Endpoint / Headers 六个方法。
//
// # 流解码
//
// [StreamDecoder] 把底层传输的字节流切分为完整的 SSE 事件，再交给
// adapter 的 [EventMapper] 转换为统一事件。切分对任意的网络分片
// 不敏感：逐字节投递与整体投递产生相同的事件序列。
//
// # 请求 Patch
//
// [CompilePatch] 在 adapter 构造期编译 Patch 并校验删除路径，
// [CompiledPatch.Apply] 在每次请求时按固定顺序应用：URL 替换、
// Body 深度合并、Header 设置/删除、字段删除。
package core
