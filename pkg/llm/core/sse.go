package core

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// SSE 事件映射器接口
// ═══════════════════════════════════════════════════════════════════════════

// EventMapper SSE 事件映射器接口
//
// 每个 Adapter 实现此接口，把 vendor 载荷转换为统一的 ChatEvent。
//
// 协议差异示例：
//   - OpenAI: 无显式事件类型，总是 "data:" 前缀，[DONE] 哨兵终止
//   - Anthropic: 有显式事件类型（event: 行），message_stop 事件终止
//   - Gemini: 无哨兵，最后一个 chunk 携带 finishReason 后流自然结束
type EventMapper interface {
	// MapEvent 处理单个完整的 SSE 事件
	//
	// 参数：
	//   - eventType: event: 行给出的事件类型（OpenAI 为空）
	//   - payload: 已解析的 data 载荷
	//
	// 返回：
	//   - events: 转换后的事件列表（一个载荷可能产生多个事件）
	//   - usage: 载荷携带的用量更新（通常为 nil）
	//   - terminal: 是否终止序列（Anthropic message_stop 等）
	MapEvent(eventType string, payload map[string]any) (events []*llm.ChatEvent, usage *llm.TokenUsage, terminal bool)

	// Sentinel 返回终止哨兵载荷（如 "[DONE]"），无哨兵协议返回空串
	Sentinel() string
}

// ═══════════════════════════════════════════════════════════════════════════
// SSE 流解码器
// ═══════════════════════════════════════════════════════════════════════════

// StreamDecoder SSE 流解码器
//
// 把原始字节流解码为有序的 ChatChunk 序列。网络投递可能把一个逻辑
// 事件拆成任意多次读取，解码器缓冲局部输入，只在找到完整事件边界
// （空行）时产出；逐字节喂入与一次性喂入产生完全相同的事件序列。
//
// 帧格式：空行分隔事件，data: 行为载荷（多行以换行拼接），
// event:/id:/retry: 行被接受，其中 event 类型转交映射器，其余忽略。
//
// 终止语义：
//   - 哨兵载荷（如 [DONE]）权威终止，之后的字节即使已缓冲也不再处理
//   - 载荷 JSON 解析失败是致命的：产出终止错误并关闭序列，不跳过
//   - 流在终止信号前结束产出 StreamClosed 终止错误
//
// 产出的序列惰性、有限、不可重放；新调用必须重开底层传输。
type StreamDecoder struct {
	body     io.ReadCloser
	mapper   EventMapper
	provider string
	endpoint string
}

// NewStreamDecoder 创建流解码器
//
// body 的所有权移交解码器，序列结束或 ctx 取消时关闭。
func NewStreamDecoder(body io.ReadCloser, mapper EventMapper, provider, endpoint string) *StreamDecoder {
	return &StreamDecoder{
		body:     body,
		mapper:   mapper,
		provider: provider,
		endpoint: endpoint,
	}
}

// Events 启动解码并返回 chunk 序列
//
// 解码在独立 goroutine 中进行；取消 ctx 会关闭底层连接并尽快退出，
// 不会泄漏 goroutine 或连接。channel 在终止 chunk 之后关闭。
func (d *StreamDecoder) Events(ctx context.Context) llm.ChatStream {
	out := make(chan *llm.ChatChunk, 10)
	go d.run(ctx, out)
	return out
}

func (d *StreamDecoder) run(ctx context.Context, out chan<- *llm.ChatChunk) {
	defer close(out)

	// ctx 取消时关闭 body，解除 scanner 的读阻塞
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			_ = d.body.Close()
		case <-finished:
		}
	}()
	defer func() { _ = d.body.Close() }()

	scanner := bufio.NewScanner(d.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		eventType string
		dataLines []string
		terminal  bool
	)

	for scanner.Scan() {
		line := scanner.Text()

		// 空行 = 事件边界，产出累积的载荷
		if line == "" {
			if len(dataLines) == 0 {
				eventType = ""
				continue
			}
			data := strings.Join(dataLines, "\n")
			dataLines = dataLines[:0]
			et := eventType
			eventType = ""

			done, ok := d.emit(ctx, out, et, data)
			if done {
				terminal = true
			}
			if done || !ok {
				return
			}
			continue
		}

		// 注释行
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			dataLines = append(dataLines, value)
		case "event":
			eventType = value
		case "id", "retry":
			// 接受但不参与分发
		}
	}

	// 读错误（含 ctx 取消导致的连接关闭）
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.send(ctx, out, errorChunk(llm.NewStreamClosedError("stream read failed", err), d.provider, d.endpoint))
		return
	}

	// EOF：先产出未以空行收尾的残余事件
	if len(dataLines) > 0 {
		data := strings.Join(dataLines, "\n")
		done, ok := d.emit(ctx, out, eventType, data)
		if done || !ok {
			return
		}
	}

	if !terminal {
		d.send(ctx, out, errorChunk(llm.NewStreamClosedError("stream ended before a terminal signal", nil), d.provider, d.endpoint))
	}
}

// emit 处理一个完整的 data 载荷
//
// 返回 (terminal, ok)：terminal 表示序列已终止，ok 为 false 表示
// 消费者已放弃（ctx 取消）。
func (d *StreamDecoder) emit(ctx context.Context, out chan<- *llm.ChatChunk, eventType, data string) (bool, bool) {
	// 哨兵权威终止
	if sentinel := d.mapper.Sentinel(); sentinel != "" && strings.TrimSpace(data) == sentinel {
		ok := d.send(ctx, out, &llm.ChatChunk{
			Events:     []*llm.ChatEvent{{Type: llm.EventTypeDone, FinishReason: llm.FinishReasonStop}},
			IsTerminal: true,
			Provider:   d.metadata(),
		})
		return true, ok
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		// 致命：跳过损坏的载荷会掩盖内容丢失
		parseErr := llm.NewProviderError(d.provider, 0, "failed to parse stream chunk").WithRaw(data)
		parseErr.Err = err
		return true, d.send(ctx, out, errorChunk(parseErr, d.provider, d.endpoint))
	}

	events, usage, terminal := d.mapper.MapEvent(eventType, payload)
	if len(events) == 0 && usage == nil && !terminal {
		return false, true
	}

	chunk := &llm.ChatChunk{
		Events:     events,
		Usage:      usage,
		IsTerminal: terminal,
		Provider:   d.metadata(),
	}
	if terminal && !hasTerminalEvent(events) {
		chunk.Events = append(chunk.Events, &llm.ChatEvent{Type: llm.EventTypeDone})
	}
	return terminal, d.send(ctx, out, chunk)
}

// send 投递 chunk，消费者放弃（ctx 取消）时返回 false
func (d *StreamDecoder) send(ctx context.Context, out chan<- *llm.ChatChunk, chunk *llm.ChatChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *StreamDecoder) metadata() llm.ProviderMetadata {
	return llm.ProviderMetadata{Provider: d.provider, Endpoint: d.endpoint}
}

// splitField 拆分 "field: value" 行，value 前至多去掉一个空格
func splitField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	value = strings.TrimPrefix(value, " ")
	return field, value
}

// errorChunk 构造终止错误 chunk
func errorChunk(err *llm.Error, provider, endpoint string) *llm.ChatChunk {
	return &llm.ChatChunk{
		Events: []*llm.ChatEvent{{
			Type:         llm.EventTypeError,
			Err:          err,
			ErrorMessage: err.Error(),
		}},
		IsTerminal: true,
		Provider:   llm.ProviderMetadata{Provider: provider, Endpoint: endpoint},
	}
}

// hasTerminalEvent 检查事件列表是否已含终止事件
func hasTerminalEvent(events []*llm.ChatEvent) bool {
	for _, event := range events {
		if event.Type == llm.EventTypeDone || event.Type == llm.EventTypeError {
			return true
		}
	}
	return false
}
