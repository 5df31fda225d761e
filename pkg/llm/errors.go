package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 错误类别
// ═══════════════════════════════════════════════════════════════════════════

// ErrorKind 错误类别
//
// 重试引擎只拦截 {KindRateLimit, KindTransport}，其余类别首次出现即向
// 调用方传播。
type ErrorKind string

const (
	// KindTransport 网络/IO 层失败
	KindTransport ErrorKind = "transport"

	// KindAuth 凭证被拒绝、缺失或不受支持
	KindAuth ErrorKind = "auth"

	// KindRateLimit 限流（可携带 retry-after 提示）
	KindRateLimit ErrorKind = "rate_limit"

	// KindValidation 请求违反类型模型不变式
	KindValidation ErrorKind = "validation"

	// KindUnsupportedFeature 当前 Adapter 未实现的特性
	KindUnsupportedFeature ErrorKind = "unsupported_feature"

	// KindProvider 不透明的 vendor 失败
	KindProvider ErrorKind = "provider"

	// KindTokenLimitExceeded 超出上下文窗口
	KindTokenLimitExceeded ErrorKind = "token_limit_exceeded"

	// KindModelNotFound 模型不存在
	KindModelNotFound ErrorKind = "model_not_found"

	// KindStreamClosed 流在终止信号之前结束或中断
	KindStreamClosed ErrorKind = "stream_closed"

	// KindInvalidConfig 配置期失败
	KindInvalidConfig ErrorKind = "invalid_config"

	// KindNotImplemented 占位：尚未实现
	KindNotImplemented ErrorKind = "not_implemented"

	// KindUnknown 占位：无法分类
	KindUnknown ErrorKind = "unknown"
)

// ═══════════════════════════════════════════════════════════════════════════
// 统一错误
// ═══════════════════════════════════════════════════════════════════════════

// Error 统一错误结构
//
// 所有引擎与 Adapter 产出的错误都是 *Error，通过 Kind 分类，
// 附加字段按类别填充。支持 errors.Is/As 与 Unwrap。
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	// Provider vendor 标识（KindProvider 等）
	Provider string

	// StatusCode HTTP 状态码（来自 vendor 响应时）
	StatusCode int

	// RetryAfter 限流时 Provider 建议的等待时间
	RetryAfter time.Duration

	// Feature 未支持/未实现的特性名
	Feature string

	// Field / Reason 配置错误的字段与原因
	Field  string
	Reason string

	// Model 未找到的模型标识
	Model string

	// Estimated / Limit token 超限时的估算值与上限
	Estimated int
	Limit     int

	// Raw 原始响应片段（调试用）
	Raw string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" [" + e.Provider + "]")
	}
	if e.Field != "" {
		b.WriteString(" (" + e.Field + ")")
	}
	b.WriteString(": " + e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ═══════════════════════════════════════════════════════════════════════════
// 构造函数
// ═══════════════════════════════════════════════════════════════════════════

// NewTransportError 创建网络/IO 错误
func NewTransportError(message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: err}
}

// NewAuthError 创建认证错误
func NewAuthError(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// NewRateLimitError 创建限流错误
//
// retryAfter 为 0 表示 Provider 未给出提示。
func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter}
}

// NewValidationError 创建请求校验错误
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewUnsupportedFeatureError 创建特性不支持错误
func NewUnsupportedFeatureError(feature string) *Error {
	return &Error{
		Kind:    KindUnsupportedFeature,
		Message: "feature unsupported: " + feature,
		Feature: feature,
	}
}

// NewProviderError 创建 vendor 业务错误
func NewProviderError(provider string, statusCode int, message string) *Error {
	return &Error{
		Kind:       KindProvider,
		Message:    message,
		Provider:   provider,
		StatusCode: statusCode,
	}
}

// WithRaw 附加原始响应片段
func (e *Error) WithRaw(raw string) *Error {
	e.Raw = raw
	return e
}

// WithRequestID 附加请求追踪 ID 到消息
func (e *Error) WithRequestID(requestID string) *Error {
	if requestID != "" {
		e.Message = fmt.Sprintf("%s (request_id: %s)", e.Message, requestID)
	}
	return e
}

// NewTokenLimitError 创建 token 超限错误
func NewTokenLimitError(message string, estimated, limit int) *Error {
	return &Error{
		Kind:      KindTokenLimitExceeded,
		Message:   message,
		Estimated: estimated,
		Limit:     limit,
	}
}

// NewModelNotFoundError 创建模型不存在错误
func NewModelNotFoundError(model, message string) *Error {
	return &Error{Kind: KindModelNotFound, Message: message, Model: model}
}

// NewStreamClosedError 创建流异常结束错误
func NewStreamClosedError(message string, err error) *Error {
	return &Error{Kind: KindStreamClosed, Message: message, Err: err}
}

// NewInvalidConfigError 创建配置错误
func NewInvalidConfigError(field, reason string) *Error {
	return &Error{
		Kind:    KindInvalidConfig,
		Message: fmt.Sprintf("invalid configuration for %s: %s", field, reason),
		Field:   field,
		Reason:  reason,
	}
}

// NewNotImplementedError 创建未实现错误
func NewNotImplementedError(feature string) *Error {
	return &Error{
		Kind:    KindNotImplemented,
		Message: "not implemented: " + feature,
		Feature: feature,
	}
}

// NewUnknownError 创建未分类错误
func NewUnknownError(message string, err error) *Error {
	return &Error{Kind: KindUnknown, Message: message, Err: err}
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误匹配函数（支持 errors.Is/As）
// ═══════════════════════════════════════════════════════════════════════════

// KindOf 提取错误类别，非 *Error 返回 KindUnknown
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind 检查错误是否属于指定类别
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsRateLimitError 检查是否为限流错误
func IsRateLimitError(err error) bool { return IsKind(err, KindRateLimit) }

// IsTransportError 检查是否为网络错误
func IsTransportError(err error) bool { return IsKind(err, KindTransport) }

// IsValidationError 检查是否为校验错误
func IsValidationError(err error) bool { return IsKind(err, KindValidation) }

// IsAuthError 检查是否为认证错误
func IsAuthError(err error) bool { return IsKind(err, KindAuth) }

// IsInvalidConfigError 检查是否为配置错误
func IsInvalidConfigError(err error) bool { return IsKind(err, KindInvalidConfig) }

// IsStreamClosedError 检查是否为流异常结束错误
func IsStreamClosedError(err error) bool { return IsKind(err, KindStreamClosed) }

// IsRetryableError 检查错误是否可重试
//
// 只有限流和网络层失败被视为瞬时错误。
func IsRetryableError(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransport:
		return true
	default:
		return false
	}
}

// RetryAfterHint 提取限流错误中的 retry-after 提示
func RetryAfterHint(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimit && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// AsError 提取 *Error（如果存在）
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ═══════════════════════════════════════════════════════════════════════════
// Vendor 错误分类辅助
// ═══════════════════════════════════════════════════════════════════════════

// RetryAfterFromHeaders 从响应头解析 Retry-After（秒数形式）
func RetryAfterFromHeaders(headers http.Header) time.Duration {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// tokenLimitCodes vendor 错误码中表示上下文超限的取值
var tokenLimitCodes = map[string]bool{
	"context_length_exceeded":     true,
	"max_context_length_exceeded": true,
	"prompt_tokens_exceeded":      true,
	"context_window_exceeded":     true,
}

// tokenLimitHints vendor 错误消息中表示上下文超限的片段
var tokenLimitHints = []string{
	"context length",
	"context window",
	"token limit",
	"maximum output tokens",
	"max output tokens",
	"prompt is too long",
}

// LooksLikeTokenLimitError 根据 vendor 错误码/消息判断是否为上下文超限
//
// 各 vendor 的 parseError 共用此启发式，保证同一逻辑错误映射到同一类别。
func LooksLikeTokenLimitError(code, message string) bool {
	if code != "" {
		lower := strings.ToLower(code)
		if tokenLimitCodes[lower] || strings.Contains(lower, "token") {
			return true
		}
	}
	lowerMessage := strings.ToLower(message)
	for _, hint := range tokenLimitHints {
		if strings.Contains(lowerMessage, hint) {
			return true
		}
	}
	return false
}

// ExtractModelIdentifier 从错误消息中提取被引号包裹的模型标识
//
// 支持反引号、双引号、单引号三种包裹方式，未找到返回空字符串。
func ExtractModelIdentifier(message string) string {
	for _, delim := range []string{"`", `"`, "'"} {
		start := strings.Index(message, delim)
		if start < 0 {
			continue
		}
		rest := message[start+len(delim):]
		end := strings.Index(rest, delim)
		if end < 0 {
			continue
		}
		if value := strings.TrimSpace(rest[:end]); value != "" {
			return value
		}
	}
	return ""
}
