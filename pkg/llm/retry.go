package llm

import (
	"context"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 重试策略
// ═══════════════════════════════════════════════════════════════════════════

// RetryConfig 重试配置
type RetryConfig struct {
	// MaxAttempts 总尝试次数（含首次），默认 3
	MaxAttempts int

	// BaseDelay 首次重试前的等待时间，默认 500ms
	BaseDelay time.Duration

	// MaxDelay 指数退避的上限，默认 10s
	MaxDelay time.Duration
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// withDefaults 填充零值字段
func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	return c
}

// delayFor 计算第 attempt 次失败后的等待时间（attempt 从 1 开始）
//
// 优先使用错误携带的 retry-after 提示，否则按 BaseDelay·2^(attempt-1)
// 指数增长并以 MaxDelay 封顶。
func (c RetryConfig) delayFor(attempt int, err error) time.Duration {
	if hint, ok := RetryAfterHint(err); ok {
		return hint
	}
	delay := c.BaseDelay << (attempt - 1)
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay
}

// Retry 以分类驱动的指数退避包装一次调用
//
// 只有瞬时错误（限流、网络层失败）触发重试，其余类别首次出现即返回。
// 耗尽 MaxAttempts 后返回最后一次的错误。ctx 到期会立即中止等待中的
// 重试，不会继续退避循环。
//
// 重试只覆盖调用建立阶段（包括打开流）；流开始交付事件之后的失败以
// 终止错误呈现，绝不静默重发。
func Retry[T any](ctx context.Context, config RetryConfig, op func(context.Context) (T, error)) (T, error) {
	config = config.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, NewTransportError("call aborted", err)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) || attempt == config.MaxAttempts {
			return zero, err
		}

		if err := sleepContext(ctx, config.delayFor(attempt, err)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// sleepContext 可取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return NewTransportError("retry wait aborted", ctx.Err())
	}
}
