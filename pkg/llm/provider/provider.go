// Package provider 提供配置驱动的 Provider 工厂
//
// 将一组 [llm.ModelConfig] 按序实例化为各 Adapter 的 Client，
// 并注册到 [llm.Client] 路由器。单条配置的错误会中止整个构建，
// 错误信息携带出错条目的 handle。
//
// 使用示例：
//
//	cfgs, _ := llm.LoadConfigFile("models.yaml")
//	client, err := provider.FromConfigs(cfgs, nil)
//	resp, err := client.Chat(ctx, "fast", request)
package provider

import (
	"fmt"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
	"github.com/KitsuneX07/kotoba/pkg/llm/provider/anthropic"
	"github.com/KitsuneX07/kotoba/pkg/llm/provider/gemini"
	"github.com/KitsuneX07/kotoba/pkg/llm/provider/localmock"
	"github.com/KitsuneX07/kotoba/pkg/llm/provider/openai"
	"github.com/KitsuneX07/kotoba/pkg/llm/provider/openairesponses"
)

// FromConfigs 按配置构建 Client 路由器
//
// transport 为 nil 时使用默认的 Resty 传输层，所有 Provider 共享
// 同一个传输实例。注册顺序与配置顺序一致，重复 handle 由
// Build 拒绝。
func FromConfigs(cfgs []llm.ModelConfig, transport core.Transport) (*llm.Client, error) {
	if transport == nil {
		transport = core.NewRestyTransport()
	}

	builder := llm.NewBuilder()
	for i := range cfgs {
		cfg := &cfgs[i]
		instance, err := New(cfg, transport)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Handle, err)
		}
		builder.Register(cfg.Handle, instance)
	}
	return builder.Build()
}

// New 按单条配置实例化 Provider
//
// 未知的 Provider 种类返回 InvalidConfig 错误。
func New(cfg *llm.ModelConfig, transport core.Transport) (llm.Provider, error) {
	if cfg == nil {
		return nil, llm.NewInvalidConfigError("provider", "model config is nil")
	}
	if transport == nil {
		transport = core.NewRestyTransport()
	}

	switch cfg.Provider {
	case llm.ProviderKindOpenAIChat:
		return openai.New(&openai.Config{
			Credential:   cfg.Credential,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.DefaultModel,
			Organization: core.GetString(cfg.Extra["organization"]),
			Project:      core.GetString(cfg.Extra["project"]),
			Patch:        cfg.Patch,
		}, transport)

	case llm.ProviderKindOpenAIResponses:
		return openairesponses.New(&openairesponses.Config{
			Credential:   cfg.Credential,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.DefaultModel,
			Organization: core.GetString(cfg.Extra["organization"]),
			Project:      core.GetString(cfg.Extra["project"]),
			Patch:        cfg.Patch,
		}, transport)

	case llm.ProviderKindAnthropicMessages:
		return anthropic.New(&anthropic.Config{
			Credential: cfg.Credential,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.DefaultModel,
			Version:    core.GetString(cfg.Extra["version"]),
			Beta:       core.GetString(cfg.Extra["beta"]),
			Patch:      cfg.Patch,
		}, transport)

	case llm.ProviderKindGoogleGemini:
		return gemini.New(&gemini.Config{
			Credential: cfg.Credential,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.DefaultModel,
			Patch:      cfg.Patch,
		}, transport)

	case llm.ProviderKindLocalMock:
		var opts []localmock.Option
		if text := core.GetString(cfg.Extra["response"]); text != "" {
			opts = append(opts, localmock.WithResponse(text))
		}
		return localmock.NewFromCredential(cfg.Credential, opts...)

	default:
		return nil, llm.NewInvalidConfigError("provider",
			fmt.Sprintf("unknown provider kind %q", cfg.Provider))
	}
}

// LocalMock 构建只含一个 Mock Provider 的路由器（测试和演示用）
func LocalMock(handle string, opts ...localmock.Option) (*llm.Client, error) {
	return llm.NewBuilder().Register(handle, localmock.New(opts...)).Build()
}
