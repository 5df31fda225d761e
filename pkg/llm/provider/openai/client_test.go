package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/KitsuneX07/kotoba/pkg/llm"
	"github.com/KitsuneX07/kotoba/pkg/llm/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport 记录请求并返回预设响应
type recordingTransport struct {
	status int
	body   []byte

	lastRequest *core.Request
}

func (t *recordingTransport) Send(ctx context.Context, request *core.Request) (*core.Response, error) {
	t.lastRequest = request
	return &core.Response{Status: t.status, Headers: http.Header{}, Body: t.body}, nil
}

func (t *recordingTransport) SendStream(ctx context.Context, request *core.Request) (*core.StreamResponse, error) {
	t.lastRequest = request
	return &core.StreamResponse{
		Status:  t.status,
		Headers: http.Header{},
		Body:    io.NopCloser(strings.NewReader(string(t.body))),
	}, nil
}

func apiKeyConfig() *Config {
	return &Config{
		Credential: llm.Credential{Type: llm.CredentialAPIKey, Key: "sk-test"},
		Model:      "gpt-4o",
	}
}

func chatRequest() *llm.ChatRequest {
	return &llm.ChatRequest{Messages: []llm.Message{llm.NewUserMessage("hi")}}
}

const successBody = `{"choices": [{"message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]}`

// ═══════════════════════════════════════════════════════════════════════════
// New / 凭证测试
// ═══════════════════════════════════════════════════════════════════════════

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil, &recordingTransport{})
	require.Error(t, err)
	assert.True(t, llm.IsInvalidConfigError(err))
}

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New(&Config{Credential: llm.Credential{Type: llm.CredentialAPIKey}}, &recordingTransport{})
	require.Error(t, err)
	assert.True(t, llm.IsAuthError(err))
}

func TestNew_UnsupportedCredential(t *testing.T) {
	_, err := New(&Config{Credential: llm.Credential{Type: llm.CredentialServiceAccount}}, &recordingTransport{})
	require.Error(t, err)
	assert.True(t, llm.IsAuthError(err), "credential rejection happens at construction, not first call")
}

func TestChat_AuthorizationHeader(t *testing.T) {
	transport := &recordingTransport{status: 200, body: []byte(successBody)}
	client, err := New(apiKeyConfig(), transport)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), chatRequest())
	require.NoError(t, err)

	require.NotNil(t, transport.lastRequest)
	assert.Equal(t, "Bearer sk-test", transport.lastRequest.Headers["Authorization"])
}

func TestChat_CustomCredentialHeader(t *testing.T) {
	config := apiKeyConfig()
	config.Credential.Header = "Api-Key"
	transport := &recordingTransport{status: 200, body: []byte(successBody)}

	client, err := New(config, transport)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.Equal(t, "sk-test", transport.lastRequest.Headers["Api-Key"])
	assert.NotContains(t, transport.lastRequest.Headers, "Authorization")
}

func TestChat_OrganizationAndProjectHeaders(t *testing.T) {
	config := apiKeyConfig()
	config.Organization = "org-1"
	config.Project = "proj-1"
	transport := &recordingTransport{status: 200, body: []byte(successBody)}

	client, err := New(config, transport)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.Equal(t, "org-1", transport.lastRequest.Headers["OpenAI-Organization"])
	assert.Equal(t, "proj-1", transport.lastRequest.Headers["OpenAI-Project"])
}

// ═══════════════════════════════════════════════════════════════════════════
// 端点与模型解析测试
// ═══════════════════════════════════════════════════════════════════════════

func TestChat_DefaultEndpoint(t *testing.T) {
	transport := &recordingTransport{status: 200, body: []byte(successBody)}
	client, err := New(apiKeyConfig(), transport)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", transport.lastRequest.URL)
}

func TestChat_BaseURLWithV1(t *testing.T) {
	cases := []struct {
		baseURL  string
		expected string
	}{
		{"https://openrouter.ai/api/v1", "https://openrouter.ai/api/v1/chat/completions"},
		{"http://localhost:11434/v1/", "http://localhost:11434/v1/chat/completions"},
		{"https://gateway.example.com", "https://gateway.example.com/v1/chat/completions"},
	}

	for _, tc := range cases {
		config := apiKeyConfig()
		config.BaseURL = tc.baseURL
		transport := &recordingTransport{status: 200, body: []byte(successBody)}

		client, err := New(config, transport)
		require.NoError(t, err)

		_, err = client.Chat(context.Background(), chatRequest())
		require.NoError(t, err)
		assert.Equal(t, tc.expected, transport.lastRequest.URL, "base_url %s", tc.baseURL)
	}
}

func TestChat_RequestModelOverridesDefault(t *testing.T) {
	transport := &recordingTransport{status: 200, body: []byte(successBody)}
	client, err := New(apiKeyConfig(), transport)
	require.NoError(t, err)

	request := chatRequest()
	request.Options.Model = "gpt-4o-mini"

	_, err = client.Chat(context.Background(), request)
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(transport.lastRequest.Body, &sent))
	assert.Equal(t, "gpt-4o-mini", sent["model"])
}

func TestStreamChat_IncludesUsageOption(t *testing.T) {
	streamBody := "data: {\"choices\": [{\"delta\": {\"content\": \"hi\"}}]}\n\ndata: [DONE]\n\n"
	transport := &recordingTransport{status: 200, body: []byte(streamBody)}
	client, err := New(apiKeyConfig(), transport)
	require.NoError(t, err)

	stream, err := client.StreamChat(context.Background(), chatRequest())
	require.NoError(t, err)
	for range stream {
	}

	var sent map[string]any
	require.NoError(t, json.Unmarshal(transport.lastRequest.Body, &sent))
	assert.Equal(t, true, sent["stream"])
	streamOptions := sent["stream_options"].(map[string]any)
	assert.Equal(t, true, streamOptions["include_usage"])
}

func TestClient_NameAndCapabilities(t *testing.T) {
	client, err := New(apiKeyConfig(), &recordingTransport{})
	require.NoError(t, err)

	assert.Equal(t, "openai_chat", client.Name())
	assert.True(t, client.Capabilities().SupportsStream)
	assert.True(t, client.Capabilities().SupportsStructuredOutput)
	assert.False(t, client.Capabilities().SupportsVideoInput)
}
