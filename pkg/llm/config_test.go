package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
models:
  - handle: fast
    provider: openai_chat
    credential:
      type: api_key
      key: "${TEST_LLM_KEY}"
    default_model: gpt-4o-mini
  - handle: smart
    provider: anthropic_messages
    credential:
      type: api_key
      key: sk-ant-fixed
    default_model: claude-sonnet-4-5
    base_url: https://proxy.internal
    extra:
      version: "2023-06-01"
    patch:
      headers:
        X-Tenant: "team-a"
      remove_fields:
        - metadata
`

// ═══════════════════════════════════════════════════════════════════════════
// YAML 加载测试
// ═══════════════════════════════════════════════════════════════════════════

func TestLoadConfigFromBytes(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-expanded")

	configs, err := LoadConfigFromBytes([]byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, configs, 2)

	fast := configs[0]
	assert.Equal(t, "fast", fast.Handle)
	assert.Equal(t, ProviderKindOpenAIChat, fast.Provider)
	assert.Equal(t, CredentialAPIKey, fast.Credential.Type)
	assert.Equal(t, "sk-expanded", fast.Credential.Key, "${VAR} expands from the environment")
	assert.Equal(t, "gpt-4o-mini", fast.DefaultModel)

	smart := configs[1]
	assert.Equal(t, ProviderKindAnthropicMessages, smart.Provider)
	assert.Equal(t, "https://proxy.internal", smart.BaseURL)
	assert.Equal(t, "2023-06-01", smart.Extra["version"])
	require.NotNil(t, smart.Patch)
	require.NotNil(t, smart.Patch.Headers["X-Tenant"])
	assert.Equal(t, "team-a", *smart.Patch.Headers["X-Tenant"])
	assert.Equal(t, []string{"metadata"}, smart.Patch.RemoveFields)
}

func TestLoadConfigFromBytes_WithoutExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-expanded")

	configs, err := LoadConfigFromBytes([]byte(sampleConfig), WithoutEnvExpansion())
	require.NoError(t, err)
	assert.Equal(t, "${TEST_LLM_KEY}", configs[0].Credential.Key)
}

func TestLoadConfigFromBytes_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no models", "models: []"},
		{"missing handle", "models:\n  - provider: openai_chat"},
		{"missing provider", "models:\n  - handle: x"},
		{"bad yaml", "models: ["},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfigFromBytes([]byte(tc.yaml))
			require.Error(t, err)
			assert.True(t, IsInvalidConfigError(err))
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-file")

	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	configs, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Len(t, configs, 2)
	assert.Equal(t, "sk-file", configs[0].Credential.Key)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfigError(err))
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DOTENV_LLM_KEY=sk-dotenv\n"), 0o600))

	yaml := `
models:
  - handle: fast
    provider: openai_chat
    credential:
      type: api_key
      key: "${DOTENV_LLM_KEY}"
`
	configs, err := LoadConfigFromBytes([]byte(yaml), WithDotEnv(envPath))
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", configs[0].Credential.Key)
}
