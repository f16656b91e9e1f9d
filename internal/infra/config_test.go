package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 8081
limits:
  rate_limit:
    window: 30s
    max_requests: 5
  budget:
    enabled: true
    max_spend: 100
    model_limits:
      - model: gpt-4.1
        max_spend: 10
egress:
  default_provider: crm
  providers:
    - key: crm
      base_url: https://crm.example.com/api
      auth_mode: api_key
      api_key_header: X-Api-Key
      api_key_value: secret
      allowed_hosts: [crm.example.com]
      timeout: 5s
tools:
  - name: crm.lookup
    provider: crm
    method: GET
    path: /contacts
    required_permissions: [crm:read]
    input_schema:
      type: object
      required: [email]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Limits.RateLimit.Window)
	assert.True(t, cfg.Limits.RateLimit.Enabled, "default")
	assert.Equal(t, 24*time.Hour, cfg.Limits.Budget.Period, "default")
	assert.Equal(t, []ModelLimit{{Model: "gpt-4.1", MaxSpend: 10}}, cfg.Limits.Budget.ModelLimits)
	assert.Equal(t, "mask", cfg.Content.RedactionMode)
	assert.Equal(t, "tenant_id", cfg.Auth.TenantClaim)

	require.Len(t, cfg.Egress.Providers, 1)
	assert.Equal(t, 5*time.Second, cfg.Egress.Providers[0].Timeout)

	tool, ok := cfg.Tool("crm.lookup")
	require.True(t, ok)
	assert.Equal(t, []string{"crm:read"}, tool.RequiredPermissions)
	assert.Equal(t, "object", tool.InputSchema["type"])
}

func TestLoadConfigFile_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	cfg, err := LoadConfigFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  string
	}{
		{"unknown provider", Config{Tools: []ToolConfig{{Name: "t", Provider: "nope"}}}, `unknown provider "nope"`},
		{"duplicate tool", Config{Tools: []ToolConfig{{Name: "t"}, {Name: "t"}}}, `duplicate tool "t"`},
		{"missing default", Config{Egress: EgressConfig{DefaultProvider: "x"}}, `default provider "x"`},
		{"bad policy source", Config{Policy: PolicyConfig{Source: "s3"}}, `unknown policy source`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.cfg.Validate(), tt.err)
		})
	}
	assert.NoError(t, (&Config{}).Validate())
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Format: "xml"})
	assert.Error(t, err)
}
