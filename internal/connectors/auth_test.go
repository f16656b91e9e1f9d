package connectors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAuth(t *testing.T) {
	ac := AuthContext{BearerToken: "in-tok", ServiceToken: "svc-tok", UserToken: "usr-tok"}

	tests := []struct {
		name string
		cfg  AuthModeConfig
		ac   AuthContext
		want Credential
		err  string
	}{
		{"api key", AuthModeConfig{Mode: AuthAPIKey, APIKeyHeader: " X-Api-Key ", APIKeyValue: " secret "}, ac,
			Credential{Kind: CredentialAPIKey, HeaderName: "X-Api-Key", Value: "secret"}, ""},
		{"api key blank value", AuthModeConfig{Mode: AuthAPIKey, APIKeyHeader: "X-Api-Key", APIKeyValue: "   "}, ac,
			Credential{}, "API key auth configured but apiKeyHeader/apiKeyValue missing"},
		{"forward bearer", AuthModeConfig{Mode: AuthForwardBearer}, ac, Credential{Kind: CredentialBearer, Token: "in-tok"}, ""},
		{"forward bearer missing", AuthModeConfig{Mode: AuthForwardBearer}, AuthContext{},
			Credential{}, "forward_bearer mode requires a Bearer token on the incoming request"},
		{"service oauth", AuthModeConfig{Mode: AuthServiceOAuth}, ac, Credential{Kind: CredentialBearer, Token: "svc-tok"}, ""},
		{"service oauth missing", AuthModeConfig{Mode: AuthServiceOAuth}, AuthContext{},
			Credential{}, "service_oauth mode requires a pre-loaded service token"},
		{"user oauth", AuthModeConfig{Mode: AuthUserOAuth}, ac, Credential{Kind: CredentialBearer, Token: "usr-tok"}, ""},
		{"user oauth missing", AuthModeConfig{Mode: AuthUserOAuth}, AuthContext{},
			Credential{}, "user_oauth mode requires a pre-loaded user token"},
		{"none", AuthModeConfig{Mode: AuthNone}, AuthContext{}, Credential{Kind: CredentialNone}, ""},
		{"unknown", AuthModeConfig{Mode: "magic"}, ac, Credential{}, "Unknown auth mode: magic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAuth(tt.cfg, tt.ac)
			if tt.err != "" {
				require.EqualError(t, err, tt.err)
				var cfgErr *AuthConfigError
				assert.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveProvider(t *testing.T) {
	reg := NewRegistry("crm",
		ProviderConfig{Key: "crm", BaseURL: "https://crm.example.com"},
		ProviderConfig{Key: "billing", BaseURL: "https://billing.example.com"},
	)

	p, err := ResolveProvider(reg, "")
	require.NoError(t, err)
	assert.Equal(t, "crm", p.Key)

	p, err = ResolveProvider(reg, "billing")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com", p.BaseURL)

	_, err = ResolveProvider(reg, "erp")
	assert.EqualError(t, err, `Provider "erp" not found. Available: billing, crm`)

	_, err = ResolveProvider(ProviderRegistry{}, "")
	assert.EqualError(t, err, "No provider key specified and no default provider configured")

	_, err = ResolveProvider(ProviderRegistry{}, "x")
	assert.EqualError(t, err, `Provider "x" not found. Available: (none)`)
}
