package connectors

import (
	"fmt"
	"strings"
)

type AuthMode string

const (
	AuthAPIKey        AuthMode = "api_key"
	AuthForwardBearer AuthMode = "forward_bearer"
	AuthServiceOAuth  AuthMode = "service_oauth"
	AuthUserOAuth     AuthMode = "user_oauth"
	AuthNone          AuthMode = "none"
)

type AuthModeConfig struct {
	Mode         AuthMode
	APIKeyHeader string
	APIKeyValue  string
}

// AuthContext - токены, доступные на момент запроса.
// service/user токены загружает вызывающая сторона.
type AuthContext struct {
	BearerToken  string
	ServiceToken string
	UserToken    string
}

type CredentialKind string

const (
	CredentialAPIKey CredentialKind = "api_key"
	CredentialBearer CredentialKind = "bearer"
	CredentialNone   CredentialKind = "none"
)

// Credential - готовые к подстановке учетные данные.
type Credential struct {
	Kind       CredentialKind
	HeaderName string
	Value      string
	Token      string
}

// ResolveAuth - чистая функция без I/O.
func ResolveAuth(cfg AuthModeConfig, ac AuthContext) (Credential, error) {
	switch cfg.Mode {
	case AuthAPIKey:
		header := strings.TrimSpace(cfg.APIKeyHeader)
		value := strings.TrimSpace(cfg.APIKeyValue)
		if header == "" || value == "" {
			return Credential{}, authError(cfg.Mode, "API key auth configured but apiKeyHeader/apiKeyValue missing")
		}
		return Credential{Kind: CredentialAPIKey, HeaderName: header, Value: value}, nil

	case AuthForwardBearer:
		if ac.BearerToken == "" {
			return Credential{}, authError(cfg.Mode, "forward_bearer mode requires a Bearer token on the incoming request")
		}
		return Credential{Kind: CredentialBearer, Token: ac.BearerToken}, nil

	case AuthServiceOAuth:
		if ac.ServiceToken == "" {
			return Credential{}, authError(cfg.Mode, "service_oauth mode requires a pre-loaded service token")
		}
		return Credential{Kind: CredentialBearer, Token: ac.ServiceToken}, nil

	case AuthUserOAuth:
		if ac.UserToken == "" {
			return Credential{}, authError(cfg.Mode, "user_oauth mode requires a pre-loaded user token")
		}
		return Credential{Kind: CredentialBearer, Token: ac.UserToken}, nil

	case AuthNone:
		return Credential{Kind: CredentialNone}, nil
	}

	return Credential{}, authError(cfg.Mode, fmt.Sprintf("Unknown auth mode: %s", cfg.Mode))
}

func authError(mode AuthMode, msg string) error {
	return &AuthConfigError{Mode: mode, Msg: msg}
}
