package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

var ErrMissingToken = errors.New("auth: missing bearer token")

// Validator проверяет RS256 JWT и превращает claims в domain.IdentityClaims.
// Это внешний шаг пайплайна: дальше шлюз работает только с проверенными claims.
type Validator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

type ValidatorOptions struct {
	Issuer   string
	Audience string
}

func NewValidator(pubKey *rsa.PublicKey, opts ValidatorOptions) *Validator {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	return &Validator{publicKey: pubKey, parser: jwt.NewParser(parserOpts...)}
}

// VerifyToken принимает "Bearer <jwt>" или голый токен.
func (v *Validator) VerifyToken(tokenStr string) (domain.IdentityClaims, error) {
	tokenStr = strings.TrimSpace(BearerToken(tokenStr))
	if tokenStr == "" {
		return domain.IdentityClaims{}, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil || !token.Valid {
		return domain.IdentityClaims{}, fmt.Errorf("invalid token: %w", err)
	}

	return domain.ClaimsFromMap(claims), nil
}

// BearerToken вырезает префикс "Bearer " (регистр не важен).
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// ParseRSAPublicKey превращает []byte в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
