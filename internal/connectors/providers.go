package connectors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type ProviderConfig struct {
	Key              string
	BaseURL          string
	Auth             AuthModeConfig
	ServiceToken     string
	AllowedHosts     []string
	AllowHTTP        bool
	AllowPrivateIPs  bool
	Timeout          time.Duration
	MaxResponseBytes int64
	Headers          map[string]string
}

type ProviderRegistry struct {
	Providers       map[string]ProviderConfig
	DefaultProvider string
}

func NewRegistry(defaultProvider string, providers ...ProviderConfig) ProviderRegistry {
	reg := ProviderRegistry{
		Providers:       make(map[string]ProviderConfig, len(providers)),
		DefaultProvider: defaultProvider,
	}
	for _, p := range providers {
		reg.Providers[p.Key] = p
	}
	return reg
}

// ResolveProvider: пустой ключ означает провайдера по умолчанию.
func ResolveProvider(reg ProviderRegistry, key string) (ProviderConfig, error) {
	if key == "" {
		key = reg.DefaultProvider
	}
	if key == "" {
		return ProviderConfig{}, errors.New("No provider key specified and no default provider configured")
	}

	p, ok := reg.Providers[key]
	if !ok {
		keys := make([]string, 0, len(reg.Providers))
		for k := range reg.Providers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		available := strings.Join(keys, ", ")
		if available == "" {
			available = "(none)"
		}
		return ProviderConfig{}, fmt.Errorf("Provider %q not found. Available: %s", key, available)
	}
	return p, nil
}

// Request собирает ProxyRequestConfig для вызова инструмента через провайдера.
func (p ProviderConfig) Request(method, path string, body any, cred Credential) ProxyRequestConfig {
	return ProxyRequestConfig{
		BaseURL:          p.BaseURL,
		Path:             path,
		Method:           method,
		Headers:          p.Headers,
		Body:             body,
		Auth:             cred,
		Timeout:          p.Timeout,
		MaxResponseBytes: p.MaxResponseBytes,
		AllowedHosts:     p.AllowedHosts,
		AllowHTTP:        p.AllowHTTP,
		AllowPrivateIPs:  p.AllowPrivateIPs,
	}
}
