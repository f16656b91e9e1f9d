package engine

import (
	"github.com/xela07ax/spaceai-governance-gateway/internal/audit"
	"github.com/xela07ax/spaceai-governance-gateway/internal/connectors"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"github.com/xela07ax/spaceai-governance-gateway/internal/limits"
	"github.com/xela07ax/spaceai-governance-gateway/internal/risk"
	"github.com/xela07ax/spaceai-governance-gateway/internal/safety"
)

// Переходники от секций viper-конфига к настройкам компонентов.

// LimitsEngineConfig - выключенная секция не создает компонент.
func LimitsEngineConfig(c infra.LimitsConfig) limits.EngineConfig {
	var out limits.EngineConfig
	if c.RateLimit.Enabled {
		out.RateLimit = &limits.RateLimitConfig{
			Window:      c.RateLimit.Window,
			MaxRequests: c.RateLimit.MaxRequests,
		}
	}
	if c.Budget.Enabled {
		b := &limits.BudgetConfig{MaxSpend: c.Budget.MaxSpend, Period: c.Budget.Period}
		if len(c.Budget.ModelLimits) > 0 {
			b.ModelLimits = make(map[string]float64, len(c.Budget.ModelLimits))
			for _, ml := range c.Budget.ModelLimits {
				b.ModelLimits[ml.Model] = ml.MaxSpend
			}
		}
		out.Budget = b
	}
	if c.AgentGuard.Enabled {
		out.AgentGuard = &limits.AgentGuardConfig{
			MaxToolCalls:    c.AgentGuard.MaxToolCalls,
			MaxWorkflowCost: c.AgentGuard.MaxWorkflowCost,
			MaxDuration:     c.AgentGuard.MaxDuration,
		}
	}
	return out
}

func ProviderRegistry(c infra.EgressConfig) connectors.ProviderRegistry {
	providers := make([]connectors.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		mode := connectors.AuthMode(p.AuthMode)
		if mode == "" {
			mode = connectors.AuthNone
		}
		providers = append(providers, connectors.ProviderConfig{
			Key:     p.Key,
			BaseURL: p.BaseURL,
			Auth: connectors.AuthModeConfig{
				Mode:         mode,
				APIKeyHeader: p.APIKeyHeader,
				APIKeyValue:  p.APIKeyValue,
			},
			ServiceToken:     p.ServiceToken,
			AllowedHosts:     p.AllowedHosts,
			AllowHTTP:        p.AllowHTTP,
			AllowPrivateIPs:  p.AllowPrivateIPs,
			Timeout:          p.Timeout,
			MaxResponseBytes: int64(p.MaxResponseBytes),
			Headers:          p.Headers,
		})
	}
	return connectors.NewRegistry(c.DefaultProvider, providers...)
}

func ProviderLimits(c infra.EgressConfig) map[string]ProviderLimit {
	out := make(map[string]ProviderLimit, len(c.Providers))
	for _, p := range c.Providers {
		if p.RateLimitRPS > 0 {
			out[p.Key] = ProviderLimit{RPS: p.RateLimitRPS, Burst: p.Burst}
		}
	}
	return out
}

func ReliabilityConfig(c infra.EngineConfig) ReliabilitySettings {
	return ReliabilitySettings{
		MaxRequests:      c.CBMaxRequests,
		Interval:         c.CBInterval,
		Timeout:          c.CBTimeout,
		FailureThreshold: c.CBFailureThreshold,
	}
}

func AuditConfig(c infra.EngineConfig) audit.Config {
	return audit.Config{
		BufferSize:    c.AuditBufferSize,
		BatchSize:     c.AuditBatchSize,
		FlushInterval: c.AuditFlushInterval,
	}
}

func TransformConfig(c infra.ContentConfig) safety.TransformConfig {
	cfg := safety.DefaultTransformConfig()
	cfg.Redaction = safety.RedactionConfig{
		Mode:        safety.RedactionMode(c.RedactionMode),
		MaskChar:    c.MaskChar,
		KeepChars:   c.KeepChars,
		Placeholder: c.Placeholder,
	}
	for _, t := range c.RedactTypes {
		cfg.Redaction.Types = append(cfg.Redaction.Types, safety.PIIType(t))
	}
	return cfg
}

func RiskConfig(c infra.ContentConfig) risk.Config {
	return risk.Config{BlockThreshold: c.BlockThreshold, AutoKill: c.AutoKill}
}
