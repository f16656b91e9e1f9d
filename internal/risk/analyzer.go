package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-governance-gateway/internal/safety"
	"go.uber.org/zap"
)

// KillSwitchProvider описывает возможности, необходимые анализатору.
// Реализовывать этот интерфейс будет KillSwitchManager из пакета engine.
type KillSwitchProvider interface {
	MarkAsBlocked(ctx context.Context, agentID string) error
}

type Config struct {
	// BlockThreshold: 0 = не блокировать по скору
	BlockThreshold int
	// AutoKill включает kill switch агента при safety-риске
	AutoKill bool
}

type Verdict struct {
	Block     bool   `json:"block"`
	Reason    string `json:"reason,omitempty"`
	RiskScore int    `json:"risk_score"`
	Killed    bool   `json:"killed,omitempty"`
}

type Analyzer struct {
	cfg    Config
	ksm    KillSwitchProvider
	logger *zap.Logger
}

func NewAnalyzer(cfg Config, ksm KillSwitchProvider, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, ksm: ksm, logger: logger.Named("analyzer")}
}

// Assess превращает классификацию контента в вердикт.
// Safety-риск при AutoKill блокирует запрос независимо от порога.
func (a *Analyzer) Assess(ctx context.Context, agentID string, c safety.ClassificationResult) Verdict {
	v := Verdict{RiskScore: c.RiskScore}

	if a.cfg.AutoKill && c.HasSafetyRisk && agentID != "" && a.ksm != nil {
		if err := a.ksm.MarkAsBlocked(ctx, agentID); err != nil {
			a.logger.Error("auto kill failed", zap.String("agent_id", agentID), zap.Error(err))
		} else {
			v.Killed = true
			a.logger.Warn("AGENT AUTO-KILLED",
				zap.String("agent_id", agentID),
				zap.Strings("labels", c.LabelNames()),
			)
		}
		v.Block = true
		v.Reason = fmt.Sprintf("Safety risk detected: %s", strings.Join(safetyLabels(c), ", "))
		return v
	}

	if a.cfg.BlockThreshold > 0 && c.RiskScore >= a.cfg.BlockThreshold {
		v.Block = true
		v.Reason = fmt.Sprintf("Content risk score %d >= threshold %d", c.RiskScore, a.cfg.BlockThreshold)
		a.logger.Info("content blocked",
			zap.String("agent_id", agentID),
			zap.Int("risk_score", c.RiskScore),
		)
	}
	return v
}

func safetyLabels(c safety.ClassificationResult) []string {
	var out []string
	for _, l := range c.Labels {
		switch l.Category {
		case safety.CategoryPromptInjection, safety.CategoryJailbreak, safety.CategoryCodeInjection:
			out = append(out, l.Category)
		}
	}
	return out
}
