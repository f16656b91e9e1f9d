package limits

import (
	"fmt"

	"go.uber.org/zap"
)

// Стадии admission control, возвращаются в PreflightResult.DeniedBy.
const (
	StageRateLimit  = "rate_limit"
	StageBudget     = "budget"
	StageAgentGuard = "agent_guard"
)

// EngineConfig - nil секция отключает соответствующую проверку.
type EngineConfig struct {
	RateLimit  *RateLimitConfig
	Budget     *BudgetConfig
	AgentGuard *AgentGuardConfig
}

type PreflightOptions struct {
	WorkflowID    string
	EstimatedCost float64
	Model         string
}

type PreflightResult struct {
	Allowed    bool               `json:"allowed"`
	Reason     string             `json:"reason"`
	DeniedBy   string             `json:"denied_by,omitempty"`
	RateLimit  *RateLimitResult   `json:"rate_limit,omitempty"`
	Budget     *BudgetCheckResult `json:"budget,omitempty"`
	AgentGuard *AgentGuardResult  `json:"agent_guard,omitempty"`
}

// UsageInput - событие учета после исполнения вызова.
type UsageInput struct {
	Cost       float64
	Tokens     int
	Model      string
	Tool       string
	WorkflowID string
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine - владелец всех компонентов admission control и их фоновых очисток.
// Жизненный цикл: NewEngine -> Start -> ... -> Stop.
type Engine struct {
	clock  Clock
	logger *zap.Logger

	rateLimiter *RateLimiter
	budget      *BudgetTracker
	guard       *AgentGuard
}

func NewEngine(cfg EngineConfig, opts ...Option) (*Engine, error) {
	e := &Engine{clock: SystemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("limits")

	var err error
	if cfg.RateLimit != nil {
		if e.rateLimiter, err = NewRateLimiter(*cfg.RateLimit, e.clock, e.logger); err != nil {
			return nil, err
		}
	}
	if cfg.Budget != nil {
		if e.budget, err = NewBudgetTracker(*cfg.Budget, e.clock, e.logger); err != nil {
			return nil, err
		}
	}
	if cfg.AgentGuard != nil {
		e.guard = NewAgentGuard(*cfg.AgentGuard, e.clock, e.logger)
	}
	return e, nil
}

// Preflight: rate limit -> budget -> agent guard (только при WorkflowID). Первый отказ побеждает.
func (e *Engine) Preflight(key string, opts PreflightOptions) PreflightResult {
	var res PreflightResult

	if e.rateLimiter != nil {
		rl := e.rateLimiter.Check(key)
		res.RateLimit = &rl
		if !rl.Allowed {
			return e.deny(res, StageRateLimit, fmt.Sprintf("Rate limited. Retry after %ds", rl.RetryAfterSec), key)
		}
	}

	if e.budget != nil {
		b := e.budget.Check(key, opts.EstimatedCost)
		res.Budget = &b
		if !b.Allowed {
			return e.deny(res, StageBudget, b.Reason, key)
		}
		if opts.Model != "" {
			mb := e.budget.CheckModel(key, opts.Model, opts.EstimatedCost)
			if !mb.Allowed {
				res.Budget = &mb
				return e.deny(res, StageBudget, mb.Reason, key)
			}
		}
	}

	if e.guard != nil && opts.WorkflowID != "" {
		g := e.guard.Check(opts.WorkflowID)
		res.AgentGuard = &g
		if !g.Allowed {
			return e.deny(res, StageAgentGuard, g.Reason, key)
		}
	}

	res.Allowed = true
	res.Reason = "All checks passed"
	return res
}

func (e *Engine) deny(res PreflightResult, stage, reason, key string) PreflightResult {
	res.Allowed = false
	res.DeniedBy = stage
	res.Reason = reason
	e.logger.Debug("preflight denied", zap.String("key", key), zap.String("stage", stage), zap.String("reason", reason))
	return res
}

// RecordUsage раздает событие в budget и, при наличии WorkflowID, в agent guard.
func (e *Engine) RecordUsage(key string, in UsageInput) {
	if e.budget != nil {
		e.budget.Record(key, UsageRecord{
			Timestamp: e.clock.Now(),
			Cost:      in.Cost,
			Tokens:    in.Tokens,
			Model:     in.Model,
			Tool:      in.Tool,
		})
	}
	if e.guard != nil && in.WorkflowID != "" {
		e.guard.RecordToolCall(in.WorkflowID, in.Cost)
	}
}

// RecordFailedCall учитывает в agent guard вызов, который не дошел до успешного ответа.
// Трат нет, в budget ничего не пишется.
func (e *Engine) RecordFailedCall(workflowID string) {
	if e.guard != nil && workflowID != "" {
		e.guard.RecordToolCall(workflowID, 0)
	}
}

func (e *Engine) EndWorkflow(workflowID string) {
	if e.guard != nil {
		e.guard.EndWorkflow(workflowID)
	}
}

// UsageSummary - траты ключа за текущий период; ok=false если бюджет не настроен.
func (e *Engine) UsageSummary(key string) (UsageSummary, bool) {
	if e.budget == nil {
		return UsageSummary{}, false
	}
	return e.budget.UsageSummary(key), true
}

// Sweep синхронно запускает один проход очистки всех компонентов.
func (e *Engine) Sweep() {
	if e.rateLimiter != nil {
		e.rateLimiter.Sweep()
	}
	if e.budget != nil {
		e.budget.Sweep()
	}
}

func (e *Engine) Start() {
	if e.rateLimiter != nil {
		e.rateLimiter.Start()
	}
	if e.budget != nil {
		e.budget.Start()
	}
}

// Stop останавливает фоновые таймеры. Безопасен для повторного вызова.
func (e *Engine) Stop() {
	if e.rateLimiter != nil {
		e.rateLimiter.Stop()
	}
	if e.budget != nil {
		e.budget.Stop()
	}
}

func (e *Engine) RateLimiter() *RateLimiter { return e.rateLimiter }
func (e *Engine) Budget() *BudgetTracker    { return e.budget }
func (e *Engine) AgentGuard() *AgentGuard   { return e.guard }
