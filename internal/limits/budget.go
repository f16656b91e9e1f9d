package limits

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

type BudgetConfig struct {
	MaxSpend float64       `mapstructure:"max_spend"`
	Period   time.Duration `mapstructure:"period"`
	// ModelLimits - отдельные лимиты трат на модель в том же периоде
	ModelLimits map[string]float64 `mapstructure:"model_limits"`
}

// UsageRecord - одна запись учета после исполнения вызова.
type UsageRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Cost      float64   `json:"cost"`
	Tokens    int       `json:"tokens,omitempty"`
	Model     string    `json:"model,omitempty"`
	Tool      string    `json:"tool,omitempty"`
}

type BudgetCheckResult struct {
	Allowed      bool    `json:"allowed"`
	CurrentSpend float64 `json:"current_spend"`
	MaxSpend     float64 `json:"max_spend"`
	PercentUsed  int     `json:"percent_used"`
	Reason       string  `json:"reason"`
}

type UsageSummary struct {
	TotalSpend   float64 `json:"total_spend"`
	TotalTokens  int     `json:"total_tokens"`
	RequestCount int     `json:"request_count"`
}

// BudgetTracker - скользящий бюджет трат по ключу.
type BudgetTracker struct {
	cfg    BudgetConfig
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	records map[string][]UsageRecord

	sweeper *sweeper
}

func NewBudgetTracker(cfg BudgetConfig, clock Clock, logger *zap.Logger) (*BudgetTracker, error) {
	if cfg.MaxSpend <= 0 || cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: budget max_spend and period must be positive", ErrInvalidConfig)
	}
	for model, limit := range cfg.ModelLimits {
		if limit <= 0 {
			return nil, fmt.Errorf("%w: budget model limit for %q must be positive", ErrInvalidConfig, model)
		}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bt := &BudgetTracker{
		cfg:     cfg,
		clock:   clock,
		logger:  logger.Named("budget"),
		records: make(map[string][]UsageRecord),
	}
	bt.sweeper = newSweeper("budget", cfg.Period/10, bt.Sweep, bt.logger)
	return bt, nil
}

func (bt *BudgetTracker) Check(key string, estimatedCost float64) BudgetCheckResult {
	current, _ := bt.spend(key, "")
	return evaluateBudget(current, bt.cfg.MaxSpend, estimatedCost)
}

// CheckModel проверяет лимит конкретной модели. Без лимита для модели - allow.
func (bt *BudgetTracker) CheckModel(key, model string, estimatedCost float64) BudgetCheckResult {
	limit, ok := bt.cfg.ModelLimits[model]
	if model == "" || !ok {
		return BudgetCheckResult{Allowed: true, Reason: "No model limit"}
	}
	current, _ := bt.spend(key, model)
	res := evaluateBudget(current, limit, estimatedCost)
	if !res.Allowed {
		res.Reason = "Model " + model + ": " + res.Reason
	}
	return res
}

func evaluateBudget(current, max, estimate float64) BudgetCheckResult {
	res := BudgetCheckResult{
		Allowed:      current+estimate <= max,
		CurrentSpend: current,
		MaxSpend:     max,
		PercentUsed:  int(math.Round(current / max * 100)),
		Reason:       "Within budget",
	}
	if !res.Allowed {
		res.Reason = fmt.Sprintf("Budget exceeded: %s / %s (estimated +%s)",
			formatCost(current), formatCost(max), formatCost(estimate))
	}
	return res
}

// Record добавляет запись учета. Пустой Timestamp = сейчас.
func (bt *BudgetTracker) Record(key string, rec UsageRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = bt.clock.Now()
	}
	bt.mu.Lock()
	bt.records[key] = append(bt.records[key], rec)
	bt.mu.Unlock()
}

func (bt *BudgetTracker) UsageSummary(key string) UsageSummary {
	start := bt.clock.Now().Add(-bt.cfg.Period)

	bt.mu.Lock()
	defer bt.mu.Unlock()

	var sum UsageSummary
	for _, r := range bt.records[key] {
		if !r.Timestamp.After(start) {
			continue
		}
		sum.TotalSpend += r.Cost
		sum.TotalTokens += r.Tokens
		sum.RequestCount++
	}
	return sum
}

func (bt *BudgetTracker) spend(key, model string) (float64, int) {
	start := bt.clock.Now().Add(-bt.cfg.Period)

	bt.mu.Lock()
	defer bt.mu.Unlock()

	var total float64
	var n int
	for _, r := range bt.records[key] {
		if !r.Timestamp.After(start) {
			continue
		}
		if model != "" && r.Model != model {
			continue
		}
		total += r.Cost
		n++
	}
	return total, n
}

// Sweep удаляет записи вне периода и пустые ключи.
func (bt *BudgetTracker) Sweep() int {
	start := bt.clock.Now().Add(-bt.cfg.Period)

	bt.mu.Lock()
	defer bt.mu.Unlock()

	removed := 0
	for key, recs := range bt.records {
		kept := recs[:0]
		for _, r := range recs {
			if r.Timestamp.After(start) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(bt.records, key)
			removed++
			continue
		}
		bt.records[key] = kept
	}
	return removed
}

func (bt *BudgetTracker) Keys() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return len(bt.records)
}

func (bt *BudgetTracker) Start() { bt.sweeper.Start() }
func (bt *BudgetTracker) Stop()  { bt.sweeper.Stop() }

func formatCost(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
