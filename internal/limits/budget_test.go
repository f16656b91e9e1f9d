package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBudget(t *testing.T, cfg BudgetConfig) (*BudgetTracker, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(epoch)
	bt, err := NewBudgetTracker(cfg, clock, nil)
	require.NoError(t, err)
	return bt, clock
}

func TestBudgetTracker_DeniesWhenEstimateExceeds(t *testing.T) {
	bt, _ := newTestBudget(t, BudgetConfig{MaxSpend: 100, Period: time.Hour})

	bt.Record("k", UsageRecord{Cost: 60})
	bt.Record("k", UsageRecord{Cost: 30})

	res := bt.Check("k", 5)
	assert.True(t, res.Allowed)
	assert.Equal(t, "Within budget", res.Reason)
	assert.Equal(t, 90.0, res.CurrentSpend)
	assert.Equal(t, 90, res.PercentUsed)

	res = bt.Check("k", 20)
	assert.False(t, res.Allowed)
	assert.Equal(t, "Budget exceeded: 90 / 100 (estimated +20)", res.Reason)
	assert.Equal(t, 90, res.PercentUsed)
}

func TestBudgetTracker_PercentCanExceedHundred(t *testing.T) {
	bt, _ := newTestBudget(t, BudgetConfig{MaxSpend: 10, Period: time.Hour})
	bt.Record("k", UsageRecord{Cost: 15})

	res := bt.Check("k", 0)
	assert.False(t, res.Allowed)
	assert.Equal(t, 150, res.PercentUsed)
}

func TestBudgetTracker_RollingPeriod(t *testing.T) {
	bt, clock := newTestBudget(t, BudgetConfig{MaxSpend: 10, Period: time.Hour})

	bt.Record("k", UsageRecord{Cost: 10})
	assert.False(t, bt.Check("k", 1).Allowed)

	clock.Advance(time.Hour)
	res := bt.Check("k", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0.0, res.CurrentSpend)
}

func TestBudgetTracker_ModelLimits(t *testing.T) {
	bt, _ := newTestBudget(t, BudgetConfig{
		MaxSpend:    100,
		Period:      time.Hour,
		ModelLimits: map[string]float64{"gpt-4o": 5},
	})
	bt.Record("k", UsageRecord{Cost: 5, Model: "gpt-4o"})
	bt.Record("k", UsageRecord{Cost: 50, Model: "small"})

	res := bt.CheckModel("k", "gpt-4o", 1)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "Model gpt-4o: Budget exceeded: 5 / 5")

	assert.True(t, bt.CheckModel("k", "small", 1).Allowed)
	assert.True(t, bt.CheckModel("k", "", 1).Allowed)
}

func TestBudgetTracker_UsageSummary(t *testing.T) {
	bt, clock := newTestBudget(t, BudgetConfig{MaxSpend: 100, Period: time.Hour})

	bt.Record("k", UsageRecord{Cost: 1.5, Tokens: 100})
	clock.Advance(30 * time.Minute)
	bt.Record("k", UsageRecord{Cost: 2, Tokens: 50})

	assert.Equal(t, UsageSummary{TotalSpend: 3.5, TotalTokens: 150, RequestCount: 2}, bt.UsageSummary("k"))

	clock.Advance(31 * time.Minute)
	assert.Equal(t, UsageSummary{TotalSpend: 2, TotalTokens: 50, RequestCount: 1}, bt.UsageSummary("k"))
}

func TestBudgetTracker_Sweep(t *testing.T) {
	bt, clock := newTestBudget(t, BudgetConfig{MaxSpend: 100, Period: time.Hour})

	bt.Record("old", UsageRecord{Cost: 1})
	clock.Advance(45 * time.Minute)
	bt.Record("fresh", UsageRecord{Cost: 1})
	clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, bt.Sweep())
	assert.Equal(t, 1, bt.Keys())
}

func TestBudgetTracker_InvalidConfig(t *testing.T) {
	_, err := NewBudgetTracker(BudgetConfig{MaxSpend: 0, Period: time.Hour}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBudgetTracker(BudgetConfig{MaxSpend: 1, Period: time.Hour, ModelLimits: map[string]float64{"m": 0}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
