package limits

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxToolCalls    = 50
	DefaultMaxWorkflowCost = 1000
	DefaultMaxDuration     = 300 * time.Second
)

// AgentGuardConfig - потолки на один workflow. Нулевые значения = дефолты.
type AgentGuardConfig struct {
	MaxToolCalls    int           `mapstructure:"max_tool_calls"`
	MaxWorkflowCost float64       `mapstructure:"max_workflow_cost"`
	MaxDuration     time.Duration `mapstructure:"max_duration"`
}

func (c AgentGuardConfig) withDefaults() AgentGuardConfig {
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	if c.MaxWorkflowCost <= 0 {
		c.MaxWorkflowCost = DefaultMaxWorkflowCost
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return c
}

type AgentGuardResult struct {
	Allowed       bool    `json:"allowed"`
	Reason        string  `json:"reason"`
	ToolCallCount int     `json:"tool_call_count"`
	WorkflowCost  float64 `json:"workflow_cost"`
	DurationMs    int64   `json:"duration_ms"`
}

type workflowState struct {
	startedAt     time.Time
	toolCallCount int
	totalCost     float64
}

// AgentGuard защищает от "убегающих" агентов: лимит вызовов, стоимости и длительности workflow.
// Состояние живет от первого Check/RecordToolCall до явного EndWorkflow.
type AgentGuard struct {
	cfg    AgentGuardConfig
	clock  Clock
	logger *zap.Logger

	mu        sync.Mutex
	workflows map[string]*workflowState
}

func NewAgentGuard(cfg AgentGuardConfig, clock Clock, logger *zap.Logger) *AgentGuard {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentGuard{
		cfg:       cfg.withDefaults(),
		clock:     clock,
		logger:    logger.Named("agentguard"),
		workflows: make(map[string]*workflowState),
	}
}

func (g *AgentGuard) Config() AgentGuardConfig { return g.cfg }

func (g *AgentGuard) Check(workflowID string) AgentGuardResult {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(workflowID, now)
	duration := now.Sub(st.startedAt)
	res := AgentGuardResult{
		Allowed:       true,
		Reason:        "Within workflow limits",
		ToolCallCount: st.toolCallCount,
		WorkflowCost:  st.totalCost,
		DurationMs:    duration.Milliseconds(),
	}

	switch {
	case duration > g.cfg.MaxDuration:
		res.Allowed = false
		res.Reason = fmt.Sprintf("Workflow exceeded max duration: %dms > %dms",
			duration.Milliseconds(), g.cfg.MaxDuration.Milliseconds())
	case st.toolCallCount >= g.cfg.MaxToolCalls:
		res.Allowed = false
		res.Reason = fmt.Sprintf("Workflow exceeded max tool calls: %d >= %d",
			st.toolCallCount, g.cfg.MaxToolCalls)
	case st.totalCost >= g.cfg.MaxWorkflowCost:
		res.Allowed = false
		res.Reason = fmt.Sprintf("Workflow exceeded max cost: %s >= %s",
			formatCost(st.totalCost), formatCost(g.cfg.MaxWorkflowCost))
	}

	if !res.Allowed {
		g.logger.Info("workflow limit hit", zap.String("workflow_id", workflowID), zap.String("reason", res.Reason))
	}
	return res
}

func (g *AgentGuard) RecordToolCall(workflowID string, cost float64) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(workflowID, now)
	st.toolCallCount++
	st.totalCost += cost
}

// EndWorkflow удаляет состояние; следующий Check начнет workflow заново.
func (g *AgentGuard) EndWorkflow(workflowID string) {
	g.mu.Lock()
	delete(g.workflows, workflowID)
	g.mu.Unlock()
}

func (g *AgentGuard) ActiveWorkflows() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.workflows)
}

// state вызывается под g.mu
func (g *AgentGuard) state(workflowID string, now time.Time) *workflowState {
	st, ok := g.workflows[workflowID]
	if !ok {
		st = &workflowState{startedAt: now}
		g.workflows[workflowID] = st
	}
	return st
}
