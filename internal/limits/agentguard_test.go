package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgentGuard_Defaults(t *testing.T) {
	g := NewAgentGuard(AgentGuardConfig{}, nil, nil)
	cfg := g.Config()

	assert.Equal(t, 50, cfg.MaxToolCalls)
	assert.Equal(t, 1000.0, cfg.MaxWorkflowCost)
	assert.Equal(t, 300*time.Second, cfg.MaxDuration)
}

func TestAgentGuard_ToolCallCap(t *testing.T) {
	g := NewAgentGuard(AgentGuardConfig{MaxToolCalls: 3}, NewFakeClock(epoch), nil)

	for i := 0; i < 3; i++ {
		assert.True(t, g.Check("wf").Allowed)
		g.RecordToolCall("wf", 0)
	}

	res := g.Check("wf")
	assert.False(t, res.Allowed)
	assert.Equal(t, "Workflow exceeded max tool calls: 3 >= 3", res.Reason)
	assert.Equal(t, 3, res.ToolCallCount)

	g.EndWorkflow("wf")
	res = g.Check("wf")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.ToolCallCount)
}

func TestAgentGuard_CostCap(t *testing.T) {
	g := NewAgentGuard(AgentGuardConfig{MaxWorkflowCost: 10}, NewFakeClock(epoch), nil)

	g.RecordToolCall("wf", 4)
	g.RecordToolCall("wf", 6.5)

	res := g.Check("wf")
	assert.False(t, res.Allowed)
	assert.Equal(t, "Workflow exceeded max cost: 10.5 >= 10", res.Reason)
	assert.Equal(t, 10.5, res.WorkflowCost)
}

func TestAgentGuard_DurationCheckedFirst(t *testing.T) {
	clock := NewFakeClock(epoch)
	g := NewAgentGuard(AgentGuardConfig{MaxToolCalls: 1, MaxDuration: time.Second}, clock, nil)

	g.Check("wf")
	g.RecordToolCall("wf", 0)
	clock.Advance(1500 * time.Millisecond)

	res := g.Check("wf")
	assert.False(t, res.Allowed)
	assert.Equal(t, "Workflow exceeded max duration: 1500ms > 1000ms", res.Reason)
	assert.Equal(t, int64(1500), res.DurationMs)
}

func TestAgentGuard_DurationBoundaryAllows(t *testing.T) {
	clock := NewFakeClock(epoch)
	g := NewAgentGuard(AgentGuardConfig{MaxDuration: time.Second}, clock, nil)

	g.Check("wf")
	clock.Advance(time.Second)
	assert.True(t, g.Check("wf").Allowed)
}

func TestAgentGuard_WorkflowsAreIsolated(t *testing.T) {
	g := NewAgentGuard(AgentGuardConfig{MaxToolCalls: 1}, NewFakeClock(epoch), nil)

	g.RecordToolCall("a", 0)
	assert.False(t, g.Check("a").Allowed)
	assert.True(t, g.Check("b").Allowed)
	assert.Equal(t, 2, g.ActiveWorkflows())

	g.EndWorkflow("a")
	g.EndWorkflow("b")
	assert.Equal(t, 0, g.ActiveWorkflows())
}
