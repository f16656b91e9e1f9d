package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

func prio(n int) *int { return &n }

func cond(field string, op domain.ConditionOperator, value any) domain.PolicyCondition {
	return domain.PolicyCondition{Field: field, Operator: op, Value: value}
}

func TestEvaluatePolicies_PriorityOrder(t *testing.T) {
	set := domain.PolicySet{
		Name: "tools",
		Rules: []domain.PolicyRule{
			{ID: "allow-search", Priority: prio(50), Effect: domain.EffectAllow, Conditions: []domain.PolicyCondition{cond("tool", domain.OpEquals, "search")}},
			{ID: "deny-search", Priority: prio(10), Effect: domain.EffectDeny, Conditions: []domain.PolicyCondition{cond("tool", domain.OpEquals, "search")}},
		},
	}

	res := EvaluatePolicies(set, PolicyRequest{Tool: "search"})
	assert.False(t, res.Allowed)
	require.NotNil(t, res.MatchedRule)
	assert.Equal(t, "deny-search", res.MatchedRule.ID)
	assert.Equal(t, "Matched rule: deny-search (deny)", res.Reason)
	assert.Equal(t, 1, res.EvaluatedCount)
}

func TestEvaluatePolicies_StableForEqualPriority(t *testing.T) {
	set := domain.PolicySet{
		Name: "tools",
		Rules: []domain.PolicyRule{
			{ID: "first", Effect: domain.EffectAllow, Reason: "first wins"},
			{ID: "second", Effect: domain.EffectDeny},
			{ID: "late", Priority: prio(101), Effect: domain.EffectDeny},
		},
	}

	res := EvaluatePolicies(set, PolicyRequest{})
	assert.True(t, res.Allowed)
	assert.Equal(t, "first wins", res.Reason)
}

func TestEvaluatePolicies_DefaultEffect(t *testing.T) {
	rule := domain.PolicyRule{ID: "r", Effect: domain.EffectAllow, Conditions: []domain.PolicyCondition{cond("tool", domain.OpEquals, "x")}}

	res := EvaluatePolicies(domain.PolicySet{Name: "s", Rules: []domain.PolicyRule{rule}}, PolicyRequest{Tool: "y"})
	assert.False(t, res.Allowed)
	assert.Equal(t, "No rules matched; default: deny", res.Reason)
	assert.Equal(t, 1, res.EvaluatedCount)
	assert.Nil(t, res.MatchedRule)

	res = EvaluatePolicies(domain.PolicySet{Name: "s", DefaultEffect: domain.EffectAllow}, PolicyRequest{})
	assert.True(t, res.Allowed)
	assert.Equal(t, "No rules matched; default: allow", res.Reason)
}

func TestEvaluatePolicies_Operators(t *testing.T) {
	req := PolicyRequest{
		Claims: domain.IdentityClaims{
			Sub:         "user-1",
			Scope:       []string{"tools:read", "tools:write"},
			Permissions: []string{"billing"},
			OrgID:       "acme",
			Extra:       map[string]any{"tier": "gold", "quota": float64(5)},
		},
		Tool:  "crm.lookup",
		Model: "gpt-4o-mini",
		Input: map[string]any{"amount": float64(250), "tags": []any{"vip", "eu"}},
		Context: map[string]any{
			"env": "prod",
		},
	}

	tests := []struct {
		name string
		c    domain.PolicyCondition
		want bool
	}{
		{"equals shorthand", cond("org_id", domain.OpEquals, "acme"), true},
		{"equals number from yaml int", cond("input.amount", domain.OpEquals, 250), true},
		{"equals no coercion", cond("input.amount", domain.OpEquals, "250"), false},
		{"equals dotted identity", cond("identity.tier", domain.OpEquals, "gold"), true},
		{"equals context", cond("env", domain.OpEquals, "prod"), true},
		{"contains scope token", cond("scope", domain.OpContains, "tools:write"), true},
		{"contains scope partial token", cond("scope", domain.OpContains, "tools"), false},
		{"contains array", cond("permissions", domain.OpContains, "billing"), true},
		{"contains array miss", cond("roles", domain.OpContains, "admin"), false},
		{"contains input array", cond("input.tags", domain.OpContains, "eu"), true},
		{"in string list", cond("model", domain.OpIn, []any{"gpt-4o", "gpt-4o-mini"}), true},
		{"in number string form", cond("identity.quota", domain.OpIn, []any{"5"}), true},
		{"in not list", cond("model", domain.OpIn, "gpt-4o-mini"), false},
		{"in missing field", cond("nope", domain.OpIn, []any{""}), false},
		{"matches", cond("tool", domain.OpMatches, `^crm\.`), true},
		{"matches miss", cond("tool", domain.OpMatches, `^erp\.`), false},
		{"matches malformed regex", cond("tool", domain.OpMatches, `([`), false},
		{"matches non string field", cond("input.amount", domain.OpMatches, `\d+`), false},
		{"exists true", cond("sub", domain.OpExists, true), true},
		{"exists absent", cond("input.missing", domain.OpExists, false), true},
		{"exists but absent", cond("identity.nothing", domain.OpExists, true), false},
		{"roles always present", cond("roles", domain.OpExists, true), true},
		{"unresolvable path", cond("input.amount.deep", domain.OpEquals, 1), false},
		{"array index path", cond("input.tags.1", domain.OpEquals, "eu"), true},
		{"unknown operator", cond("tool", domain.ConditionOperator("startsWith"), "crm"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := domain.PolicySet{Name: "s", Rules: []domain.PolicyRule{
				{ID: "r", Effect: domain.EffectAllow, Conditions: []domain.PolicyCondition{tt.c}},
			}}
			assert.Equal(t, tt.want, EvaluatePolicies(set, req).Allowed)
		})
	}
}

func TestEvaluatePolicies_ConditionsAreANDed(t *testing.T) {
	set := domain.PolicySet{Name: "s", Rules: []domain.PolicyRule{
		{ID: "r", Effect: domain.EffectAllow, Conditions: []domain.PolicyCondition{
			cond("tool", domain.OpEquals, "search"),
			cond("sub", domain.OpEquals, "u1"),
		}},
	}}

	assert.True(t, EvaluatePolicies(set, PolicyRequest{Tool: "search", Claims: domain.IdentityClaims{Sub: "u1"}}).Allowed)
	assert.False(t, EvaluatePolicies(set, PolicyRequest{Tool: "search", Claims: domain.IdentityClaims{Sub: "u2"}}).Allowed)
}

func TestEvaluatePolicies_Deterministic(t *testing.T) {
	set := domain.PolicySet{Name: "s", Rules: []domain.PolicyRule{
		{ID: "a", Priority: prio(5), Effect: domain.EffectDeny, Conditions: []domain.PolicyCondition{cond("model", domain.OpMatches, "^gpt")}},
		{ID: "b", Effect: domain.EffectAllow},
	}}
	req := PolicyRequest{Model: "gpt-4"}

	first := EvaluatePolicies(set, req)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, EvaluatePolicies(set, req))
	}
}
