package engine

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"github.com/xela07ax/spaceai-governance-gateway/internal/policy"
)

func TestCompileTools_Defaults(t *testing.T) {
	tools, err := CompileTools([]infra.ToolConfig{
		{Name: "search", EstimatedCost: 2.5},
		{Name: "lookup", Method: "get", Path: "/v2/lookup", EstimatedCost: 1, Cost: 3},
	})
	require.NoError(t, err)

	s := tools["search"]
	assert.Equal(t, http.MethodPost, s.Method)
	assert.Equal(t, "/search", s.Path)
	assert.Equal(t, 2.5, s.Cost)
	assert.Nil(t, s.Schema)
	assert.Nil(t, s.JSONSchema)

	l := tools["lookup"]
	assert.Equal(t, http.MethodGet, l.Method)
	assert.Equal(t, "/v2/lookup", l.Path)
	assert.Equal(t, 3.0, l.Cost)
}

func TestCompileTools_Rejects(t *testing.T) {
	_, err := CompileTools([]infra.ToolConfig{{Name: ""}})
	assert.Error(t, err)

	_, err = CompileTools([]infra.ToolConfig{{Name: "a"}, {Name: "a"}})
	assert.ErrorContains(t, err, `duplicate tool "a"`)

	_, err = CompileTools([]infra.ToolConfig{{
		Name:        "a",
		InputSchema: map[string]any{"type": "object", "additionalProperties": false},
	}})
	assert.ErrorContains(t, err, "input_schema")

	_, err = CompileTools([]infra.ToolConfig{{Name: "a", JSONSchema: "{not json"}})
	assert.Error(t, err)
}

func TestCompileTools_Schemas(t *testing.T) {
	tools, err := CompileTools([]infra.ToolConfig{{
		Name: "send",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"to"},
			"properties": map[string]any{
				"to":       map[string]any{"type": "string"},
				"priority": map[string]any{"enum": []any{"low", "high"}},
			},
		},
		JSONSchema: `{"type":"object","properties":{"to":{"type":"string","maxLength":5}}}`,
	}})
	require.NoError(t, err)

	route := tools["send"]
	require.NotNil(t, route.Schema)
	assert.Equal(t, "object", route.Schema.Type)
	assert.Equal(t, []string{"to"}, route.Schema.Required)
	assert.Equal(t, []any{"low", "high"}, route.Schema.Properties["priority"].Enum)

	opts := route.DecisionOptions(nil)
	ok := policy.Decide(policy.PolicyRequest{Tool: "send", Input: map[string]any{"to": "bob"}}, opts)
	assert.True(t, ok.Allowed, ok.Reason)

	tooLong := policy.Decide(policy.PolicyRequest{Tool: "send", Input: map[string]any{"to": "somebody"}}, opts)
	assert.False(t, tooLong.Allowed)
	assert.Contains(t, tooLong.Reason, "Schema validation failed")
}
