package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"github.com/xela07ax/spaceai-governance-gateway/internal/policy"
)

// ToolRoute - скомпилированное описание инструмента: куда проксировать и как проверять.
type ToolRoute struct {
	Name     string
	Provider string
	Method   string
	Path     string

	RequiredPermissions []string
	AnyPermissions      []string
	PolicySet           string
	ContentPolicySet    string
	Schema              *policy.SimpleSchema
	JSONSchema          *jsonschema.Schema

	EstimatedCost float64
	Cost          float64
}

// CompileTools проверяет и компилирует схемы всех инструментов при старте.
func CompileTools(cfgs []infra.ToolConfig) (map[string]*ToolRoute, error) {
	routes := make(map[string]*ToolRoute, len(cfgs))
	for _, tc := range cfgs {
		if tc.Name == "" {
			return nil, fmt.Errorf("engine: tool without name")
		}
		if _, dup := routes[tc.Name]; dup {
			return nil, fmt.Errorf("engine: duplicate tool %q", tc.Name)
		}
		route, err := compileTool(tc)
		if err != nil {
			return nil, err
		}
		routes[tc.Name] = route
	}
	return routes, nil
}

func compileTool(tc infra.ToolConfig) (*ToolRoute, error) {
	method := strings.ToUpper(tc.Method)
	if method == "" {
		method = http.MethodPost
	}
	path := tc.Path
	if path == "" {
		path = "/" + tc.Name
	}

	route := &ToolRoute{
		Name:                tc.Name,
		Provider:            tc.Provider,
		Method:              method,
		Path:                path,
		RequiredPermissions: tc.RequiredPermissions,
		AnyPermissions:      tc.AnyPermissions,
		PolicySet:           tc.PolicySet,
		ContentPolicySet:    tc.ContentPolicySet,
		EstimatedCost:       tc.EstimatedCost,
		Cost:                tc.Cost,
	}
	if route.Cost == 0 {
		route.Cost = tc.EstimatedCost
	}

	if len(tc.InputSchema) > 0 {
		var schema policy.SimpleSchema
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &schema,
			ErrorUnused: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(tc.InputSchema); err != nil {
			return nil, fmt.Errorf("engine: tool %q: input_schema: %w", tc.Name, err)
		}
		route.Schema = &schema
	}

	if tc.JSONSchema != "" {
		js, err := policy.CompileJSONSchema(tc.Name, tc.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("engine: tool %q: %w", tc.Name, err)
		}
		route.JSONSchema = js
	}
	return route, nil
}

// DecisionOptions - проверки инструмента для policy.Decide.
func (t *ToolRoute) DecisionOptions(policies *domain.PolicySet) policy.DecisionOptions {
	return policy.DecisionOptions{
		RequiredPermissions: t.RequiredPermissions,
		AnyPermissions:      t.AnyPermissions,
		Policies:            policies,
		Schema:              t.Schema,
		JSONSchema:          t.JSONSchema,
	}
}
