package policy

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

// DecisionOptions - каждая проверка опциональна: отсутствие настройки = pass.
type DecisionOptions struct {
	RequiredPermissions []string
	AnyPermissions      []string
	Policies            *domain.PolicySet
	Schema              *SimpleSchema
	JSONSchema          *jsonschema.Schema
}

// Checks - только реально выполненные проверки.
type Checks struct {
	Permissions    *PermissionResult `json:"permissions,omitempty"`
	AnyPermissions *PermissionResult `json:"any_permissions,omitempty"`
	Policy         *PolicyResult     `json:"policy,omitempty"`
	Schema         *SchemaResult     `json:"schema,omitempty"`
}

type ValidationDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Checks  Checks `json:"checks"`
}

// Decide: permissions -> any-of -> policy -> schema. Первый отказ побеждает.
func Decide(req PolicyRequest, opts DecisionOptions) ValidationDecision {
	var checks Checks

	if len(opts.RequiredPermissions) > 0 {
		res := CheckPermissions(req.Claims, opts.RequiredPermissions)
		checks.Permissions = &res
		if !res.Allowed {
			return ValidationDecision{Allowed: false, Reason: res.Reason, Checks: checks}
		}
	}

	if len(opts.AnyPermissions) > 0 {
		res := CheckAnyPermission(req.Claims, opts.AnyPermissions)
		checks.AnyPermissions = &res
		if !res.Allowed {
			return ValidationDecision{Allowed: false, Reason: res.Reason, Checks: checks}
		}
	}

	if opts.Policies != nil {
		res := EvaluatePolicies(*opts.Policies, req)
		checks.Policy = &res
		if !res.Allowed {
			return ValidationDecision{Allowed: false, Reason: res.Reason, Checks: checks}
		}
	}

	if req.Input != nil && (opts.Schema != nil || opts.JSONSchema != nil) {
		res := SchemaResult{Valid: true, Errors: []string{}}
		if opts.Schema != nil {
			res = ValidateSchema(req.Input, *opts.Schema)
		}
		if res.Valid && opts.JSONSchema != nil {
			res = ValidateJSONSchema(opts.JSONSchema, req.Input)
		}
		checks.Schema = &res
		if !res.Valid {
			return ValidationDecision{
				Allowed: false,
				Reason:  "Schema validation failed: " + strings.Join(res.Errors, "; "),
				Checks:  checks,
			}
		}
	}

	return ValidationDecision{Allowed: true, Reason: "All checks passed", Checks: checks}
}
