package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

// PolicyRequest - то, что оценивают правила: кто, какой инструмент/модель, вход и доп. контекст.
type PolicyRequest struct {
	Claims  domain.IdentityClaims
	Tool    string
	Model   string
	Input   any
	Context map[string]any
}

type PolicyResult struct {
	Allowed        bool                `json:"allowed"`
	Effect         domain.PolicyEffect `json:"effect"`
	MatchedRule    *domain.PolicyRule  `json:"matched_rule,omitempty"`
	Reason         string              `json:"reason"`
	EvaluatedCount int                 `json:"evaluated_count"`
}

// EvaluatePolicies сортирует правила по приоритету (стабильно) и возвращает эффект первого совпавшего.
// Если ничего не совпало - DefaultEffect набора (по умолчанию deny).
func EvaluatePolicies(set domain.PolicySet, req PolicyRequest) PolicyResult {
	rules := make([]domain.PolicyRule, len(set.Rules))
	copy(rules, set.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].EffectivePriority() < rules[j].EffectivePriority()
	})

	root := req.root()
	for i := range rules {
		rule := rules[i]
		if !matchesAll(rule.Conditions, req, root) {
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = fmt.Sprintf("Matched rule: %s (%s)", rule.ID, rule.Effect)
		}
		return PolicyResult{
			Allowed:        rule.Effect == domain.EffectAllow,
			Effect:         rule.Effect,
			MatchedRule:    &rule,
			Reason:         reason,
			EvaluatedCount: i + 1,
		}
	}

	def := set.Default()
	return PolicyResult{
		Allowed:        def == domain.EffectAllow,
		Effect:         def,
		Reason:         fmt.Sprintf("No rules matched; default: %s", def),
		EvaluatedCount: len(rules),
	}
}

func matchesAll(conds []domain.PolicyCondition, req PolicyRequest, root map[string]any) bool {
	for _, c := range conds {
		if !matchesCondition(c, req, root) {
			return false
		}
	}
	return true
}

func matchesCondition(c domain.PolicyCondition, req PolicyRequest, root map[string]any) bool {
	field, found := resolveField(c.Field, req, root)

	switch c.Operator {
	case domain.OpEquals:
		return found && strictEqual(field, c.Value)

	case domain.OpContains:
		switch fv := field.(type) {
		case string:
			want := stringify(c.Value)
			for _, tok := range strings.Fields(fv) {
				if tok == want {
					return true
				}
			}
			return false
		case []string:
			for _, item := range fv {
				if strictEqual(item, c.Value) {
					return true
				}
			}
			return false
		case []any:
			for _, item := range fv {
				if strictEqual(item, c.Value) {
					return true
				}
			}
			return false
		}
		return false

	case domain.OpIn:
		if !found || field == nil {
			return false
		}
		s := stringify(field)
		switch list := c.Value.(type) {
		case []string:
			for _, item := range list {
				if item == s {
					return true
				}
			}
		case []any:
			for _, item := range list {
				if str, ok := item.(string); ok && str == s {
					return true
				}
			}
		}
		return false

	case domain.OpMatches:
		s, ok := field.(string)
		pattern, pok := c.Value.(string)
		if !ok || !pok {
			return false
		}
		re, err := compilePattern(pattern)
		if err != nil {
			// битый паттерн = нет совпадения
			return false
		}
		return re.MatchString(s)

	case domain.OpExists:
		present := found && field != nil
		return present == truthy(c.Value)
	}

	return false
}

// resolveField: шорткаты, затем dotted path по {identity, tool, model, input, ...context}.
func resolveField(field string, req PolicyRequest, root map[string]any) (any, bool) {
	switch field {
	case "scope":
		s := req.Claims.ScopeString()
		return s, s != ""
	case "permission", "permissions":
		return nonNil(req.Claims.Permissions), true
	case "role", "roles":
		return nonNil(req.Claims.Roles), true
	case "org_id":
		return req.Claims.OrgID, req.Claims.OrgID != ""
	case "sub":
		return req.Claims.Sub, req.Claims.Sub != ""
	case "tool":
		return req.Tool, req.Tool != ""
	case "model":
		return req.Model, req.Model != ""
	}
	return lookupPath(root, field)
}

func (r PolicyRequest) root() map[string]any {
	m := make(map[string]any, len(r.Context)+4)
	for k, v := range r.Context {
		m[k] = v
	}
	m["identity"] = r.Claims.AsMap()
	if r.Tool != "" {
		m["tool"] = r.Tool
	}
	if r.Model != "" {
		m["model"] = r.Model
	}
	if r.Input != nil {
		m["input"] = r.Input
	}
	return m
}

func lookupPath(root map[string]any, path string) (any, bool) {
	var cur any = root
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// strictEqual - сравнение скаляров без приведения строк к числам.
func strictEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func stringify(v any) string {
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var patternCache sync.Map // pattern -> *regexp.Regexp | error

func compilePattern(p string) (*regexp.Regexp, error) {
	if v, ok := patternCache.Load(p); ok {
		if re, ok := v.(*regexp.Regexp); ok {
			return re, nil
		}
		return nil, v.(error)
	}
	re, err := regexp.Compile(p)
	if err != nil {
		patternCache.Store(p, err)
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}
