package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// IdentityClaims - уже проверенные claims вызывающей стороны.
// Подпись, issuer и audience проверяются до нас (см. infra/auth).
type IdentityClaims struct {
	Sub         string   `json:"sub,omitempty"`
	Scope       []string `json:"scope,omitempty"` // в токене строка "a b" или массив
	Scopes      []string `json:"scopes,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	OrgID       string   `json:"org_id,omitempty"`

	// Extra хранит неизвестные claims (forward compatibility)
	Extra map[string]any `json:"-"`
}

var knownClaims = map[string]struct{}{
	"sub": {}, "scope": {}, "scopes": {}, "permissions": {}, "roles": {}, "org_id": {},
}

// ClaimsFromMap собирает IdentityClaims из map (например jwt.MapClaims).
func ClaimsFromMap(m map[string]any) IdentityClaims {
	c := IdentityClaims{
		Sub:         stringClaim(m["sub"]),
		Scope:       listClaim(m["scope"]),
		Scopes:      listClaim(m["scopes"]),
		Permissions: listClaim(m["permissions"]),
		Roles:       listClaim(m["roles"]),
		OrgID:       stringClaim(m["org_id"]),
	}
	for k, v := range m {
		if _, ok := knownClaims[k]; ok {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}
	return c
}

func (c *IdentityClaims) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = ClaimsFromMap(m)
	return nil
}

func (c IdentityClaims) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.AsMap())
}

// ScopeString - scope в виде строки через пробел; при отсутствии scope берем scopes.
func (c IdentityClaims) ScopeString() string {
	if len(c.Scope) > 0 {
		return strings.Join(c.Scope, " ")
	}
	return strings.Join(c.Scopes, " ")
}

// Grants - объединенный набор прав: scopes ∪ permissions ∪ roles без дублей.
func (c IdentityClaims) Grants() map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.Fields(c.ScopeString()) {
		set[s] = struct{}{}
	}
	if len(c.Scope) > 0 {
		for _, s := range c.Scopes {
			set[s] = struct{}{}
		}
	}
	for _, p := range c.Permissions {
		set[p] = struct{}{}
	}
	for _, r := range c.Roles {
		set[r] = struct{}{}
	}
	return set
}

// GrantList - отсортированный список прав (для логов и ответов).
func (c IdentityClaims) GrantList() []string {
	set := c.Grants()
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// AsMap - представление claims для dotted-path поиска в политиках.
func (c IdentityClaims) AsMap() map[string]any {
	m := make(map[string]any, len(c.Extra)+6)
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.Sub != "" {
		m["sub"] = c.Sub
	}
	if len(c.Scope) > 0 {
		m["scope"] = strings.Join(c.Scope, " ")
	}
	if len(c.Scopes) > 0 {
		m["scopes"] = toAnySlice(c.Scopes)
	}
	if len(c.Permissions) > 0 {
		m["permissions"] = toAnySlice(c.Permissions)
	}
	if len(c.Roles) > 0 {
		m["roles"] = toAnySlice(c.Roles)
	}
	if c.OrgID != "" {
		m["org_id"] = c.OrgID
	}
	return m
}

// StringClaim достает строковый claim из Extra (например tenant_id).
func (c IdentityClaims) StringClaim(name string) string {
	switch name {
	case "sub":
		return c.Sub
	case "org_id":
		return c.OrgID
	}
	return stringClaim(c.Extra[name])
}

func stringClaim(v any) string {
	s, _ := v.(string)
	return s
}

func listClaim(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Fields(t)
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
