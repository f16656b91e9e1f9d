package policy

import (
	"strings"

	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

type PermissionResult struct {
	Allowed bool     `json:"allowed"`
	Missing []string `json:"missing"`
	Reason  string   `json:"reason"`
}

// CheckPermissions требует наличия ВСЕХ прав из required.
// Права берутся из scope/scopes, permissions и roles.
func CheckPermissions(claims domain.IdentityClaims, required []string) PermissionResult {
	if len(required) == 0 {
		return PermissionResult{Allowed: true, Missing: []string{}, Reason: "No permissions required"}
	}

	granted := claims.Grants()
	missing := make([]string, 0)
	for _, r := range required {
		if _, ok := granted[r]; !ok {
			missing = append(missing, r)
		}
	}

	if len(missing) == 0 {
		return PermissionResult{Allowed: true, Missing: missing, Reason: "All permissions granted"}
	}
	return PermissionResult{
		Allowed: false,
		Missing: missing,
		Reason:  "Missing permissions: " + strings.Join(missing, ", "),
	}
}

// CheckAnyPermission требует хотя бы одно право из anyOf.
func CheckAnyPermission(claims domain.IdentityClaims, anyOf []string) PermissionResult {
	if len(anyOf) == 0 {
		return PermissionResult{Allowed: true, Missing: []string{}, Reason: "No permissions required"}
	}

	granted := claims.Grants()
	for _, p := range anyOf {
		if _, ok := granted[p]; ok {
			return PermissionResult{Allowed: true, Missing: []string{}, Reason: "Has required permission"}
		}
	}
	return PermissionResult{
		Allowed: false,
		Missing: append([]string(nil), anyOf...),
		Reason:  "Requires one of: " + strings.Join(anyOf, ", "),
	}
}
