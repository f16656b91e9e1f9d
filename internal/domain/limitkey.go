package domain

import "strings"

// LimitKey идентифицирует ответственную сторону для лимитов и бюджета.
type LimitKey struct {
	Sub      string `json:"sub,omitempty"`
	OrgID    string `json:"org_id,omitempty"`
	IP       string `json:"ip,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

const AnonymousKey = "anonymous"

// ResolveKey строит ключ: префикс тенанта + первый из sub > org_id > ip > "anonymous".
func ResolveKey(k LimitKey) string {
	var id string
	switch {
	case k.Sub != "":
		id = "u:" + k.Sub
	case k.OrgID != "":
		id = "o:" + k.OrgID
	case k.IP != "":
		id = "ip:" + k.IP
	default:
		id = AnonymousKey
	}
	if k.TenantID != "" {
		return "t:" + k.TenantID + "|" + id
	}
	return id
}

func (k LimitKey) String() string { return ResolveKey(k) }

// KeyFromClaims собирает LimitKey из claims, адреса клиента и тенанта.
func KeyFromClaims(c IdentityClaims, ip, tenantID string) LimitKey {
	return LimitKey{
		Sub:      strings.TrimSpace(c.Sub),
		OrgID:    strings.TrimSpace(c.OrgID),
		IP:       strings.TrimSpace(ip),
		TenantID: strings.TrimSpace(tenantID),
	}
}
