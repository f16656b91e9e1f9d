package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name string
		key  LimitKey
		want string
	}{
		{"tenant and sub", LimitKey{TenantID: "t1", Sub: "u1"}, "t:t1|u:u1"},
		{"empty", LimitKey{}, "anonymous"},
		{"sub wins over org", LimitKey{Sub: "u1", OrgID: "o1", IP: "1.2.3.4"}, "u:u1"},
		{"org wins over ip", LimitKey{OrgID: "o1", IP: "1.2.3.4"}, "o:o1"},
		{"ip only", LimitKey{IP: "1.2.3.4"}, "ip:1.2.3.4"},
		{"tenant only", LimitKey{TenantID: "t1"}, "t:t1|anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveKey(tt.key))
		})
	}
}

func TestKeyFromClaims(t *testing.T) {
	k := KeyFromClaims(IdentityClaims{Sub: " u1 ", OrgID: "o1"}, "10.0.0.1", "acme")
	assert.Equal(t, "t:acme|u:u1", k.String())
}
