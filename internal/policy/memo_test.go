package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
)

const crmPolicies = `
name: crm
default_effect: deny
rules:
  - id: block-bulk-export
    priority: 10
    effect: deny
    reason: Bulk export is disabled
    conditions:
      - field: tool
        operator: equals
        value: crm.export
  - id: allow-readers
    effect: allow
    conditions:
      - field: scope
        operator: contains
        value: crm:read
      - field: model
        operator: in
        value: [gpt-4o, gpt-4o-mini]
`

const multiPolicies = `
policy_sets:
  - name: open
    default_effect: allow
  - name: closed
`

func writePolicies(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestFileRepository_LoadsSets(t *testing.T) {
	dir := writePolicies(t, map[string]string{
		"crm.yaml":   crmPolicies,
		"multi.yml":  multiPolicies,
		"README.txt": "ignored",
	})

	sets, err := NewFileRepository(dir).GetAllPolicySets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 3)
	assert.Equal(t, "crm", sets[0].Name)
	assert.Equal(t, 10, sets[0].Rules[0].EffectivePriority())
	assert.Equal(t, 100, sets[0].Rules[1].EffectivePriority())
	assert.Equal(t, "open", sets[1].Name)
	assert.Equal(t, domain.EffectDeny, sets[2].Default())
}

func TestStore_RefreshAndEvaluate(t *testing.T) {
	dir := writePolicies(t, map[string]string{"crm.yaml": crmPolicies})
	store := NewStore(NewFileRepository(dir), nil, nil)
	require.NoError(t, store.Refresh(context.Background()))

	set, ok := store.Get("crm")
	require.True(t, ok)

	claims := domain.IdentityClaims{Scope: []string{"crm:read"}}
	res := EvaluatePolicies(set, PolicyRequest{Claims: claims, Tool: "crm.lookup", Model: "gpt-4o"})
	assert.True(t, res.Allowed)
	assert.Equal(t, "Matched rule: allow-readers (allow)", res.Reason)

	res = EvaluatePolicies(set, PolicyRequest{Claims: claims, Tool: "crm.export", Model: "gpt-4o"})
	assert.False(t, res.Allowed)
	assert.Equal(t, "Bulk export is disabled", res.Reason)

	_, ok = store.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"crm"}, store.Names())
}

func TestStore_RefreshKeepsCacheOnError(t *testing.T) {
	dir := writePolicies(t, map[string]string{"crm.yaml": crmPolicies})
	store := NewStore(NewFileRepository(dir), nil, nil)
	require.NoError(t, store.Refresh(context.Background()))

	bad := "name: bad\nrules:\n  - id: r\n    effect: maybe\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o600))

	err := store.Refresh(context.Background())
	assert.ErrorContains(t, err, `unknown effect "maybe"`)
	_, ok := store.Get("crm")
	assert.True(t, ok)
}

func TestValidateSet(t *testing.T) {
	assert.Error(t, ValidateSet(domain.PolicySet{}))
	assert.Error(t, ValidateSet(domain.PolicySet{Name: "s", DefaultEffect: "maybe"}))
	assert.Error(t, ValidateSet(domain.PolicySet{Name: "s", Rules: []domain.PolicyRule{{Effect: domain.EffectAllow}}}))
	assert.Error(t, ValidateSet(domain.PolicySet{Name: "s", Rules: []domain.PolicyRule{
		{ID: "r", Effect: domain.EffectAllow, Conditions: []domain.PolicyCondition{{Field: "tool", Operator: "like"}}},
	}}))
	assert.NoError(t, ValidateSet(domain.PolicySet{Name: "s"}))
}

func TestStore_PublishUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	store := NewStore(nil, rdb, nil)
	require.NoError(t, store.PublishUpdate(ctx))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reload", msg.Payload)

	assert.NoError(t, NewStore(nil, nil, nil).PublishUpdate(ctx))
}

func TestStore_Put(t *testing.T) {
	store := NewStore(nil, nil, nil)
	require.NoError(t, store.Put(domain.PolicySet{Name: "inline", DefaultEffect: domain.EffectAllow}))
	assert.Error(t, store.Put(domain.PolicySet{}))
	require.NoError(t, store.Refresh(context.Background()))

	set, ok := store.Get("inline")
	require.True(t, ok)
	assert.Equal(t, domain.EffectAllow, set.Default())
}
