package postgres

/*
policy_repo.go хранит наборы правил в PostgreSQL.
Проверка правил идет в памяти шлюза (policy.Store), сюда ходим только при загрузке.
*/

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(ctx context.Context, connString string) (*PolicyRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: policy pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: policy pool ping: %w", err)
	}
	return &PolicyRepo{pool: pool}, nil
}

func (r *PolicyRepo) Close() { r.pool.Close() }

// GetAllPolicySets выполняет "холодную загрузку" всех наборов правил.
func (r *PolicyRepo) GetAllPolicySets(ctx context.Context) ([]domain.PolicySet, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, default_effect, rules FROM policy_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load policy sets: %w", err)
	}

	sets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PolicySet, error) {
		var (
			name, effect string
			rules        []byte
		)
		if err := row.Scan(&name, &effect, &rules); err != nil {
			return domain.PolicySet{}, err
		}
		return decodePolicySet(name, effect, rules)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan policy sets: %w", err)
	}
	return sets, nil
}

// UpsertPolicySet создает или заменяет набор правил целиком.
func (r *PolicyRepo) UpsertPolicySet(ctx context.Context, set domain.PolicySet) error {
	rules, err := json.Marshal(set.Rules)
	if err != nil {
		return fmt.Errorf("postgres: encode rules: %w", err)
	}
	query := `
		INSERT INTO policy_sets (name, default_effect, rules, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET default_effect = EXCLUDED.default_effect, rules = EXCLUDED.rules, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, set.Name, string(set.Default()), rules); err != nil {
		return fmt.Errorf("postgres: failed to upsert policy set: %w", err)
	}
	return nil
}

func decodePolicySet(name, effect string, rules []byte) (domain.PolicySet, error) {
	set := domain.PolicySet{Name: name, DefaultEffect: domain.PolicyEffect(effect)}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &set.Rules); err != nil {
			return domain.PolicySet{}, fmt.Errorf("policy set %q: invalid rules: %w", name, err)
		}
	}
	return set, nil
}
