package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
)

// AgentRepo хранит долговременный статус агентов (kill switch / sandbox),
// Redis остается горячим слоем.
type AgentRepo struct {
	db *sql.DB
}

func NewAgentRepo(db *sql.DB) *AgentRepo {
	return &AgentRepo{db: db}
}

// SetStatus меняет основной статус (например, для Kill-switch)
func (r *AgentRepo) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	query := `
		INSERT INTO agents (id, status, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("postgres: failed to update status: %w", err)
	}
	return nil
}

// AgentsByStatus - id агентов с заданным статусом (прогрев кэшей при старте).
func (r *AgentRepo) AgentsByStatus(ctx context.Context, status domain.AgentStatus) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM agents WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
