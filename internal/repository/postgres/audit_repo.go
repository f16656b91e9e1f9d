package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-governance-gateway/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

var auditColumns = []string{
	"id", "trace_id", "limit_key", "agent_id", "tool", "provider", "workflow_id",
	"stage", "status", "reason", "mode", "risk_score", "pii_types",
	"upstream_status", "cost", "duration_ms", "error", "timestamp",
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	query, vals, err := buildAuditInsert(events)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: audit batch insert: %w", err)
	}
	return nil
}

// buildAuditInsert строит один multi-row INSERT на всю пачку.
func buildAuditInsert(events []audit.AuditEvent) (string, []any, error) {
	numFields := len(auditColumns)
	var sb strings.Builder
	vals := make([]any, 0, len(events)*numFields)

	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < numFields; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*numFields+j+1)
		}
		sb.WriteByte(')')

		piiTypes, err := json.Marshal(e.PIITypes)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode pii types: %w", err)
		}

		vals = append(vals,
			e.ID, e.TraceID, e.LimitKey, e.AgentID, e.Tool, e.Provider, e.WorkflowID,
			e.Stage, e.Status, e.Reason, e.Mode, e.RiskScore, piiTypes,
			e.UpstreamStatus, e.Cost, e.DurationMs, e.Error, e.Timestamp,
		)
	}

	query := fmt.Sprintf("INSERT INTO audit_logs (%s) VALUES %s",
		strings.Join(auditColumns, ", "), sb.String())
	return query, vals, nil
}
