package audit

import "time"

const (
	StatusSuccess     = "SUCCESS"
	StatusDenied      = "DENIED"
	StatusBlocked     = "BLOCKED"
	StatusFailed      = "FAILED"
	StatusIntercepted = "INTERCEPTED" // sandbox
)

// AuditEvent - итог прохождения одного вызова инструмента через шлюз.
type AuditEvent struct {
	ID         string `json:"id"`       // UUID события
	TraceID    string `json:"trace_id"` // Сквозной ID запроса
	LimitKey   string `json:"limit_key"`
	AgentID    string `json:"agent_id"` // Кто делал
	Tool       string `json:"tool"`     // Что хотел сделать
	Provider   string `json:"provider,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`

	// Решение
	Stage  string `json:"stage,omitempty"` // стадия, которая отказала
	Reason string `json:"reason,omitempty"`
	Mode   string `json:"mode"` // "LIVE" или "SANDBOX"

	// Контент
	RiskScore int      `json:"risk_score"`
	PIITypes  []string `json:"pii_types,omitempty"`
	Labels    []string `json:"labels,omitempty"`

	// Результат
	Status         string    `json:"status"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Cost           float64   `json:"cost"`
	Timestamp      time.Time `json:"timestamp"`
	DurationMs     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
}
