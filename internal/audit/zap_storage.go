package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapStorage пишет аудит в структурированный лог, когда БД не настроена.
type ZapStorage struct {
	logger *zap.Logger
}

func NewZapStorage(logger *zap.Logger) *ZapStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapStorage{logger: logger.Named("audit")}
}

func (s *ZapStorage) WriteBatch(_ context.Context, events []AuditEvent) error {
	for _, e := range events {
		s.logger.Info("audit",
			zap.String("id", e.ID),
			zap.String("trace_id", e.TraceID),
			zap.String("limit_key", e.LimitKey),
			zap.String("agent_id", e.AgentID),
			zap.String("tool", e.Tool),
			zap.String("status", e.Status),
			zap.String("stage", e.Stage),
			zap.String("reason", e.Reason),
			zap.String("mode", e.Mode),
			zap.Int("risk_score", e.RiskScore),
			zap.Strings("pii_types", e.PIITypes),
			zap.Int("upstream_status", e.UpstreamStatus),
			zap.Float64("cost", e.Cost),
			zap.Int64("duration_ms", e.DurationMs),
			zap.Time("ts", e.Timestamp),
		)
	}
	return nil
}
