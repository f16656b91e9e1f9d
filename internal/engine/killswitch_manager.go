package engine

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"go.uber.org/zap"
)

// KillSwitchManager - мгновенная блокировка агентов. Реализует risk.KillSwitchProvider.
type KillSwitchManager struct {
	state *agentStateSet
}

// NewKillSwitchManager: rdb и store опциональны; seeds - агенты, заблокированные конфигом.
func NewKillSwitchManager(rdb *redis.Client, store AgentStatusStore, seeds []string, logger *zap.Logger) *KillSwitchManager {
	return &KillSwitchManager{
		state: newAgentStateSet("killswitch", domain.StatusBlocked,
			infra.RedisKeyBlockedAgents, infra.RedisChanKillSwitch, rdb, store, seeds, logger),
	}
}

// Init загружает текущее состояние блокировок при старте сервиса
func (m *KillSwitchManager) Init(ctx context.Context) error { return m.state.init(ctx) }

// StartListener слушает сигналы kill-switch до отмены ctx.
func (m *KillSwitchManager) StartListener(ctx context.Context) { m.state.listen(ctx) }

// IsBlocked - Hot Path, только RAM.
func (m *KillSwitchManager) IsBlocked(agentID string) bool { return m.state.has(agentID) }

func (m *KillSwitchManager) MarkAsBlocked(ctx context.Context, agentID string) error {
	return m.state.set(ctx, agentID, true)
}

func (m *KillSwitchManager) Unblock(ctx context.Context, agentID string) error {
	return m.state.set(ctx, agentID, false)
}

func (m *KillSwitchManager) Blocked() []string { return m.state.list() }
