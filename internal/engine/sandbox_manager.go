package engine

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"go.uber.org/zap"
)

// SandboxManager - агенты в безопасном режиме: вызовы проходят все проверки,
// но вместо апстрима получают симулированный ответ.
type SandboxManager struct {
	state *agentStateSet
}

func NewSandboxManager(rdb *redis.Client, store AgentStatusStore, seeds []string, logger *zap.Logger) *SandboxManager {
	return &SandboxManager{
		state: newAgentStateSet("sandbox", domain.StatusSandbox,
			infra.RedisKeySandboxAgents, infra.RedisChanSandbox, rdb, store, seeds, logger),
	}
}

// Init загружает состояние всех "песочных" агентов при старте шлюза
func (sm *SandboxManager) Init(ctx context.Context) error { return sm.state.init(ctx) }

// StartListener подписывается на изменения режима Sandbox в реальном времени
func (sm *SandboxManager) StartListener(ctx context.Context) { sm.state.listen(ctx) }

// IsSandbox - максимально быстрый метод для проверки в Hot Path
func (sm *SandboxManager) IsSandbox(agentID string) bool { return sm.state.has(agentID) }

func (sm *SandboxManager) Enable(ctx context.Context, agentID string) error {
	return sm.state.set(ctx, agentID, true)
}

func (sm *SandboxManager) Disable(ctx context.Context, agentID string) error {
	return sm.state.set(ctx, agentID, false)
}

func (sm *SandboxManager) Agents() []string { return sm.state.list() }
