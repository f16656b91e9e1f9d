package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных шлюза в Redis
	RedisNamespace = "spaceai:gw"
)

// Ключи для Sets (состояние агентов)
const (
	RedisKeyBlockedAgents = RedisNamespace + ":agents:blocked_set"
	RedisKeySandboxAgents = RedisNamespace + ":agents:sandbox_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanKillSwitch - сигналы "agent_id:on|off" для kill-switch.
	RedisChanKillSwitch   = RedisNamespace + ":agents:kill-switch-signal"
	RedisChanSandbox      = RedisNamespace + ":agents:sandbox-signal"
	RedisChanPolicyUpdate = RedisNamespace + ":policy-update"
)

// GetWarmupLockKey Генератор ключей для блокировок прогрева
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
