package domain

type AgentStatus string

const (
	StatusActive  AgentStatus = "active"  // Полный доступ
	StatusBlocked AgentStatus = "blocked" // Kill-switch (блокировка)
	StatusSandbox AgentStatus = "sandbox" // Безопасный режим (upstream не вызывается)
)

// ExecutionMode - как был исполнен вызов, пишется в аудит.
type ExecutionMode string

const (
	ModeLive    ExecutionMode = "LIVE"
	ModeSandbox ExecutionMode = "SANDBOX"
)

// AgentState - ответ админского API о состоянии агента.
type AgentState struct {
	ID     string      `json:"id"`
	Status AgentStatus `json:"status"`
}
