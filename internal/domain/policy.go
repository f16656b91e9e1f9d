package domain

// PolicyEffect определяет, что делать с запросом
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// DefaultPriority - приоритет правила, если он не задан. Меньше = раньше.
const DefaultPriority = 100

type ConditionOperator string

const (
	OpEquals   ConditionOperator = "equals"
	OpContains ConditionOperator = "contains"
	OpIn       ConditionOperator = "in"
	OpMatches  ConditionOperator = "matches"
	OpExists   ConditionOperator = "exists"
)

// PolicyCondition - одно условие правила.
// Field: шорткат (scope, permissions, roles, org_id, sub, tool, model) или dotted path.
type PolicyCondition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    any               `json:"value" yaml:"value"`
}

// PolicyRule - правило с приоритетом. Все условия объединяются по AND.
type PolicyRule struct {
	ID         string            `json:"id" yaml:"id"`
	Priority   *int              `json:"priority,omitempty" yaml:"priority,omitempty"`
	Effect     PolicyEffect      `json:"effect" yaml:"effect"`
	Conditions []PolicyCondition `json:"conditions" yaml:"conditions"`
	Reason     string            `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// EffectivePriority гарантирует дефолтный приоритет для незаданного поля.
func (r PolicyRule) EffectivePriority() int {
	if r.Priority == nil {
		return DefaultPriority
	}
	return *r.Priority
}

// PolicySet - набор правил и эффект по умолчанию (Zero Trust: deny).
type PolicySet struct {
	Name          string       `json:"name" yaml:"name"`
	Rules         []PolicyRule `json:"rules" yaml:"rules"`
	DefaultEffect PolicyEffect `json:"default_effect,omitempty" yaml:"default_effect,omitempty"`
}

// Default возвращает эффект по умолчанию; пустое значение = deny.
func (s PolicySet) Default() PolicyEffect {
	if s.DefaultEffect == "" {
		return EffectDeny
	}
	return s.DefaultEffect
}
