package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-governance-gateway/internal/audit"
	"github.com/xela07ax/spaceai-governance-gateway/internal/connectors"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/limits"
	"github.com/xela07ax/spaceai-governance-gateway/internal/policy"
	"github.com/xela07ax/spaceai-governance-gateway/internal/risk"
	"github.com/xela07ax/spaceai-governance-gateway/internal/safety"
	"go.uber.org/zap"
)

// Стадии конвейера; пишутся в Outcome.Stage, аудит и метрики отказов.
const (
	StageKillSwitch = "killswitch"
	StageRateLimit  = limits.StageRateLimit
	StageBudget     = limits.StageBudget
	StageAgentGuard = limits.StageAgentGuard
	StagePolicy     = "policy"
	StageContent    = "content"
	StageEgress     = "egress"
)

var ErrUnknownTool = errors.New("engine: unknown tool")

// ToolCall - один вызов инструмента от агента с уже проверенной личностью.
type ToolCall struct {
	Tool        string
	Claims      domain.IdentityClaims
	BearerToken string // входящий токен для forward_bearer
	UserToken   string // для user_oauth
	ClientIP    string
	TenantID    string
	AgentID     string // пусто = sub из claims
	WorkflowID  string
	Model       string
	Provider    string // учитывается, только если инструмент не привязан к провайдеру
	Arguments   any
}

type ContentSummary struct {
	RiskScore int      `json:"riskScore"`
	Labels    []string `json:"labels"`
	PIITypes  []string `json:"piiTypes,omitempty"`
}

// Outcome - итог конвейера. Отказ - это Allowed=false с заполненными Stage и Reason, а не ошибка.
type Outcome struct {
	Allowed        bool                       `json:"allowed"`
	Stage          string                     `json:"stage,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
	Mode           domain.ExecutionMode       `json:"mode"`
	AgentID        string                     `json:"agent_id,omitempty"`
	LimitKey       string                     `json:"limit_key"`
	TraceID        string                     `json:"trace_id"`
	Result         any                        `json:"result,omitempty"`
	UpstreamStatus int                        `json:"upstream_status,omitempty"`
	Preflight      *limits.PreflightResult    `json:"preflight,omitempty"`
	Decision       *policy.ValidationDecision `json:"decision,omitempty"`
	Content        ContentSummary             `json:"content"`
	Killed         bool                       `json:"killed,omitempty"`
}

type ContentOptions struct {
	Enabled        bool
	Transform      safety.TransformConfig
	RedactRequest  bool
	RedactResponse bool
}

// GatewayDeps - компоненты шлюза. nil Limits/Analyzer/KillSwitch/Sandbox отключают стадию.
type GatewayDeps struct {
	Limits     *limits.Engine
	Policies   *policy.Store
	Tools      map[string]*ToolRoute
	Registry   connectors.ProviderRegistry
	Executor   *ReliableExecutor
	KillSwitch *KillSwitchManager
	Sandbox    *SandboxManager
	Analyzer   *risk.Analyzer
	Auditor    audit.Auditor
	Metrics    *Metrics
	Content    ContentOptions
	UserAgent  string
	Logger     *zap.Logger
}

type Gateway struct {
	limits     *limits.Engine
	policies   *policy.Store
	tools      map[string]*ToolRoute
	registry   connectors.ProviderRegistry
	executor   *ReliableExecutor
	killSwitch *KillSwitchManager
	sandbox    *SandboxManager
	analyzer   *risk.Analyzer
	auditor    audit.Auditor
	metrics    *Metrics
	content    ContentOptions
	userAgent  string
	logger     *zap.Logger
}

func NewGateway(d GatewayDeps) *Gateway {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Policies == nil {
		d.Policies = policy.NewStore(nil, nil, d.Logger)
	}
	if d.Tools == nil {
		d.Tools = map[string]*ToolRoute{}
	}
	if d.Executor == nil {
		d.Executor = NewReliableExecutor(connectors.NewExecutor(nil, d.Logger), ReliabilitySettings{}, nil, d.Metrics, d.Logger)
	}
	return &Gateway{
		limits:     d.Limits,
		policies:   d.Policies,
		tools:      d.Tools,
		registry:   d.Registry,
		executor:   d.Executor,
		killSwitch: d.KillSwitch,
		sandbox:    d.Sandbox,
		analyzer:   d.Analyzer,
		auditor:    d.Auditor,
		metrics:    d.Metrics,
		content:    d.Content,
		userAgent:  d.UserAgent,
		logger:     d.Logger.Named("gateway"),
	}
}

func (g *Gateway) Tool(name string) (*ToolRoute, bool) {
	t, ok := g.tools[name]
	return t, ok
}

// ProcessToolCall - основной конвейер:
// kill switch -> preflight -> policy -> content -> sandbox|egress -> redaction ответа -> учет -> аудит.
// error возвращается только для неизвестного инструмента и сбоев исполнения.
func (g *Gateway) ProcessToolCall(ctx context.Context, call ToolCall) (out *Outcome, err error) {
	route, ok := g.tools[call.Tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Tool)
	}
	// без аргументов вход - пустой объект, required схемы проверяется и для него
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	start := time.Now()
	g.metrics.TotalRequests.WithLabelValues(route.Name).Inc()

	agentID := call.AgentID
	if agentID == "" {
		agentID = call.Claims.Sub
	}
	key := domain.ResolveKey(domain.KeyFromClaims(call.Claims, call.ClientIP, call.TenantID))
	workflow := WorkflowKey(key, call.WorkflowID)

	out = &Outcome{
		Mode:     domain.ModeLive,
		AgentID:  agentID,
		LimitKey: key,
		TraceID:  TraceIDFromContext(ctx),
		Content:  ContentSummary{Labels: []string{}},
	}
	event := audit.AuditEvent{
		ID:         uuid.New().String(),
		TraceID:    out.TraceID,
		LimitKey:   key,
		AgentID:    agentID,
		Tool:       route.Name,
		WorkflowID: call.WorkflowID,
		Timestamp:  start,
	}
	defer func() { g.finish(out, &event, start, err) }()

	// 1. Kill-Switch (самый дешевый, in-memory)
	if g.killSwitch != nil && g.killSwitch.IsBlocked(agentID) {
		g.deny(out, StageKillSwitch, fmt.Sprintf("Agent %s is blocked by kill switch", agentID))
		return out, nil
	}

	// 2. Admission control
	if g.limits != nil {
		pf := g.limits.Preflight(key, limits.PreflightOptions{
			WorkflowID:    workflow,
			EstimatedCost: route.EstimatedCost,
			Model:         call.Model,
		})
		out.Preflight = &pf
		if !pf.Allowed {
			g.deny(out, pf.DeniedBy, pf.Reason)
			return out, nil
		}
	}

	// 3. Policy decision
	reqCtx := requestContext(agentID, call)
	var set *domain.PolicySet
	if route.PolicySet != "" {
		s, found := g.policies.Get(route.PolicySet)
		if !found {
			g.deny(out, StagePolicy, fmt.Sprintf("Policy set %q not found", route.PolicySet))
			return out, nil
		}
		set = &s
	}
	decision := policy.Decide(policy.PolicyRequest{
		Claims:  call.Claims,
		Tool:    route.Name,
		Model:   call.Model,
		Input:   call.Arguments,
		Context: reqCtx,
	}, route.DecisionOptions(set))
	out.Decision = &decision
	if !decision.Allowed {
		g.deny(out, StagePolicy, decision.Reason)
		return out, nil
	}

	// 4. Content safety
	input := call.Arguments
	if g.content.Enabled && input != nil {
		tr := safety.TransformJSON(input, g.content.Transform)
		out.Content = summarize(tr.Classification, tr.Metadata)
		g.observeContent(tr.Metadata)

		if g.analyzer != nil {
			verdict := g.analyzer.Assess(ctx, agentID, tr.Classification)
			out.Killed = verdict.Killed
			if verdict.Block {
				g.deny(out, StageContent, verdict.Reason)
				return out, nil
			}
		}

		if route.ContentPolicySet != "" {
			cs, found := g.policies.Get(route.ContentPolicySet)
			if !found {
				g.deny(out, StageContent, fmt.Sprintf("Policy set %q not found", route.ContentPolicySet))
				return out, nil
			}
			contentCtx := make(map[string]any, len(reqCtx)+1)
			for k, v := range reqCtx {
				contentCtx[k] = v
			}
			contentCtx["content"] = out.Content.asMap()
			res := policy.EvaluatePolicies(cs, policy.PolicyRequest{
				Claims:  call.Claims,
				Tool:    route.Name,
				Model:   call.Model,
				Input:   input,
				Context: contentCtx,
			})
			if !res.Allowed {
				g.deny(out, StageContent, res.Reason)
				return out, nil
			}
		}

		if g.content.RedactRequest {
			input = tr.Value
		}
	}

	// 5. Sandbox vs Live
	var resp *connectors.ProxyResponse
	if g.sandbox != nil && g.sandbox.IsSandbox(agentID) {
		out.Mode = domain.ModeSandbox
		resp, err = connectors.Simulate(ctx, route.Name, input)
	} else {
		resp, err = g.egress(ctx, route, call, input, &event)
	}
	if err != nil {
		out.Stage = StageEgress
		out.Reason = err.Error()
		// неудачный вызов тоже расходует лимит вызовов workflow
		if g.limits != nil {
			g.limits.RecordFailedCall(workflow)
		}
		return out, err
	}

	// 6. Redaction ответа
	out.Allowed = true
	out.UpstreamStatus = resp.Status
	out.Result = resp.Body
	if g.content.Enabled && g.content.RedactResponse && resp.Body != nil {
		tr := safety.TransformJSON(resp.Body, g.content.Transform)
		out.Result = tr.Value
		g.observeContent(tr.Metadata)
	}

	// 7. Учет
	if g.limits != nil {
		cost := route.Cost
		if out.Mode == domain.ModeSandbox {
			cost = 0
		}
		g.limits.RecordUsage(key, limits.UsageInput{
			Cost:       cost,
			Model:      call.Model,
			Tool:       route.Name,
			WorkflowID: workflow,
		})
		event.Cost = cost
	}
	return out, nil
}

func (g *Gateway) egress(ctx context.Context, route *ToolRoute, call ToolCall, input any, event *audit.AuditEvent) (*connectors.ProxyResponse, error) {
	providerKey := route.Provider
	if providerKey == "" {
		providerKey = call.Provider
	}
	provider, err := connectors.ResolveProvider(g.registry, providerKey)
	if err != nil {
		return nil, err
	}
	event.Provider = provider.Key

	cred, err := connectors.ResolveAuth(provider.Auth, connectors.AuthContext{
		BearerToken:  call.BearerToken,
		ServiceToken: provider.ServiceToken,
		UserToken:    call.UserToken,
	})
	if err != nil {
		return nil, err
	}

	req := provider.Request(route.Method, route.Path, input, cred)
	req.UserAgent = g.userAgent
	return g.executor.Execute(ctx, provider.Key, req)
}

func (g *Gateway) deny(out *Outcome, stage, reason string) {
	out.Allowed = false
	out.Stage = stage
	out.Reason = reason
	g.metrics.Denials.WithLabelValues(stage).Inc()
	g.logger.Info("tool call denied",
		zap.String("trace_id", out.TraceID),
		zap.String("agent_id", out.AgentID),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
}

// finish дописывает аудит и метрики для любого исхода.
func (g *Gateway) finish(out *Outcome, event *audit.AuditEvent, start time.Time, err error) {
	event.Mode = string(out.Mode)
	event.Stage = out.Stage
	event.Reason = out.Reason
	event.RiskScore = out.Content.RiskScore
	event.PIITypes = out.Content.PIITypes
	event.Labels = out.Content.Labels
	event.UpstreamStatus = out.UpstreamStatus
	event.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		event.Status = audit.StatusFailed
		event.Error = err.Error()
		g.metrics.Denials.WithLabelValues(StageEgress).Inc()
		g.logger.Warn("tool call failed",
			zap.String("trace_id", out.TraceID),
			zap.String("tool", event.Tool),
			zap.Error(err),
		)
	case out.Allowed && out.Mode == domain.ModeSandbox:
		event.Status = audit.StatusIntercepted
	case out.Allowed:
		event.Status = audit.StatusSuccess
	case out.Stage == StageKillSwitch || out.Killed:
		event.Status = audit.StatusBlocked
	default:
		event.Status = audit.StatusDenied
	}

	g.metrics.RequestDuration.WithLabelValues(event.Tool, event.Status).Observe(time.Since(start).Seconds())
	if g.auditor == nil {
		return
	}
	g.auditor.Log(*event)
	if p, ok := g.auditor.(interface{ Pending() int }); ok {
		g.metrics.AuditBufferFill.Set(float64(p.Pending()))
	}
}

func (g *Gateway) observeContent(md safety.ContentMetadata) {
	g.metrics.RiskScore.Observe(float64(md.RiskScore))
	for _, t := range md.PIITypesDetected {
		g.metrics.PIIMatches.WithLabelValues(string(t)).Inc()
	}
}

// EndWorkflow закрывает workflow вызывающего в agent guard. key - его LimitKey.
func (g *Gateway) EndWorkflow(key, workflowID string) {
	if g.limits != nil && workflowID != "" {
		g.limits.EndWorkflow(WorkflowKey(key, workflowID))
	}
}

// WorkflowKey - id workflow в пространстве ключа лимитов: одинаковые id разных
// вызывающих не делят счетчики agent guard.
func WorkflowKey(key, workflowID string) string {
	if workflowID == "" {
		return ""
	}
	return key + "|wf:" + workflowID
}

func (g *Gateway) UsageSummary(key string) (limits.UsageSummary, bool) {
	if g.limits == nil {
		return limits.UsageSummary{}, false
	}
	return g.limits.UsageSummary(key)
}

func (g *Gateway) KillSwitch() *KillSwitchManager { return g.killSwitch }
func (g *Gateway) Sandbox() *SandboxManager       { return g.sandbox }
func (g *Gateway) Policies() *policy.Store        { return g.policies }

// requestContext - дополнительные поля для dotted path в политиках.
func requestContext(agentID string, call ToolCall) map[string]any {
	m := make(map[string]any, 4)
	if agentID != "" {
		m["agent_id"] = agentID
	}
	if call.WorkflowID != "" {
		m["workflow_id"] = call.WorkflowID
	}
	if call.TenantID != "" {
		m["tenant_id"] = call.TenantID
	}
	if call.ClientIP != "" {
		m["client_ip"] = call.ClientIP
	}
	return m
}

func summarize(c safety.ClassificationResult, md safety.ContentMetadata) ContentSummary {
	s := ContentSummary{RiskScore: c.RiskScore, Labels: c.LabelNames()}
	if s.Labels == nil {
		s.Labels = []string{}
	}
	for _, t := range md.PIITypesDetected {
		s.PIITypes = append(s.PIITypes, string(t))
	}
	return s
}

func (s ContentSummary) asMap() map[string]any {
	labels := make([]any, len(s.Labels))
	for i, l := range s.Labels {
		labels[i] = l
	}
	types := make([]any, len(s.PIITypes))
	for i, t := range s.PIITypes {
		types[i] = t
	}
	return map[string]any{
		"riskScore": s.RiskScore,
		"labels":    labels,
		"piiTypes":  types,
	}
}
