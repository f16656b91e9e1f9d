package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/spaceai-governance-gateway/internal/connectors"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	HeaderWorkflowID = "X-Workflow-ID"
	HeaderAgentID    = "X-Agent-ID"
	HeaderUserToken  = "X-User-Token"
	HeaderAdminKey   = "X-Admin-Key"

	defaultMaxBodyBytes = 1 << 20
)

type ServerOptions struct {
	ResourceURL          string
	AuthorizationServers []string
	ScopesSupported      []string
	// TenantClaim - claim с идентификатором тенанта (префикс ключа лимитов)
	TenantClaim string
	// AdminKeyHash - bcrypt-хэш ключа админки; пусто = админские роуты не монтируются
	AdminKeyHash string
	MaxBodyBytes int64
}

// Server - HTTP-обвязка шлюза поверх Gateway.
type Server struct {
	router    *chi.Mux
	gateway   *Gateway
	validator auth.TokenValidator
	opts      ServerOptions
	logger    *zap.Logger
}

func NewServer(gw *Gateway, validator auth.TokenValidator, opts ServerOptions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		router:    chi.NewRouter(),
		gateway:   gw,
		validator: validator,
		opts:      opts,
		logger:    logger.Named("http"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// --- 2. Публичные роуты ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/.well-known/oauth-protected-resource", s.protectedResource)

	// --- 3. Вызовы инструментов (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		r.Post("/v1/tools/{tool}/invoke", s.invokeTool)
		r.Delete("/v1/workflows/{id}", s.endWorkflow)
	})

	// --- 4. Админка (kill-switch, sandbox, политики) ---
	if s.opts.AdminKeyHash == "" {
		return
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminOnly)

		r.Get("/agents", s.listAgents)
		if ks, sb := s.gateway.killSwitch, s.gateway.sandbox; ks != nil && sb != nil {
			r.Route("/agents/{id}", func(r chi.Router) {
				r.Post("/block", s.agentAction(domain.StatusBlocked, ks.MarkAsBlocked))
				r.Post("/unblock", s.agentAction(domain.StatusActive, ks.Unblock))
				r.Post("/sandbox", s.agentAction(domain.StatusSandbox, sb.Enable))
				r.Post("/unsandbox", s.agentAction(domain.StatusActive, sb.Disable))
			})
		}
		r.Post("/policies/reload", s.reloadPolicies)
		r.Get("/usage/{key}", s.usage)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type invokeRequest struct {
	Arguments any    `json:"arguments"`
	Model     string `json:"model,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

func (s *Server) invokeTool(w http.ResponseWriter, r *http.Request) {
	var body invokeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	claims, tenant := s.caller(r)
	out, err := s.gateway.ProcessToolCall(r.Context(), ToolCall{
		Tool:        chi.URLParam(r, "tool"),
		Claims:      claims,
		BearerToken: auth.BearerFromContext(r.Context()),
		UserToken:   r.Header.Get(HeaderUserToken),
		ClientIP:    clientIP(r),
		TenantID:    tenant,
		AgentID:     r.Header.Get(HeaderAgentID),
		WorkflowID:  r.Header.Get(HeaderWorkflowID),
		Model:       body.Model,
		Provider:    body.Provider,
		Arguments:   body.Arguments,
	})
	s.writeOutcome(w, out, err)
}

func (s *Server) writeOutcome(w http.ResponseWriter, out *Outcome, err error) {
	if errors.Is(err, ErrUnknownTool) {
		writeError(w, http.StatusNotFound, "unknown_tool", err.Error())
		return
	}
	if out != nil && out.Preflight != nil && out.Preflight.RateLimit != nil {
		rl := out.Preflight.RateLimit
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
	}

	if err != nil {
		status := egressStatus(err)
		var te *connectors.ThrottleError
		if errors.As(err, &te) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(te.RetryAfter)))
		}
		writeJSON(w, status, map[string]any{
			"error":  "egress_failed",
			"stage":  StageEgress,
			"reason": err.Error(),
		})
		return
	}

	if !out.Allowed {
		if out.Stage == StageRateLimit {
			if rl := out.Preflight.RateLimit; rl != nil {
				w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSec))
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":  "rate_limited",
				"stage":  out.Stage,
				"reason": out.Reason,
			})
			return
		}
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  "denied",
			"stage":  out.Stage,
			"reason": out.Reason,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":   out.Result,
		"content":  out.Content,
		"mode":     out.Mode,
		"trace_id": out.TraceID,
	})
}

// egressStatus: throttle и открытый предохранитель - 503, таймаут - 504, остальное - 502.
func egressStatus(err error) int {
	var te *connectors.ThrottleError
	switch {
	case errors.As(err, &te), errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, connectors.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func retryAfterSeconds(d time.Duration) int {
	sec := int((d + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

// endWorkflow закрывает только workflow самого вызывающего (ключ из проверенных claims).
func (s *Server) endWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, tenant := s.caller(r)
	key := domain.ResolveKey(domain.KeyFromClaims(claims, clientIP(r), tenant))
	s.gateway.EndWorkflow(key, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// caller - claims из проверенного токена и тенант из настроенного claim.
func (s *Server) caller(r *http.Request) (domain.IdentityClaims, string) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if s.opts.TenantClaim == "" {
		return claims, ""
	}
	return claims, claims.StringClaim(s.opts.TenantClaim)
}

func (s *Server) protectedResource(w http.ResponseWriter, r *http.Request) {
	servers := s.opts.AuthorizationServers
	if servers == nil {
		servers = []string{}
	}
	scopes := s.opts.ScopesSupported
	if scopes == nil {
		scopes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource":              s.opts.ResourceURL,
		"authorization_servers": servers,
		"scopes_supported":      scopes,
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAdminKey)
		if key == "" || bcrypt.CompareHashAndPassword([]byte(s.opts.AdminKeyHash), []byte(key)) != nil {
			s.logger.Warn("admin auth failure", zap.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) agentAction(status domain.AgentStatus, apply func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := url.PathUnescape(chi.URLParam(r, "id"))
		if err != nil || id == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "agent id is required")
			return
		}
		if err := apply(r.Context(), id); err != nil {
			// локальное состояние уже применено, не удалось распространить
			s.logger.Error("agent state change failed", zap.String("agent_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "state_sync_failed", err.Error())
			return
		}
		s.logger.Info("agent state changed by admin", zap.String("agent_id", id), zap.String("status", string(status)))
		writeJSON(w, http.StatusOK, domain.AgentState{ID: id, Status: status})
	}
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	resp := map[string][]string{"blocked": {}, "sandbox": {}}
	if ks := s.gateway.killSwitch; ks != nil {
		resp["blocked"] = ks.Blocked()
	}
	if sb := s.gateway.sandbox; sb != nil {
		resp["sandbox"] = sb.Agents()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) reloadPolicies(w http.ResponseWriter, r *http.Request) {
	store := s.gateway.policies
	if err := store.Refresh(r.Context()); err != nil {
		s.logger.Error("policy reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	if err := store.PublishUpdate(r.Context()); err != nil {
		s.logger.Warn("policy update signal failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"policy_sets": store.Names()})
}

func (s *Server) usage(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	summary, ok := s.gateway.UsageSummary(key)
	if !ok {
		writeError(w, http.StatusNotFound, "budget_disabled", "budget tracking is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "usage": summary})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	writeJSON(w, status, map[string]string{"error": code, "reason": reason})
}
