package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultTimeout          = 10 * time.Second
	MinTimeout              = time.Second
	MaxTimeout              = 120 * time.Second
	DefaultMaxResponseBytes = 512_000
	MinResponseBytes        = 10_000
	MaxResponseBytes        = 5_000_000

	DefaultUserAgent = "spaceai-gateway/egress"
	defaultAccept    = "application/json, text/plain;q=0.9, */*;q=0.1"

	errorBodyLimit = 1200
)

type ProxyRequestConfig struct {
	BaseURL          string
	Path             string
	Method           string
	Headers          map[string]string
	Body             any
	Auth             Credential
	Timeout          time.Duration
	MaxResponseBytes int64
	AllowedHosts     []string
	AllowHTTP        bool
	AllowPrivateIPs  bool
	UserAgent        string
}

type ProxyResponse struct {
	OK          bool              `json:"ok"`
	Status      int               `json:"status"`
	ContentType string            `json:"content_type"`
	Body        any               `json:"body"`
	Bytes       int               `json:"bytes"`
	Headers     map[string]string `json:"-"`
}

// Executor выполняет исходящие запросы к провайдерам.
// Редиректы отключены на уровне клиента: любой 3xx считается ошибкой.
type Executor struct {
	client *http.Client
	logger *zap.Logger
}

func NewExecutor(client *http.Client, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &http.Client{}
	if client != nil {
		*c = *client
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	// таймаут задается через контекст на каждый запрос
	c.Timeout = 0
	return &Executor{client: c, logger: logger.Named("egress")}
}

// ExecuteProxyRequest - разовый запрос через новый Executor. Шлюз держит свой Executor
// и вызывает Execute напрямую.
func ExecuteProxyRequest(ctx context.Context, cfg ProxyRequestConfig) (*ProxyResponse, error) {
	return NewExecutor(nil, nil).Execute(ctx, cfg)
}

func (e *Executor) Execute(ctx context.Context, cfg ProxyRequestConfig) (*ProxyResponse, error) {
	target, err := buildURL(cfg.BaseURL, cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := AssertSafeURL(target, SafetyConfig{
		AllowedHosts:    cfg.AllowedHosts,
		AllowHTTP:       cfg.AllowHTTP,
		AllowPrivateIPs: cfg.AllowPrivateIPs,
	}); err != nil {
		return nil, err
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method: %s", cfg.Method)
	}

	timeout := ClampTimeout(cfg.Timeout)
	maxBytes := ClampResponseBytes(cfg.MaxResponseBytes)

	var body io.Reader
	var payload []byte
	if method != http.MethodGet && method != http.MethodDelete && cfg.Body != nil {
		payload, err = json.Marshal(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range buildHeaders(cfg) {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.transportError(ctx, err, timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, &RedirectBlockedError{Status: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, e.transportError(ctx, err, timeout)
	}
	text := string(raw)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	e.logger.Debug("upstream response",
		zap.String("host", target.Host),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upErr := &UpstreamError{Status: resp.StatusCode, Body: truncate(text, errorBodyLimit)}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &ThrottleError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Cause: upErr}
		}
		return nil, upErr
	}

	var parsed any = text
	if strings.Contains(contentType, "application/json") || strings.Contains(contentType, "+json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			parsed = v
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	return &ProxyResponse{
		OK:          true,
		Status:      resp.StatusCode,
		ContentType: contentType,
		Body:        parsed,
		Bytes:       len(raw),
		Headers:     headers,
	}, nil
}

func (e *Executor) transportError(parent context.Context, err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("upstream request failed: %w", err)
}

// buildURL склеивает путь базового URL и путь инструмента; query берется из path.
func buildURL(baseURL, path string) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("Path must start with \"/\": %s", path)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + ref.Path
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u, nil
}

func buildHeaders(cfg ProxyRequestConfig) map[string]string {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	headers := map[string]string{
		"user-agent": ua,
		"accept":     defaultAccept,
	}
	for k, v := range FilterHeaders(cfg.Headers) {
		headers[k] = v
	}

	switch cfg.Auth.Kind {
	case CredentialAPIKey:
		headers[strings.ToLower(cfg.Auth.HeaderName)] = SanitizeHeaderValue(cfg.Auth.Value)
	case CredentialBearer:
		headers["authorization"] = "Bearer " + SanitizeHeaderValue(cfg.Auth.Token)
	}
	return headers
}

func ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return min(max(d, MinTimeout), MaxTimeout)
}

func ClampResponseBytes(n int64) int64 {
	if n <= 0 {
		return DefaultMaxResponseBytes
	}
	return min(max(n, MinResponseBytes), MaxResponseBytes)
}

// parseRetryAfter понимает секунды и HTTP-дату.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
