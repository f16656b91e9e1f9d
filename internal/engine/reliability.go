package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/spaceai-governance-gateway/internal/connectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrCircuitOpen = errors.New("egress: circuit breaker is open")

// Egress - исполнитель исходящих запросов (connectors.Executor).
type Egress interface {
	Execute(ctx context.Context, cfg connectors.ProxyRequestConfig) (*connectors.ProxyResponse, error)
}

type ReliabilitySettings struct {
	MaxRequests      uint32        // пропускная способность half-open
	Interval         time.Duration // период сброса счетчиков в closed
	Timeout          time.Duration // сколько держать open
	FailureThreshold uint32        // подряд идущих отказов до open
}

// ProviderLimit - исходящий token bucket на провайдера. RPS <= 0 = без лимита.
type ProviderLimit struct {
	RPS   float64
	Burst int
}

// ReliableExecutor - Circuit Breaker и rate limiter на каждого провайдера вокруг Egress.
// Повторов нет: вызов инструмента не обязан быть идемпотентным.
type ReliableExecutor struct {
	next     Egress
	settings ReliabilitySettings
	limits   map[string]ProviderLimit
	metrics  *Metrics
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
}

func NewReliableExecutor(next Egress, settings ReliabilitySettings, limits map[string]ProviderLimit, metrics *Metrics, logger *zap.Logger) *ReliableExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	return &ReliableExecutor{
		next:     next,
		settings: settings,
		limits:   limits,
		metrics:  metrics,
		logger:   logger.Named("reliability"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *ReliableExecutor) Execute(ctx context.Context, provider string, cfg connectors.ProxyRequestConfig) (*connectors.ProxyResponse, error) {
	cb, limiter := r.guards(provider)

	// 1. Rate Limiter: не ждем, сразу отвечаем throttle
	if limiter != nil {
		res := limiter.Reserve()
		if !res.OK() {
			return nil, &connectors.ThrottleError{
				RetryAfter: time.Second,
				Cause:      fmt.Errorf("egress: provider %s rate limit exceeded", provider),
			}
		}
		if d := res.Delay(); d > 0 {
			res.Cancel()
			return nil, &connectors.ThrottleError{
				RetryAfter: d,
				Cause:      fmt.Errorf("egress: provider %s rate limit exceeded", provider),
			}
		}
	}

	// 2. Circuit Breaker
	out, err := cb.Execute(func() (interface{}, error) {
		return r.next.Execute(ctx, cfg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: provider %s", ErrCircuitOpen, provider)
		}
		return nil, err
	}
	resp, _ := out.(*connectors.ProxyResponse)
	return resp, nil
}

// State - текущее состояние предохранителя провайдера.
func (r *ReliableExecutor) State(provider string) gobreaker.State {
	cb, _ := r.guards(provider)
	return cb.State()
}

func (r *ReliableExecutor) guards(provider string) (*gobreaker.CircuitBreaker, *rate.Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[provider]
	if !ok {
		cb = r.newBreaker(provider)
		r.breakers[provider] = cb

		if l, ok := r.limits[provider]; ok && l.RPS > 0 {
			burst := l.Burst
			if burst <= 0 {
				burst = 1
			}
			r.limiters[provider] = rate.NewLimiter(rate.Limit(l.RPS), burst)
		}
	}
	return cb, r.limiters[provider]
}

func (r *ReliableExecutor) newBreaker(provider string) *gobreaker.CircuitBreaker {
	threshold := r.settings.FailureThreshold
	r.metrics.CircuitBreakerState.WithLabelValues(provider).Set(float64(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: r.settings.MaxRequests,
		Interval:    r.settings.Interval,
		Timeout:     r.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			r.logger.Warn("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: countsAsSuccess,
	})
}

// countsAsSuccess: отказами апстрима считаются только 5xx, таймауты и транспортные ошибки.
// Ошибки вызывающей стороны (4xx, редирект, SSRF, отмена) предохранитель не открывают.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, connectors.ErrUnsafeURL) ||
		errors.Is(err, connectors.ErrRedirectBlocked) {
		return true
	}
	var upErr *connectors.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Status < 500
	}
	return false
}
