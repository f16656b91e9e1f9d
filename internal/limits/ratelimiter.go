package limits

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type RateLimitResult struct {
	Allowed       bool      `json:"allowed"`
	Remaining     int       `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
	RetryAfterSec int       `json:"retry_after_sec,omitempty"`
}

// RateLimiter - скользящее окно в памяти процесса. Ключ = ResolveKey(LimitKey).
type RateLimiter struct {
	cfg    RateLimitConfig
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	windows map[string][]time.Time

	sweeper *sweeper
}

func NewRateLimiter(cfg RateLimitConfig, clock Clock, logger *zap.Logger) (*RateLimiter, error) {
	if cfg.Window <= 0 || cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("%w: rate limit window and max_requests must be positive", ErrInvalidConfig)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &RateLimiter{
		cfg:     cfg,
		clock:   clock,
		logger:  logger.Named("ratelimit"),
		windows: make(map[string][]time.Time),
	}
	rl.sweeper = newSweeper("ratelimit", 2*cfg.Window, rl.Sweep, rl.logger)
	return rl, nil
}

func (rl *RateLimiter) Check(key string) RateLimitResult {
	now := rl.clock.Now()
	windowStart := now.Add(-rl.cfg.Window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	stamps := prune(rl.windows[key], windowStart)

	if len(stamps) >= rl.cfg.MaxRequests {
		rl.windows[key] = stamps
		resetAt := stamps[0].Add(rl.cfg.Window)
		retry := int(math.Ceil(resetAt.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return RateLimitResult{
			Allowed:       false,
			Remaining:     0,
			ResetAt:       resetAt,
			RetryAfterSec: retry,
		}
	}

	stamps = append(stamps, now)
	rl.windows[key] = stamps
	return RateLimitResult{
		Allowed:   true,
		Remaining: rl.cfg.MaxRequests - len(stamps),
		ResetAt:   now.Add(rl.cfg.Window),
	}
}

// Sweep удаляет просроченные отметки и пустые ключи. Возвращает число удаленных ключей.
func (rl *RateLimiter) Sweep() int {
	windowStart := rl.clock.Now().Add(-rl.cfg.Window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, stamps := range rl.windows {
		stamps = prune(stamps, windowStart)
		if len(stamps) == 0 {
			delete(rl.windows, key)
			removed++
			continue
		}
		rl.windows[key] = stamps
	}
	return removed
}

// Keys - число отслеживаемых ключей.
func (rl *RateLimiter) Keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *RateLimiter) Start() { rl.sweeper.Start() }
func (rl *RateLimiter) Stop()  { rl.sweeper.Stop() }

// prune оставляет только отметки строго позже start. Отметки упорядочены по времени.
func prune(stamps []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(start) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
