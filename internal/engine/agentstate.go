package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"go.uber.org/zap"
)

var ErrEmptyAgentID = errors.New("engine: empty agent id")

// AgentStatusStore - долговременное хранилище статусов агентов (Postgres).
type AgentStatusStore interface {
	AgentsByStatus(ctx context.Context, status domain.AgentStatus) ([]string, error)
	SetStatus(ctx context.Context, id string, status domain.AgentStatus) error
}

// agentStateSet - множество агентов в одном статусе.
// L1 (RAM) читается в hot path, L2 (Redis set) общий для инстансов,
// изменения разлетаются сигналами "agent_id:on|off".
type agentStateSet struct {
	name     string
	status   domain.AgentStatus
	redisKey string
	channel  string
	seeds    []string

	rdb    *redis.Client
	store  AgentStatusStore
	logger *zap.Logger

	mu     sync.RWMutex
	agents map[string]struct{}
}

func newAgentStateSet(name string, status domain.AgentStatus, redisKey, channel string,
	rdb *redis.Client, store AgentStatusStore, seeds []string, logger *zap.Logger) *agentStateSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &agentStateSet{
		name:     name,
		status:   status,
		redisKey: redisKey,
		channel:  channel,
		seeds:    append([]string(nil), seeds...),
		rdb:      rdb,
		store:    store,
		logger:   logger.With(zap.String("mod", name)),
		agents:   make(map[string]struct{}),
	}
}

func (s *agentStateSet) has(id string) bool {
	if id == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.agents[id]
	return ok
}

func (s *agentStateSet) apply(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.agents[id] = struct{}{}
	} else {
		delete(s.agents, id)
	}
}

func (s *agentStateSet) list() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.agents))
	for id := range s.agents {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// init собирает состояние: seeds из конфига ∪ БД ∪ Redis set. Вызывается при старте и после переподключения.
func (s *agentStateSet) init(ctx context.Context) error {
	ids := append([]string(nil), s.seeds...)
	if s.store != nil {
		stored, err := s.store.AgentsByStatus(ctx, s.status)
		if err != nil {
			return fmt.Errorf("%s: load agents from store: %w", s.name, err)
		}
		ids = append(ids, stored...)
	}

	if err := WarmupState(ctx, s.rdb, s.logger, ids, s.redisKey, infra.GetWarmupLockKey(s.name)); err != nil {
		s.logger.Warn("warm-up failed", zap.Error(err))
	}

	if s.rdb != nil {
		members, err := s.rdb.SMembers(ctx, s.redisKey).Result()
		if err != nil {
			return fmt.Errorf("%s: read redis set: %w", s.name, err)
		}
		ids = append(ids, members...)
	}

	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}
	s.mu.Lock()
	s.agents = next
	s.mu.Unlock()

	s.logger.Info("agent state loaded", zap.Int("count", len(next)))
	return nil
}

// set меняет L1 сразу, затем L2, сигнал и БД. Ошибки L2/БД не откатывают L1.
func (s *agentStateSet) set(ctx context.Context, id string, on bool) error {
	if id == "" {
		return ErrEmptyAgentID
	}
	s.apply(id, on)

	var errs []error
	if s.rdb != nil {
		pipe := s.rdb.TxPipeline()
		if on {
			pipe.SAdd(ctx, s.redisKey, id)
		} else {
			pipe.SRem(ctx, s.redisKey, id)
		}
		pipe.Publish(ctx, s.channel, FormatStateSignal(id, on))
		if _, err := pipe.Exec(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: redis: %w", s.name, err))
		}
	}
	if s.store != nil {
		status := domain.StatusActive
		if on {
			status = s.status
		}
		if err := s.store.SetStatus(ctx, id, status); err != nil {
			errs = append(errs, fmt.Errorf("%s: store: %w", s.name, err))
		}
	}

	s.logger.Info("agent state changed", zap.String("agent_id", id), zap.Bool("on", on))
	return errors.Join(errs...)
}

// listen блокирует до отмены ctx. Без Redis сразу возвращается.
func (s *agentStateSet) listen(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	ListenSignals(ctx, s.rdb, s.logger, s.channel, s.init, func(payload string) {
		id, on, ok := ParseStateSignal(payload)
		if !ok {
			s.logger.Error("invalid signal format", zap.String("payload", payload))
			return
		}
		s.apply(id, on)
	})
}
