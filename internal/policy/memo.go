package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"go.uber.org/zap"
)

// PolicyRepository - источник наборов политик (YAML-файлы или Postgres).
type PolicyRepository interface {
	GetAllPolicySets(ctx context.Context) ([]domain.PolicySet, error)
}

// Store - in-memory кэш наборов политик. В рантайме шлюз обращается только к памяти,
// репозиторий используется лишь в Refresh().
type Store struct {
	mu   sync.RWMutex
	sets map[string]domain.PolicySet

	repo   PolicyRepository
	rdb    *redis.Client // опционально: оповещение других инстансов
	logger *zap.Logger
}

func NewStore(repo PolicyRepository, rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sets:   make(map[string]domain.PolicySet),
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("policy-store"),
	}
}

// Get - Hot Path. Неизвестное имя = ok=false, решение принимает вызывающий.
func (s *Store) Get(name string) (domain.PolicySet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[name]
	return set, ok
}

func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sets))
	for n := range s.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Refresh выполняет полную перезагрузку наборов. При ошибке старый кэш сохраняется.
func (s *Store) Refresh(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	loaded, err := s.repo.GetAllPolicySets(ctx)
	if err != nil {
		return fmt.Errorf("policy: load sets: %w", err)
	}

	next := make(map[string]domain.PolicySet, len(loaded))
	for _, set := range loaded {
		if err := ValidateSet(set); err != nil {
			return err
		}
		if _, dup := next[set.Name]; dup {
			return fmt.Errorf("policy: duplicate policy set %q", set.Name)
		}
		next[set.Name] = set
	}

	s.mu.Lock()
	s.sets = next
	s.mu.Unlock()

	s.logger.Info("policy cache refreshed", zap.Int("count", len(next)))
	return nil
}

// Put добавляет или заменяет набор (для тестов и программной настройки).
func (s *Store) Put(set domain.PolicySet) error {
	if err := ValidateSet(set); err != nil {
		return err
	}
	s.mu.Lock()
	s.sets[set.Name] = set
	s.mu.Unlock()
	return nil
}

// PublishUpdate оповещает остальные инстансы о необходимости Refresh.
func (s *Store) PublishUpdate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, "reload").Err()
}

// ValidateSet проверяет набор при загрузке: эффекты, операторы, id.
func ValidateSet(set domain.PolicySet) error {
	if set.Name == "" {
		return fmt.Errorf("policy: policy set without name")
	}
	switch set.DefaultEffect {
	case "", domain.EffectAllow, domain.EffectDeny:
	default:
		return fmt.Errorf("policy: set %q: unknown default effect %q", set.Name, set.DefaultEffect)
	}
	for _, r := range set.Rules {
		if r.ID == "" {
			return fmt.Errorf("policy: set %q: rule without id", set.Name)
		}
		if r.Effect != domain.EffectAllow && r.Effect != domain.EffectDeny {
			return fmt.Errorf("policy: rule %q: unknown effect %q", r.ID, r.Effect)
		}
		for _, c := range r.Conditions {
			switch c.Operator {
			case domain.OpEquals, domain.OpContains, domain.OpIn, domain.OpMatches, domain.OpExists:
			default:
				return fmt.Errorf("policy: rule %q: unknown operator %q", r.ID, c.Operator)
			}
		}
	}
	return nil
}
