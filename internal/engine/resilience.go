package engine

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-governance-gateway/internal/infra"
	"github.com/xela07ax/spaceai-governance-gateway/internal/policy"
	"go.uber.org/zap"
)

const (
	resubscribeAttempts = 5
	resubscribeDelay    = 200 * time.Millisecond
	resubscribeMaxDelay = 5 * time.Second
)

// ListenSignals - "живучая" подписка на канал Redis. После каждой успешной подписки
// вызывается onReconnect (пересинхронизация состояния), затем onMessage на каждое сообщение.
// Блокирует до отмены ctx.
func ListenSignals(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func(context.Context) error,
	onMessage func(payload string),
) {
	for ctx.Err() == nil {
		pubsub, err := subscribe(ctx, rdb, logger, channel)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pause(ctx, resubscribeMaxDelay)
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(ctx); err != nil {
				logger.Error("sync failed on reconnect", zap.String("chan", channel), zap.Error(err))
			}
		}

		consume(ctx, pubsub, onMessage)
		_ = pubsub.Close()
	}
}

// subscribe повторяет подписку с экспоненциальной задержкой.
func subscribe(ctx context.Context, rdb *redis.Client, logger *zap.Logger, channel string) (*redis.PubSub, error) {
	var pubsub *redis.PubSub
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(resubscribeAttempts),
		retry.Delay(resubscribeDelay),
		retry.MaxDelay(resubscribeMaxDelay),
		retry.DelayType(retry.BackOffDelay),
	).Do(func() error {
		ps := rdb.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			logger.Warn("subscribe attempt failed", zap.String("chan", channel), zap.Error(err))
			return err
		}
		pubsub = ps
		return nil
	})
	return pubsub, err
}

func consume(ctx context.Context, pubsub *redis.PubSub, onMessage func(string)) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return // канал закрыт, идем на переподключение
			}
			onMessage(msg.Payload)
		}
	}
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// FormatStateSignal - формат сигнала "agent_id:on|off".
func FormatStateSignal(agentID string, on bool) string {
	if on {
		return agentID + ":on"
	}
	return agentID + ":off"
}

// ParseStateSignal разбирает "agent_id:status". Разделитель - последнее двоеточие,
// поэтому id может содержать ':'. Статус: on/true или off/false.
func ParseStateSignal(payload string) (agentID string, on bool, ok bool) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 {
		return "", false, false
	}
	agentID = payload[:i]
	switch strings.ToLower(strings.TrimSpace(payload[i+1:])) {
	case "on", "true":
		return agentID, true, true
	case "off", "false":
		return agentID, false, true
	}
	return "", false, false
}

// ListenPolicyUpdates перечитывает наборы политик по сигналу другого инстанса.
func ListenPolicyUpdates(ctx context.Context, rdb *redis.Client, store *policy.Store, logger *zap.Logger) {
	if rdb == nil || store == nil {
		return
	}
	logger = logger.With(zap.String("mod", "policy-reload"))
	ListenSignals(ctx, rdb, logger, infra.RedisChanPolicyUpdate, store.Refresh, func(string) {
		if err := store.Refresh(ctx); err != nil {
			logger.Error("policy reload failed", zap.Error(err))
		}
	})
}
