package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const warmupLockTTL = 30 * time.Second

// WarmupState заливает ids в пустой Redis set. Только один инстанс делает это
// под распределенной блокировкой; остальные выходят молча.
func WarmupState(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	ids []string,
	redisKey string,
	lockKey string,
) error {
	if rdb == nil || len(ids) == 0 {
		return nil
	}

	ok, err := rdb.SetNX(ctx, lockKey, "processing", warmupLockTTL).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}
	defer rdb.Del(context.WithoutCancel(ctx), lockKey)

	count, err := rdb.SCard(ctx, redisKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
	}
	if count > 0 {
		return nil
	}

	logger.Info("Redis set is empty, performing warm-up",
		zap.String("key", redisKey), zap.Int("count", len(ids)))

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return rdb.SAdd(ctx, redisKey, members...).Err()
}
