package businessflow

import (
	"fmt"

	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/utils"
)

// redisKey prefixes a cache key with the configured namespace
func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}

// balanceCacheKey is the cache slot for one company's ledger balance
func balanceCacheKey(cfg config.CacheConfig, companyID uint) string {
	return redisKey(cfg, fmt.Sprintf("%s:%d", utils.BalanceCacheKeyPrefix, companyID))
}

// velocityCacheKey is the sliding-window click counter for one session on one code
func velocityCacheKey(cfg config.CacheConfig, refCode, sessionID string) string {
	return redisKey(cfg, fmt.Sprintf("%s:%s:%s", utils.VelocityCacheKeyPrefix, refCode, sessionID))
}
