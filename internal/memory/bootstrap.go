package memory

import (
	"fmt"
	"strings"

	"chatmemory/internal/config"

	"github.com/redis/go-redis/v9"
)

// 锁模式
const (
	LockModeLocal = "local"
	LockModeRedis = "redis"
)

// BuildOptions 由配置组装引擎选项：兜底设置来源、会话锁、Token 预算
// rdb 仅在 lock.mode=redis 时使用
func BuildOptions(cfg config.MemoryConfig, users FirstUserReader, rdb redis.UniversalClient) (Options, error) {
	opts := OptionsFromConfig(cfg)

	fallback, err := NewFallbackSource(cfg.Fallback, users)
	if err != nil {
		return Options{}, err
	}
	opts.Fallback = fallback

	switch strings.ToLower(strings.TrimSpace(cfg.Lock.Mode)) {
	case "", LockModeLocal:
		opts.Locker = NewLocalLocker()
	case LockModeRedis:
		if rdb == nil {
			return Options{}, fmt.Errorf("memory.lock.mode=redis 需要启用 Redis")
		}
		opts.Locker = NewRedisLocker(rdb, cfg.Lock.LockTTL(), cfg.Lock.LockRetryInterval())
	default:
		return Options{}, fmt.Errorf("未知的会话锁模式: %s", cfg.Lock.Mode)
	}

	if cfg.MaxTranscriptTokens > 0 {
		counter, err := NewTiktokenCounter()
		if err != nil {
			return Options{}, fmt.Errorf("初始化 Token 计数器失败: %w", err)
		}
		opts.Budget.Counter = counter
	}
	return opts, nil
}
