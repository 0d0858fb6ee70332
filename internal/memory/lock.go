package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout 等待会话锁超时（上下文被取消）
var ErrLockTimeout = errors.New("memory: conversation lock not acquired")

// Locker 按会话串行化 触发判定 → 摘要 → 写入
type Locker interface {
	// Lock 阻塞直到获得锁或 ctx 结束，返回释放函数
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey 会话锁的键
func LockKey(conversationID string) string {
	return "memory:conversation:" + conversationID
}

// LocalLocker 进程内按键互斥，适用于单实例部署
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock 实现 Locker
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// unlockScript 仅当值与持有者令牌一致时删除，避免误删他人续占的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 Redis SET NX PX 的分布式锁，适用于多实例部署
type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisLocker 创建分布式锁
func NewRedisLocker(client redis.UniversalClient, ttl, retryInterval time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retryInterval: retryInterval}
}

// Lock 实现 Locker
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("获取会话锁失败: %w", err)
		}
		if ok {
			return func() {
				// 使用独立上下文，调用方上下文取消后仍能释放
				releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
