package lock

import (
	"context"
	"sync"
	"time"

	"passkey-core/pkg/safe_random"

	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
// 用于跨实例去重：同一个智能账户同时只允许一次部署尝试。
type DistributedLock interface {
	// Acquire 尝试获取锁
	// key: 锁的唯一标识
	// ttl: 锁的过期时间
	// 返回: (是否成功, error)
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 释放锁
	Release(ctx context.Context, key string) error
}

// releaseScript 只删除属于自己的锁，避免误删别的实例在 TTL 过期后抢到的锁
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end`

// RedisLock 基于 Redis SETNX 的实现
type RedisLock struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string // key → 本实例持有的随机 token
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{
		client: client,
		tokens: make(map[string]string),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// token 标识锁的归属，释放时校验
	token, err := safe_random.GenerateRandomHexString(16)
	if err != nil {
		return false, err
	}

	// SET key token NX EX ttl
	success, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if success {
		l.mu.Lock()
		l.tokens[key] = token
		l.mu.Unlock()
	}
	return success, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	return l.client.Eval(ctx, releaseScript, []string{"lock:" + key}, token).Err()
}
