package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireScript 原子地清理过期成员、检查上限并登记新租约
// 返回1表示获取成功，0表示已达上限
var acquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisBackend 多API进程共享的租约计数，上限全局生效
// 每用户一个sorted set，member为lease_id，score为过期时间戳
type RedisBackend struct {
	client   *redis.Client
	ceiling  int
	leaseTTL time.Duration
}

func NewRedisBackend(client *redis.Client, ceiling int, leaseTTL time.Duration) *RedisBackend {
	return &RedisBackend{
		client:   client,
		ceiling:  ceiling,
		leaseTTL: leaseTTL,
	}
}

func leaseKey(userID string) string {
	return "funcbase:ratelimit:" + userID
}

func (b *RedisBackend) TryAcquire(ctx context.Context, userID string) (*Lease, error) {
	now := time.Now()
	lease := &Lease{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(b.leaseTTL),
	}

	ok, err := acquireScript.Run(ctx, b.client,
		[]string{leaseKey(userID)},
		now.UnixMilli(),
		b.ceiling,
		lease.ExpiresAt.UnixMilli(),
		lease.ID,
		b.leaseTTL.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("rate limit acquire: %w", err)
	}
	if ok == 0 {
		return nil, ErrRateLimited
	}
	return lease, nil
}

func (b *RedisBackend) Release(ctx context.Context, lease *Lease) error {
	if err := b.client.ZRem(ctx, leaseKey(lease.UserID), lease.ID).Err(); err != nil {
		return fmt.Errorf("rate limit release: %w", err)
	}
	return nil
}
