package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited 已达并发上限，未产生任何副作用
var ErrRateLimited = errors.New("concurrent function limit reached")

// Lease 一个在途执行槽位的租约
// 持有方崩溃未释放时由TTL自动回收，失败影响范围被限定在TTL窗口内
type Lease struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Backend 按用户并发租约的可插拔后端
// 单实例部署用本地后端；多API进程时需要redis后端让上限全局生效
type Backend interface {
	// TryAcquire 原子check-and-increment，达到上限返回ErrRateLimited
	TryAcquire(ctx context.Context, userID string) (*Lease, error)

	// Release 原子递减，重复释放同一租约无副作用
	Release(ctx context.Context, lease *Lease) error
}
