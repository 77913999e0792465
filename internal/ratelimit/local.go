package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalBackend 进程内租约计数，适用单实例部署
type LocalBackend struct {
	mu       sync.Mutex
	leases   map[string]map[string]time.Time // user_id -> lease_id -> expiry
	ceiling  int
	leaseTTL time.Duration
}

func NewLocalBackend(ceiling int, leaseTTL time.Duration) *LocalBackend {
	return &LocalBackend{
		leases:   make(map[string]map[string]time.Time),
		ceiling:  ceiling,
		leaseTTL: leaseTTL,
	}
}

func (b *LocalBackend) TryAcquire(_ context.Context, userID string) (*Lease, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.pruneLocked(userID, now)

	held := b.leases[userID]
	if len(held) >= b.ceiling {
		return nil, ErrRateLimited
	}

	lease := &Lease{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(b.leaseTTL),
	}
	if held == nil {
		held = make(map[string]time.Time)
		b.leases[userID] = held
	}
	held[lease.ID] = lease.ExpiresAt
	return lease, nil
}

func (b *LocalBackend) Release(_ context.Context, lease *Lease) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if held, ok := b.leases[lease.UserID]; ok {
		delete(held, lease.ID)
		if len(held) == 0 {
			delete(b.leases, lease.UserID)
		}
	}
	return nil
}

// pruneLocked 回收过期租约（崩溃的worker从未调用Release）
func (b *LocalBackend) pruneLocked(userID string, now time.Time) {
	held, ok := b.leases[userID]
	if !ok {
		return
	}
	for id, expiry := range held {
		if expiry.Before(now) {
			delete(held, id)
		}
	}
	if len(held) == 0 {
		delete(b.leases, userID)
	}
}

// HeldCount 当前用户持有的未过期租约数
func (b *LocalBackend) HeldCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(userID, time.Now())
	return len(b.leases[userID])
}
