package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/funcbase/engine/internal/biz/function"
	"go.uber.org/zap"
)

// VersionSource 提供函数当前生效版本，用于识别过期的暖worker
type VersionSource interface {
	CurrentVersion(name string) string
}

type idleWorker struct {
	handle       Handle
	functionName string
	idleSince    time.Time
}

// Options 池参数，零值由NewPool兜底
type Options struct {
	IdleTTL           time.Duration
	ReapInterval      time.Duration
	MaxIdlePerVersion int
}

// Pool 按VersionID维护暖worker
// 命中即复用省去冷启动；后台reaper回收闲置超时和版本过期的worker
type Pool struct {
	spawn    SpawnFunc
	versions VersionSource
	opts     Options
	logger   *zap.Logger

	mu     sync.Mutex
	idle   map[string][]idleWorker
	closed bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPool(spawn SpawnFunc, versions VersionSource, opts Options, logger *zap.Logger) *Pool {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 5 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 30 * time.Second
	}
	if opts.MaxIdlePerVersion <= 0 {
		opts.MaxIdlePerVersion = 4
	}

	p := &Pool{
		spawn:    spawn,
		versions: versions,
		opts:     opts,
		logger:   logger.With(zap.String("component", "worker-pool")),
		idle:     make(map[string][]idleWorker),
		stopCh:   make(chan struct{}),
	}

	p.wg.Add(1)
	go p.reapLoop()
	return p
}

// Acquire 取一个该版本的worker，暖命中直接返回，否则冷启动
func (p *Pool) Acquire(ctx context.Context, meta *function.FunctionMeta) (Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if workers := p.idle[meta.VersionID]; len(workers) > 0 {
		last := workers[len(workers)-1]
		p.idle[meta.VersionID] = workers[:len(workers)-1]
		if len(p.idle[meta.VersionID]) == 0 {
			delete(p.idle, meta.VersionID)
		}
		p.mu.Unlock()
		return last.handle, nil
	}
	p.mu.Unlock()

	return p.spawn(ctx, meta)
}

// Release 归还worker
// unhealthy（超时、协议破坏、进程退出）的一律销毁；健康的在版本仍为当前
// 且未超出该版本闲置上限时回池，否则销毁
func (p *Pool) Release(functionName string, h Handle, healthy bool) {
	if h == nil {
		return
	}
	if !healthy {
		h.Kill()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed ||
		p.versions.CurrentVersion(functionName) != h.VersionID() ||
		len(p.idle[h.VersionID()]) >= p.opts.MaxIdlePerVersion {
		h.Kill()
		return
	}
	p.idle[h.VersionID()] = append(p.idle[h.VersionID()], idleWorker{
		handle:       h,
		functionName: functionName,
		idleSince:    time.Now(),
	})
}

// IdleCount 返回该版本当前闲置worker数
func (p *Pool) IdleCount(versionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[versionID])
}

// Close 停止reaper并销毁全部闲置worker，之后Acquire返回ErrPoolClosed
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	victims := p.drainLocked()
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	for _, w := range victims {
		w.handle.Kill()
	}
}

func (p *Pool) drainLocked() []idleWorker {
	var all []idleWorker
	for _, workers := range p.idle {
		all = append(all, workers...)
	}
	p.idle = make(map[string][]idleWorker)
	return all
}

func (p *Pool) reapLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Reap(time.Now())
		}
	}
}

// Reap 回收闲置超过IdleTTL的worker和版本已被替换的worker
func (p *Pool) Reap(now time.Time) {
	p.mu.Lock()
	var victims []idleWorker
	for versionID, workers := range p.idle {
		kept := workers[:0]
		for _, w := range workers {
			stale := p.versions.CurrentVersion(w.functionName) != versionID
			expired := now.Sub(w.idleSince) >= p.opts.IdleTTL
			if stale || expired {
				victims = append(victims, w)
			} else {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(p.idle, versionID)
		} else {
			p.idle[versionID] = kept
		}
	}
	p.mu.Unlock()

	for _, w := range victims {
		w.handle.Kill()
		p.logger.Debug("reaped idle worker",
			zap.String("function_name", w.functionName),
			zap.String("version_id", w.handle.VersionID()))
	}
}
