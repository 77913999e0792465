package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/biz/schedule"
	"github.com/funcbase/engine/internal/engine"
	"go.uber.org/zap"
)

// Executor 调度器触发执行所需的引擎能力
type Executor interface {
	Execute(ctx context.Context, req engine.Request) (*call.FunctionCall, error)
}

// Options 调度循环参数
type Options struct {
	Interval        time.Duration
	FunctionTimeout time.Duration
	MaxPerTick      int
	MaxConcurrent   int
}

// Scheduler 轮询到期调度并派发执行
// 单实例独占调度；执行无论成败都推进NextRunAt，once运行一次后转非激活
type Scheduler struct {
	schedules schedule.Repo
	calls     call.Repo
	exec      Executor
	opts      Options
	logger    *zap.Logger

	slots  chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[uint64]struct{}
}

func New(schedules schedule.Repo, calls call.Repo, exec Executor, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.MaxPerTick <= 0 {
		opts.MaxPerTick = 50
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}

	return &Scheduler{
		schedules: schedules,
		calls:     calls,
		exec:      exec,
		opts:      opts,
		logger:    logger.With(zap.String("component", "scheduler")),
		slots:     make(chan struct{}, opts.MaxConcurrent),
		stopCh:    make(chan struct{}),
		inFlight:  make(map[uint64]struct{}),
	}
}

// Start 先收敛上次进程退出遗留的running记录，再启动轮询循环
func (s *Scheduler) Start(ctx context.Context) error {
	reconciled, err := s.calls.ReconcileRunning(ctx)
	if err != nil {
		return err
	}
	if reconciled > 0 {
		s.logger.Warn("reconciled interrupted calls from previous run",
			zap.Int64("count", reconciled))
	}

	s.wg.Add(1)
	go s.loop()
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("max_concurrent", s.opts.MaxConcurrent))
	return nil
}

// Stop 停止轮询并等待在途执行结束
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(context.Background(), time.Now())
		}
	}
}

// Tick 执行一轮调度：取到期调度，按并发上限派发
// 槽位耗尽时剩余到期项留给下一轮，积压按next_run_at升序优先消化
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due, err := s.schedules.ListDue(ctx, now, s.opts.MaxPerTick)
	if err != nil {
		s.logger.Error("failed to list due schedules", zap.Error(err))
		return
	}

	for _, item := range due {
		if !s.claim(item.ID) {
			continue
		}
		select {
		case s.slots <- struct{}{}:
		default:
			s.unclaim(item.ID)
			return
		}

		s.wg.Add(1)
		go func(item *schedule.FunctionSchedule) {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			defer s.unclaim(item.ID)
			s.runOne(ctx, item)
		}(item)
	}
}

func (s *Scheduler) runOne(ctx context.Context, item *schedule.FunctionSchedule) {
	ranAt := time.Now()
	scheduleID := item.ID

	record, err := s.exec.Execute(ctx, engine.Request{
		FunctionName: item.FunctionName,
		Payload:      item.InputData,
		TriggerType:  call.TriggerTypeSchedule,
		TriggerID:    &scheduleID,
		CallerLevel:  function.AuthLevelAdmin,
		Timeout:      s.opts.FunctionTimeout,
	})
	if err != nil {
		fields := []zap.Field{
			zap.Uint64("schedule_id", item.ID),
			zap.String("function_name", item.FunctionName),
			zap.Error(err),
		}
		if record != nil {
			fields = append(fields, zap.Uint64("call_id", record.ID))
		}
		s.logger.Error("scheduled execution failed", fields...)
	} else {
		s.logger.Info("scheduled execution finished",
			zap.Uint64("schedule_id", item.ID),
			zap.String("function_name", item.FunctionName),
			zap.Uint64("call_id", record.ID),
			zap.Int64("duration_ms", record.DurationMs))
	}

	s.advance(ctx, item, ranAt)
}

// advance 运行后推进调度状态，配置无法解析时直接停用防止空转
func (s *Scheduler) advance(ctx context.Context, item *schedule.FunctionSchedule, ranAt time.Time) {
	if err := item.Advance(ranAt); err != nil {
		s.logger.Error("failed to compute next run, deactivating schedule",
			zap.Uint64("schedule_id", item.ID), zap.Error(err))
		item.IsActive = false
		item.NextRunAt = nil
		item.LastRunAt = &ranAt
	}
	if err := s.schedules.Save(ctx, item); err != nil {
		s.logger.Error("failed to save schedule state",
			zap.Uint64("schedule_id", item.ID), zap.Error(err))
	}
}

func (s *Scheduler) claim(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[id]; ok {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) unclaim(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
