package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/schedule"
	"github.com/funcbase/engine/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScheduleRepo struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]*schedule.FunctionSchedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{items: make(map[uint64]*schedule.FunctionSchedule)}
}

func (r *fakeScheduleRepo) Create(_ context.Context, s *schedule.FunctionSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		r.nextID++
		s.ID = r.nextID
	}
	cp := *s
	r.items[s.ID] = &cp
	return nil
}

func (r *fakeScheduleRepo) Save(_ context.Context, s *schedule.FunctionSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.items[s.ID] = &cp
	return nil
}

func (r *fakeScheduleRepo) GetByID(_ context.Context, id uint64) (*schedule.FunctionSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScheduleRepo) Delete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeScheduleRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*schedule.FunctionSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*schedule.FunctionSchedule
	for _, s := range r.items {
		if s.Due(now) {
			cp := *s
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeScheduleRepo) List(_ context.Context, _ schedule.ListFilter, _, _ int) ([]*schedule.FunctionSchedule, int64, error) {
	return nil, 0, nil
}

type fakeCallRepo struct {
	mu         sync.Mutex
	reconciled int64
}

func (r *fakeCallRepo) Create(_ context.Context, _ *call.FunctionCall) error { return nil }
func (r *fakeCallRepo) GetByID(_ context.Context, _ uint64) (*call.FunctionCall, error) {
	return nil, call.ErrCallNotFound
}
func (r *fakeCallRepo) Finalize(_ context.Context, _ *call.FunctionCall) error { return nil }
func (r *fakeCallRepo) ReconcileRunning(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciled++
	return 2, nil
}
func (r *fakeCallRepo) List(_ context.Context, _ call.ListFilter, _, _ int) ([]*call.FunctionCall, int64, error) {
	return nil, 0, nil
}

type executed struct {
	functionName string
	triggerID    uint64
	payload      json.RawMessage
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []executed
	err   error
	block chan struct{}
}

func (e *fakeExecutor) Execute(_ context.Context, req engine.Request) (*call.FunctionCall, error) {
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	e.calls = append(e.calls, executed{
		functionName: req.FunctionName,
		triggerID:    *req.TriggerID,
		payload:      req.Payload,
	})
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	return &call.FunctionCall{ID: 100, FunctionName: req.FunctionName, Status: call.CallStatusSucceeded}, nil
}

func (e *fakeExecutor) executedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func newTestScheduler(repo schedule.Repo, calls call.Repo, exec Executor, opts Options) *Scheduler {
	return New(repo, calls, exec, opts, zap.NewNop())
}

func intervalSchedule(t *testing.T, id uint64, name string, nextRun time.Time) *schedule.FunctionSchedule {
	t.Helper()
	s := &schedule.FunctionSchedule{
		ID:           id,
		FunctionName: name,
		Config:       schedule.Config{Method: schedule.MethodInterval, Timezone: "UTC", Unit: schedule.UnitMinutes, Value: 5},
		InputData:    json.RawMessage(`{"source":"timer"}`),
		IsActive:     true,
		NextRunAt:    &nextRun,
	}
	return s
}

func TestTickDispatchesDueSchedules(t *testing.T) {
	repo := newFakeScheduleRepo()
	exec := &fakeExecutor{}
	sched := newTestScheduler(repo, &fakeCallRepo{}, exec, Options{MaxPerTick: 10, MaxConcurrent: 5})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(context.Background(), intervalSchedule(t, 1, "cleanup", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(context.Background(), intervalSchedule(t, 2, "report", now.Add(time.Hour))))

	sched.Tick(context.Background(), now)
	sched.wg.Wait()

	require.Equal(t, 1, exec.executedCount())
	assert.Equal(t, "cleanup", exec.calls[0].functionName)
	assert.Equal(t, uint64(1), exec.calls[0].triggerID)
	assert.JSONEq(t, `{"source":"timer"}`, string(exec.calls[0].payload))

	// 运行后NextRunAt向前推进
	saved, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, saved.NextRunAt)
	assert.True(t, saved.NextRunAt.After(now))
	require.NotNil(t, saved.LastRunAt)
}

func TestTickAdvancesScheduleEvenWhenExecutionFails(t *testing.T) {
	repo := newFakeScheduleRepo()
	exec := &fakeExecutor{err: call.NewExecError(call.ErrorTypeExecution, "boom", nil)}
	sched := newTestScheduler(repo, &fakeCallRepo{}, exec, Options{MaxPerTick: 10, MaxConcurrent: 5})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(context.Background(), intervalSchedule(t, 1, "flaky", now.Add(-time.Second))))

	sched.Tick(context.Background(), now)
	sched.wg.Wait()

	saved, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, saved.IsActive)
	require.NotNil(t, saved.NextRunAt)
	assert.True(t, saved.NextRunAt.After(now))
}

func TestOnceScheduleNeverRefires(t *testing.T) {
	repo := newFakeScheduleRepo()
	exec := &fakeExecutor{}
	sched := newTestScheduler(repo, &fakeCallRepo{}, exec, Options{MaxPerTick: 10, MaxConcurrent: 5})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fireAt := now.Add(-time.Second)
	require.NoError(t, repo.Create(context.Background(), &schedule.FunctionSchedule{
		ID:           1,
		FunctionName: "migration",
		Config:       schedule.Config{Method: schedule.MethodOnce, Timezone: "UTC", Date: "2026-06-01", Time: "11:59:59"},
		IsActive:     true,
		NextRunAt:    &fireAt,
	}))

	sched.Tick(context.Background(), now)
	sched.wg.Wait()
	require.Equal(t, 1, exec.executedCount())

	saved, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, saved.IsActive)
	assert.Nil(t, saved.NextRunAt)

	// 后续tick不再触发
	sched.Tick(context.Background(), now.Add(time.Minute))
	sched.wg.Wait()
	assert.Equal(t, 1, exec.executedCount())
}

func TestTickHonorsPerTickCap(t *testing.T) {
	repo := newFakeScheduleRepo()
	exec := &fakeExecutor{}
	sched := newTestScheduler(repo, &fakeCallRepo{}, exec, Options{MaxPerTick: 2, MaxConcurrent: 10})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, repo.Create(context.Background(),
			intervalSchedule(t, i, "job", now.Add(-time.Duration(i)*time.Minute))))
	}

	sched.Tick(context.Background(), now)
	sched.wg.Wait()

	// 最久积压的优先
	require.Equal(t, 2, exec.executedCount(), spew.Sdump(exec.calls))
	ids := []uint64{exec.calls[0].triggerID, exec.calls[1].triggerID}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []uint64{4, 5}, ids)
}

func TestTickBoundsConcurrency(t *testing.T) {
	repo := newFakeScheduleRepo()
	exec := &fakeExecutor{block: make(chan struct{})}
	sched := newTestScheduler(repo, &fakeCallRepo{}, exec, Options{MaxPerTick: 10, MaxConcurrent: 1})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(context.Background(), intervalSchedule(t, 1, "a", now.Add(-2*time.Minute))))
	require.NoError(t, repo.Create(context.Background(), intervalSchedule(t, 2, "b", now.Add(-time.Minute))))

	sched.Tick(context.Background(), now)

	// 只有一个槽位，第二个到期项留给下一轮
	close(exec.block)
	sched.wg.Wait()
	assert.Equal(t, 1, exec.executedCount())
}

func TestStartReconcilesInterruptedCalls(t *testing.T) {
	repo := newFakeScheduleRepo()
	calls := &fakeCallRepo{}
	sched := newTestScheduler(repo, calls, &fakeExecutor{}, Options{Interval: time.Hour})

	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()

	assert.Equal(t, int64(1), calls.reconciled)
}

func TestInFlightScheduleNotDispatchedTwice(t *testing.T) {
	repo := newFakeScheduleRepo()
	exec := &fakeExecutor{block: make(chan struct{})}
	sched := newTestScheduler(repo, &fakeCallRepo{}, exec, Options{MaxPerTick: 10, MaxConcurrent: 5})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(context.Background(), intervalSchedule(t, 1, "slow", now.Add(-time.Minute))))

	sched.Tick(context.Background(), now)
	// 第一次派发还在执行，同一调度不会被重复派发
	sched.Tick(context.Background(), now.Add(time.Second))

	close(exec.block)
	sched.wg.Wait()
	assert.Equal(t, 1, exec.executedCount())
}
