package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/samber/mo"
)

var ErrScheduleNotFound = errors.New("schedule not found")

// Repo 调度配置的持久化接口
type Repo interface {
	Create(ctx context.Context, schedule *FunctionSchedule) error
	Save(ctx context.Context, schedule *FunctionSchedule) error
	GetByID(ctx context.Context, id uint64) (*FunctionSchedule, error)
	Delete(ctx context.Context, id uint64) error

	// ListDue 按next_run_at升序返回到期调度（最久积压优先，防饿死）
	ListDue(ctx context.Context, now time.Time, limit int) ([]*FunctionSchedule, error)

	List(ctx context.Context, filter ListFilter, offset, limit int) ([]*FunctionSchedule, int64, error)
}

type ListFilter struct {
	FunctionName mo.Option[string]
	IsActive     mo.Option[bool]
}
