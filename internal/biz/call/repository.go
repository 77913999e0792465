package call

import (
	"context"

	"github.com/samber/mo"
)

// Repo 审计账本的持久化接口
type Repo interface {
	Create(ctx context.Context, call *FunctionCall) error
	GetByID(ctx context.Context, id uint64) (*FunctionCall, error)

	// Finalize 将running记录迁移到终态，恰好生效一次
	// 记录已处于终态时返回ErrAlreadyFinalized
	Finalize(ctx context.Context, call *FunctionCall) error

	// ReconcileRunning 启动时把遗留的running记录收敛为failed/Interrupted
	ReconcileRunning(ctx context.Context) (int64, error)

	List(ctx context.Context, filter ListFilter, offset, limit int) ([]*FunctionCall, int64, error)
}

type ListFilter struct {
	FunctionName mo.Option[string]
	Status       mo.Option[CallStatus]
	TriggerType  mo.Option[TriggerType]
}
