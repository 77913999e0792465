package commonrepo

import (
	"context"

	"gorm.io/gorm"
)

// Transaction 事务入口
// 回调内经Db(ctx)取到的连接指向同一事务，回调返回错误时整体回滚
type Transaction interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

type dbContextKey struct{}

// DefaultRepo 仓储公共基座，事务连接沿context向下传递
type DefaultRepo struct {
	db DB
}

var _ Transaction = (*DefaultRepo)(nil)

func NewDefaultRepo(db DB) DefaultRepo {
	return DefaultRepo{db: db}
}

// Execute 在单个事务内运行fn
func (r *DefaultRepo) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.Db(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, dbContextKey{}, tx))
	})
}

// Db 返回当前context绑定的连接，处于事务中时返回事务连接
func (r *DefaultRepo) Db(ctx context.Context) DB {
	if tx, ok := ctx.Value(dbContextKey{}).(DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}
