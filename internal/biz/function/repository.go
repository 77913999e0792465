package function

import (
	"context"

	"github.com/samber/mo"
)

// Repo 函数版本的持久化镜像，旧版本保留可查询
type Repo interface {
	Create(ctx context.Context, meta *FunctionMeta) error
	// CreateBatch 同一源文件产出的版本镜像整体写入，要么全部落库要么全部回滚
	CreateBatch(ctx context.Context, metas []*FunctionMeta) error
	GetByVersionID(ctx context.Context, versionID string) (*FunctionMeta, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]*FunctionMeta, int64, error)
}

type ListFilter struct {
	Name        mo.Option[string]
	ContentHash mo.Option[string]
}
