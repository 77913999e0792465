package functionrepo

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{
		DefaultRepo: commonrepo.NewDefaultRepo(db),
	}
}

// Create 幂等写入版本镜像，version_id已存在时不做任何修改
func (r *MysqlRepositoryImpl) Create(ctx context.Context, meta *domain.FunctionMeta) error {
	po := new(FunctionVersion).FromDomain(meta)
	return r.Db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(po).Error
}

// CreateBatch 同一源文件的版本镜像在一个事务内写入
func (r *MysqlRepositoryImpl) CreateBatch(ctx context.Context, metas []*domain.FunctionMeta) error {
	return r.Execute(ctx, func(txCtx context.Context) error {
		for _, meta := range metas {
			if err := r.Create(txCtx, meta); err != nil {
				return fmt.Errorf("persist function version %s: %w", meta.VersionID, err)
			}
		}
		return nil
	})
}

func (r *MysqlRepositoryImpl) GetByVersionID(ctx context.Context, versionID string) (*domain.FunctionMeta, error) {
	var po = new(FunctionVersion)
	if err := r.Db(ctx).First(po, "version_id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: version %s", domain.ErrFunctionNotFound, versionID)
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) List(ctx context.Context, filter domain.ListFilter, offset, limit int) ([]*domain.FunctionMeta, int64, error) {
	db := r.Db(ctx).Model(&FunctionVersion{})

	if filter.Name.IsPresent() {
		db = db.Where("name = ?", filter.Name.MustGet())
	}
	if filter.ContentHash.IsPresent() {
		db = db.Where("content_hash = ?", filter.ContentHash.MustGet())
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var pos []*FunctionVersion
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&pos).Error; err != nil {
		return nil, 0, err
	}

	domains := make([]*domain.FunctionMeta, len(pos))
	for i := range pos {
		domains[i] = pos[i].ToDomain()
	}
	return domains, count, nil
}
