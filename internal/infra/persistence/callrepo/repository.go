package callrepo

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
	"gorm.io/gorm"
)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{
		DefaultRepo: commonrepo.NewDefaultRepo(db),
	}
}

func (r *MysqlRepositoryImpl) Create(ctx context.Context, call *domain.FunctionCall) error {
	po := new(FunctionCall).FromDomain(call)
	if err := r.Db(ctx).Create(po).Error; err != nil {
		return err
	}
	call.ID = po.ID
	call.CreatedAt = po.CreatedAt
	call.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, id uint64) (*domain.FunctionCall, error) {
	var po = new(FunctionCall)
	if err := r.Db(ctx).First(po, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", domain.ErrCallNotFound, id)
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

// Finalize 仅对running记录生效，保证running→终态恰好迁移一次
func (r *MysqlRepositoryImpl) Finalize(ctx context.Context, call *domain.FunctionCall) error {
	if !call.Status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", call.Status)
	}

	po := new(FunctionCall).FromDomain(call)
	tx := r.Db(ctx).Model(&FunctionCall{}).
		Where("id = ? AND status = ?", call.ID, domain.CallStatusRunning).
		Updates(map[string]any{
			"status":        po.Status,
			"finished_at":   po.FinishedAt,
			"duration_ms":   po.DurationMs,
			"error_type":    po.ErrorType,
			"error_message": po.ErrorMessage,
			"result":        po.Result,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: call %d", domain.ErrAlreadyFinalized, call.ID)
	}
	return nil
}

// ReconcileRunning 启动时收敛崩溃遗留的running记录
func (r *MysqlRepositoryImpl) ReconcileRunning(ctx context.Context) (int64, error) {
	tx := r.Db(ctx).Model(&FunctionCall{}).
		Where("status = ?", domain.CallStatusRunning).
		Updates(map[string]any{
			"status":        domain.CallStatusFailed,
			"finished_at":   gorm.Expr("NOW()"),
			"error_type":    string(domain.ErrorTypeInterrupted),
			"error_message": "call was interrupted by a server restart",
		})
	return tx.RowsAffected, tx.Error
}

func (r *MysqlRepositoryImpl) List(ctx context.Context, filter domain.ListFilter, offset, limit int) ([]*domain.FunctionCall, int64, error) {
	db := r.Db(ctx).Model(&FunctionCall{})

	if filter.FunctionName.IsPresent() {
		db = db.Where("function_name = ?", filter.FunctionName.MustGet())
	}
	if filter.Status.IsPresent() {
		db = db.Where("status = ?", filter.Status.MustGet())
	}
	if filter.TriggerType.IsPresent() {
		db = db.Where("trigger_type = ?", filter.TriggerType.MustGet())
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var pos []*FunctionCall
	if err := db.Order("started_at DESC").Limit(limit).Offset(offset).Find(&pos).Error; err != nil {
		return nil, 0, err
	}

	domains := make([]*domain.FunctionCall, len(pos))
	for i := range pos {
		domains[i] = pos[i].ToDomain()
	}
	return domains, count, nil
}
