package schedulerepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/funcbase/engine/internal/biz/schedule"
	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
	logger *zap.Logger
}

func NewMysqlRepositoryImpl(db commonrepo.DB, logger *zap.Logger) domain.Repo {
	return &MysqlRepositoryImpl{
		DefaultRepo: commonrepo.NewDefaultRepo(db),
		logger:      logger,
	}
}

func (r *MysqlRepositoryImpl) Create(ctx context.Context, schedule *domain.FunctionSchedule) error {
	po, err := new(FunctionSchedule).FromDomain(schedule)
	if err != nil {
		return err
	}
	if err := r.Db(ctx).Create(po).Error; err != nil {
		return err
	}
	schedule.ID = po.ID
	schedule.CreatedAt = po.CreatedAt
	schedule.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) Save(ctx context.Context, schedule *domain.FunctionSchedule) error {
	po, err := new(FunctionSchedule).FromDomain(schedule)
	if err != nil {
		return err
	}
	if err := r.Db(ctx).Save(po).Error; err != nil {
		return err
	}
	schedule.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, id uint64) (*domain.FunctionSchedule, error) {
	var po = new(FunctionSchedule)
	if err := r.Db(ctx).First(po, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, id)
		}
		return nil, err
	}
	return po.ToDomain()
}

func (r *MysqlRepositoryImpl) Delete(ctx context.Context, id uint64) error {
	return r.Db(ctx).Delete(&FunctionSchedule{}, id).Error
}

// ListDue 到期调度按next_run_at升序，最久积压优先
// 配置损坏的行当场停用，否则它们每个tick都占用due名额挤掉正常调度
func (r *MysqlRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.FunctionSchedule, error) {
	var pos []*FunctionSchedule
	err := r.Db(ctx).
		Where("is_active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	due, corrupt := mapDue(pos)
	for _, row := range corrupt {
		r.logger.Error("deactivating schedule with corrupt config",
			zap.Uint64("schedule_id", row.id),
			zap.String("function_name", row.functionName),
			zap.Error(row.err))
		if derr := r.Db(ctx).Model(&FunctionSchedule{}).
			Where("id = ?", row.id).
			Updates(map[string]any{"is_active": false, "next_run_at": nil}).Error; derr != nil {
			r.logger.Error("failed to deactivate corrupt schedule",
				zap.Uint64("schedule_id", row.id),
				zap.Error(derr))
		}
	}
	return due, nil
}

type corruptRow struct {
	id           uint64
	functionName string
	err          error
}

// mapDue 转换到期行，解析失败的行单独返回交由调用方停用
func mapDue(pos []*FunctionSchedule) ([]*domain.FunctionSchedule, []corruptRow) {
	due := make([]*domain.FunctionSchedule, 0, len(pos))
	var corrupt []corruptRow
	for _, po := range pos {
		schedule, err := po.ToDomain()
		if err != nil {
			corrupt = append(corrupt, corruptRow{id: po.ID, functionName: po.FunctionName, err: err})
			continue
		}
		due = append(due, schedule)
	}
	return due, corrupt
}

func (r *MysqlRepositoryImpl) List(ctx context.Context, filter domain.ListFilter, offset, limit int) ([]*domain.FunctionSchedule, int64, error) {
	db := r.Db(ctx).Model(&FunctionSchedule{})

	if filter.FunctionName.IsPresent() {
		db = db.Where("function_name = ?", filter.FunctionName.MustGet())
	}
	if filter.IsActive.IsPresent() {
		db = db.Where("is_active = ?", filter.IsActive.MustGet())
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var pos []*FunctionSchedule
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&pos).Error; err != nil {
		return nil, 0, err
	}

	domains := make([]*domain.FunctionSchedule, 0, len(pos))
	for _, po := range pos {
		schedule, err := po.ToDomain()
		if err != nil {
			return nil, 0, err
		}
		domains = append(domains, schedule)
	}
	return domains, count, nil
}
