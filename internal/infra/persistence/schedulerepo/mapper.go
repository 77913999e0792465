package schedulerepo

import (
	"encoding/json"

	domain "github.com/funcbase/engine/internal/biz/schedule"
	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
)

func (po *FunctionSchedule) ToDomain() (*domain.FunctionSchedule, error) {
	cfg, err := domain.ParseConfig(po.Config)
	if err != nil {
		return nil, err
	}
	return &domain.FunctionSchedule{
		ID:           po.ID,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
		FunctionName: po.FunctionName,
		Config:       *cfg,
		InputData:    json.RawMessage(po.InputData),
		IsActive:     po.IsActive,
		LastRunAt:    po.LastRunAt,
		NextRunAt:    po.NextRunAt,
	}, nil
}

func (po *FunctionSchedule) FromDomain(schedule *domain.FunctionSchedule) (*FunctionSchedule, error) {
	cfg, err := json.Marshal(schedule.Config)
	if err != nil {
		return nil, err
	}
	return &FunctionSchedule{
		Mode: commonrepo.Mode{
			ID:        schedule.ID,
			CreatedAt: schedule.CreatedAt,
			UpdatedAt: schedule.UpdatedAt,
		},
		FunctionName: schedule.FunctionName,
		Config:       cfg,
		InputData:    []byte(schedule.InputData),
		IsActive:     schedule.IsActive,
		LastRunAt:    schedule.LastRunAt,
		NextRunAt:    schedule.NextRunAt,
	}, nil
}
