package schedulerepo

import (
	"time"

	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

// FunctionSchedule 调度配置行，next_run_at由调度器独占维护
type FunctionSchedule struct {
	commonrepo.Mode
	FunctionName string         `gorm:"column:function_name;size:255;not null;index"`
	Config       datatypes.JSON `gorm:"column:schedule_config;type:json;not null"`
	InputData    datatypes.JSON `gorm:"column:input_data;type:json"`
	IsActive     bool           `gorm:"column:is_active;default:true;index:idx_active_next"`
	LastRunAt    *time.Time     `gorm:"column:last_run_at"`
	NextRunAt    *time.Time     `gorm:"column:next_run_at;index:idx_active_next"`
}

func (FunctionSchedule) TableName() string {
	return "function_schedules"
}
