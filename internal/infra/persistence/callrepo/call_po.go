package callrepo

import (
	"time"

	domain "github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

// FunctionCall 审计账本，终态后不可变，引擎不删除
type FunctionCall struct {
	commonrepo.Mode
	FunctionName string            `gorm:"column:function_name;size:255;not null;index:idx_name_status"`
	VersionID    string            `gorm:"column:version_id;size:36;not null;index"`
	Status       domain.CallStatus `gorm:"column:status;size:20;not null;index:idx_name_status;index"`
	TriggerType  domain.TriggerType `gorm:"column:trigger_type;size:20;not null;index"`
	TriggerID    *uint64           `gorm:"column:trigger_id;index"`
	RequestedBy  *string           `gorm:"column:requested_by;size:64;index"`
	StartedAt    time.Time         `gorm:"column:started_at;not null;index"`
	FinishedAt   *time.Time        `gorm:"column:finished_at"`
	DurationMs   int64             `gorm:"column:duration_ms;default:0"`
	ErrorType    string            `gorm:"column:error_type;size:40"`
	ErrorMessage string            `gorm:"column:error_message;type:text"`
	Result       datatypes.JSON    `gorm:"column:result;type:json"`
}

func (FunctionCall) TableName() string {
	return "function_calls"
}
