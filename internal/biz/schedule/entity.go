package schedule

import (
	"encoding/json"
	"time"
)

// FunctionSchedule 一条定时或一次性触发配置
// NextRunAt是到期判断的唯一依据，由调度器独占维护
type FunctionSchedule struct {
	ID        uint64
	CreatedAt time.Time
	UpdatedAt time.Time

	FunctionName string
	Config       Config
	InputData    json.RawMessage
	IsActive     bool
	LastRunAt    *time.Time
	NextRunAt    *time.Time
}

// Due 是否到期
func (s *FunctionSchedule) Due(now time.Time) bool {
	return s.IsActive && s.NextRunAt != nil && !s.NextRunAt.After(now)
}

// Reschedule 新建或配置变更后重算NextRunAt
func (s *FunctionSchedule) Reschedule(now time.Time) error {
	next, err := s.Config.NextRun(now, nil)
	if err != nil {
		return err
	}
	s.NextRunAt = next
	return nil
}

// Advance 一次运行结束后推进状态，成功失败同样处理
// once调度运行一次后转为非激活
func (s *FunctionSchedule) Advance(ranAt time.Time) error {
	s.LastRunAt = &ranAt

	next, err := s.Config.NextRun(ranAt, &ranAt)
	if err != nil {
		return err
	}
	s.NextRunAt = next
	if next == nil {
		s.IsActive = false
	}
	return nil
}
