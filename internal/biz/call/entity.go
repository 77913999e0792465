package call

import (
	"encoding/json"
	"time"
)

// FunctionCall 一次调用尝试的审计记录
// dispatch时以running创建，恰好一次迁移到终态，终态后不可变，引擎不删除
type FunctionCall struct {
	ID           uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FunctionName string
	VersionID    string
	Status       CallStatus
	TriggerType  TriggerType
	TriggerID    *uint64
	RequestedBy  *string
	StartedAt    time.Time
	FinishedAt   *time.Time
	DurationMs   int64
	ErrorType    ErrorType
	ErrorMessage string
	Result       json.RawMessage
}

// Begin 标记执行开始
func (c *FunctionCall) Begin() *FunctionCall {
	c.Status = CallStatusRunning
	c.StartedAt = time.Now()
	return c
}

// MarkSucceeded 成功终态，记录结果与耗时
func (c *FunctionCall) MarkSucceeded(result json.RawMessage) *FunctionCall {
	now := time.Now()
	c.Status = CallStatusSucceeded
	c.FinishedAt = &now
	c.DurationMs = now.Sub(c.StartedAt).Milliseconds()
	c.Result = result
	return c
}

// MarkFailed 失败终态，记录错误分类与信息
func (c *FunctionCall) MarkFailed(errType ErrorType, message string) *FunctionCall {
	now := time.Now()
	c.Status = CallStatusFailed
	c.FinishedAt = &now
	c.DurationMs = now.Sub(c.StartedAt).Milliseconds()
	c.ErrorType = errType
	c.ErrorMessage = message
	return c
}
