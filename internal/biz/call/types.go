package call

// CallStatus 调用状态，running为唯一非终态
type CallStatus string

const (
	CallStatusRunning   CallStatus = "running"
	CallStatusSucceeded CallStatus = "succeeded"
	CallStatusFailed    CallStatus = "failed"
)

// Terminal 是否终态
func (s CallStatus) Terminal() bool {
	return s == CallStatusSucceeded || s == CallStatusFailed
}

// TriggerType 调用来源
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeSystem   TriggerType = "system"
)

// RateLimited 是否参与按用户并发限流
// 调度与系统触发豁免，避免管理类工作被终端用户负载饿死
func (t TriggerType) RateLimited() bool {
	return t == TriggerTypeManual
}

// ErrorType 执行失败分类
type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "NotFound"
	ErrorTypeForbidden       ErrorType = "Forbidden"
	ErrorTypePayloadTooLarge ErrorType = "PayloadTooLarge"
	ErrorTypeResultTooLarge  ErrorType = "ResultTooLarge"
	ErrorTypeRateLimited     ErrorType = "RateLimitExceeded"
	ErrorTypeDependency      ErrorType = "DependencyError"
	ErrorTypeTimeout         ErrorType = "TimeoutError"
	ErrorTypeExecution       ErrorType = "ExecutionError"
	ErrorTypeInterrupted     ErrorType = "Interrupted"
)
