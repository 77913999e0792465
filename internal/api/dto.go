package api

import (
	"encoding/json"
	"time"

	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/biz/schedule"
)

// FunctionResponse 已注册函数的当前版本视图
type FunctionResponse struct {
	Name         string          `json:"name"`
	AuthLevel    string          `json:"auth_level"`
	Tags         []string        `json:"tags"`
	VersionID    string          `json:"version_id"`
	ContentHash  string          `json:"content_hash"`
	Requirements []string        `json:"requirements"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	LastLoadedAt time.Time       `json:"last_loaded_at"`
}

func toFunctionResponse(meta *function.FunctionMeta) FunctionResponse {
	return FunctionResponse{
		Name:         meta.Name,
		AuthLevel:    string(meta.AuthLevel),
		Tags:         meta.Tags,
		VersionID:    meta.VersionID,
		ContentHash:  meta.ContentHash,
		Requirements: meta.Requirements,
		InputSchema:  meta.InputSchema,
		OutputSchema: meta.OutputSchema,
		LastLoadedAt: meta.LastLoadedAt,
	}
}

// CallResponse 一次调用的审计视图
type CallResponse struct {
	ID           uint64          `json:"id"`
	FunctionName string          `json:"function_name"`
	VersionID    string          `json:"version_id"`
	Status       string          `json:"status"`
	TriggerType  string          `json:"trigger_type"`
	TriggerID    *uint64         `json:"trigger_id,omitempty"`
	RequestedBy  *string         `json:"requested_by,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	ErrorType    string          `json:"error_type,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

func toCallResponse(record *call.FunctionCall) CallResponse {
	return CallResponse{
		ID:           record.ID,
		FunctionName: record.FunctionName,
		VersionID:    record.VersionID,
		Status:       string(record.Status),
		TriggerType:  string(record.TriggerType),
		TriggerID:    record.TriggerID,
		RequestedBy:  record.RequestedBy,
		StartedAt:    record.StartedAt,
		FinishedAt:   record.FinishedAt,
		DurationMs:   record.DurationMs,
		ErrorType:    string(record.ErrorType),
		ErrorMessage: record.ErrorMessage,
		Result:       record.Result,
	}
}

// ScheduleResponse 调度配置视图
type ScheduleResponse struct {
	ID           uint64          `json:"id"`
	FunctionName string          `json:"function_name"`
	Schedule     json.RawMessage `json:"schedule"`
	InputData    json.RawMessage `json:"input_data,omitempty"`
	IsActive     bool            `json:"is_active"`
	LastRunAt    *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toScheduleResponse(s *schedule.FunctionSchedule) ScheduleResponse {
	raw, _ := json.Marshal(s.Config)
	return ScheduleResponse{
		ID:           s.ID,
		FunctionName: s.FunctionName,
		Schedule:     raw,
		InputData:    s.InputData,
		IsActive:     s.IsActive,
		LastRunAt:    s.LastRunAt,
		NextRunAt:    s.NextRunAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// ListResponse 带总数的分页响应
type ListResponse[T any] struct {
	Total int64 `json:"total"`
	Items []T   `json:"items"`
}
