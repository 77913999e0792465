package callrepo

import (
	"encoding/json"

	domain "github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/infra/persistence/commonrepo"
)

func (po *FunctionCall) ToDomain() *domain.FunctionCall {
	return &domain.FunctionCall{
		ID:           po.ID,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
		FunctionName: po.FunctionName,
		VersionID:    po.VersionID,
		Status:       po.Status,
		TriggerType:  po.TriggerType,
		TriggerID:    po.TriggerID,
		RequestedBy:  po.RequestedBy,
		StartedAt:    po.StartedAt,
		FinishedAt:   po.FinishedAt,
		DurationMs:   po.DurationMs,
		ErrorType:    domain.ErrorType(po.ErrorType),
		ErrorMessage: po.ErrorMessage,
		Result:       json.RawMessage(po.Result),
	}
}

func (po *FunctionCall) FromDomain(call *domain.FunctionCall) *FunctionCall {
	return &FunctionCall{
		Mode: commonrepo.Mode{
			ID:        call.ID,
			CreatedAt: call.CreatedAt,
			UpdatedAt: call.UpdatedAt,
		},
		FunctionName: call.FunctionName,
		VersionID:    call.VersionID,
		Status:       call.Status,
		TriggerType:  call.TriggerType,
		TriggerID:    call.TriggerID,
		RequestedBy:  call.RequestedBy,
		StartedAt:    call.StartedAt,
		FinishedAt:   call.FinishedAt,
		DurationMs:   call.DurationMs,
		ErrorType:    string(call.ErrorType),
		ErrorMessage: call.ErrorMessage,
		Result:       []byte(call.Result),
	}
}
