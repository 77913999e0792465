package api

import (
	"net/http"

	"github.com/funcbase/engine/internal/biz/call"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cast"
)

// CallHandler 调用审计账本的查询接口
type CallHandler struct {
	calls call.Repo
}

func NewCallHandler(calls call.Repo) *CallHandler {
	return &CallHandler{calls: calls}
}

// List 按函数名、状态、触发来源过滤的调用历史
func (h *CallHandler) List(c *gin.Context) {
	filter := call.ListFilter{}
	if name := c.Query("function_name"); name != "" {
		filter.FunctionName = mo.Some(name)
	}
	if status := c.Query("status"); status != "" {
		filter.Status = mo.Some(call.CallStatus(status))
	}
	if trigger := c.Query("trigger_type"); trigger != "" {
		filter.TriggerType = mo.Some(call.TriggerType(trigger))
	}

	offset := cast.ToInt(c.DefaultQuery("offset", "0"))
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	records, total, err := h.calls.List(c.Request.Context(), filter, offset, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[CallResponse]{
		Total: total,
		Items: lo.Map(records, func(record *call.FunctionCall, _ int) CallResponse {
			return toCallResponse(record)
		}),
	})
}

// Get 单条调用详情
func (h *CallHandler) Get(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid call id"})
		return
	}

	record, err := h.calls.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toCallResponse(record))
}
