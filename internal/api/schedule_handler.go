package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/biz/schedule"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cast"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

// ScheduleHandler 调度配置的管理接口
type ScheduleHandler struct {
	schedules schedule.Repo
	registry  *function.Registry
	logger    *zap.Logger
}

func NewScheduleHandler(schedules schedule.Repo, registry *function.Registry, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		registry:  registry,
		logger:    logger,
	}
}

type createScheduleReq struct {
	FunctionName string          `json:"function_name" binding:"required"`
	Schedule     json.RawMessage `json:"schedule" binding:"required"`
	InputData    json.RawMessage `json:"input_data"`
	IsActive     *bool           `json:"is_active"`
}

type updateScheduleReq struct {
	Schedule  json.RawMessage `json:"schedule"`
	InputData json.RawMessage `json:"input_data"`
	IsActive  *bool           `json:"is_active"`
}

// Create 新建调度，落库前先算好NextRunAt
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	if _, err := h.registry.Get(req.FunctionName); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "function " + req.FunctionName + " not found",
		})
		return
	}

	cfg, err := schedule.ParseConfig(req.Schedule)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_CONFIG",
			Message: err.Error(),
		})
		return
	}

	item := &schedule.FunctionSchedule{
		ID:           uint64(idgen.NextId()),
		FunctionName: req.FunctionName,
		Config:       *cfg,
		InputData:    req.InputData,
		IsActive:     true,
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := item.Reschedule(time.Now()); err != nil {
		c.Error(err)
		return
	}

	if err := h.schedules.Create(c.Request.Context(), item); err != nil {
		c.Error(err)
		return
	}

	h.logger.Info("schedule created",
		zap.Uint64("schedule_id", item.ID),
		zap.String("function_name", item.FunctionName))
	c.JSON(http.StatusCreated, toScheduleResponse(item))
}

// Get 调度详情
func (h *ScheduleHandler) Get(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid schedule id"})
		return
	}

	item, err := h.schedules.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(item))
}

// List 调度列表，支持function_name与is_active过滤
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := schedule.ListFilter{}
	if name := c.Query("function_name"); name != "" {
		filter.FunctionName = mo.Some(name)
	}
	if active := c.Query("is_active"); active != "" {
		filter.IsActive = mo.Some(cast.ToBool(active))
	}

	offset := cast.ToInt(c.DefaultQuery("offset", "0"))
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	items, total, err := h.schedules.List(c.Request.Context(), filter, offset, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[ScheduleResponse]{
		Total: total,
		Items: lo.Map(items, func(s *schedule.FunctionSchedule, _ int) ScheduleResponse {
			return toScheduleResponse(s)
		}),
	})
}

// Update 部分更新
// 调度配置变化或重新激活都会从当前时刻重算NextRunAt
func (h *ScheduleHandler) Update(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid schedule id"})
		return
	}

	var req updateScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	item, err := h.schedules.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	reschedule := false
	if req.Schedule != nil {
		cfg, err := schedule.ParseConfig(req.Schedule)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_CONFIG",
				Message: err.Error(),
			})
			return
		}
		item.Config = *cfg
		reschedule = true
	}
	if req.InputData != nil {
		item.InputData = req.InputData
	}
	if req.IsActive != nil {
		if *req.IsActive && !item.IsActive {
			reschedule = true
		}
		item.IsActive = *req.IsActive
	}

	if reschedule && item.IsActive {
		if err := item.Reschedule(time.Now()); err != nil {
			c.Error(err)
			return
		}
	}

	if err := h.schedules.Save(c.Request.Context(), item); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(item))
}

// Delete 删除调度，历史调用记录保留
func (h *ScheduleHandler) Delete(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid schedule id"})
		return
	}

	if err := h.schedules.Delete(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	h.logger.Info("schedule deleted", zap.Uint64("schedule_id", id))
	c.Status(http.StatusNoContent)
}
