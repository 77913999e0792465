package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/engine"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// FunctionHandler 函数调用与函数目录
type FunctionHandler struct {
	registry        *function.Registry
	versions        function.Repo
	eng             *engine.Engine
	maxPayloadBytes int64
	retryAfter      int
	logger          *zap.Logger
}

func NewFunctionHandler(registry *function.Registry, versions function.Repo, eng *engine.Engine, maxPayloadBytes int64, retryAfterSeconds int, logger *zap.Logger) *FunctionHandler {
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 1
	}
	return &FunctionHandler{
		registry:        registry,
		versions:        versions,
		eng:             eng,
		maxPayloadBytes: maxPayloadBytes,
		retryAfter:      retryAfterSeconds,
		logger:          logger,
	}
}

// Invoke 同步执行函数
// 请求体整体作为payload透传，执行结果与审计记录一并返回
func (h *FunctionHandler) Invoke(c *gin.Context) {
	identity := callerIdentity(c)

	// 比上限多读一个字节，超限由引擎按PayloadTooLarge分类
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxPayloadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "BAD_REQUEST",
			Message: "failed to read request body",
		})
		return
	}

	// 非法JSON在dispatch前拒绝，不落审计行也不碰worker
	if len(payload) > 0 && !json.Valid(payload) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "BAD_REQUEST",
			Message: "request body must be valid JSON",
		})
		return
	}

	record, err := h.eng.Execute(c.Request.Context(), engine.Request{
		FunctionName: c.Param("name"),
		Payload:      payload,
		TriggerType:  call.TriggerTypeManual,
		CallerID:     identity.UserID,
		CallerLevel:  identity.Level,
	})
	if err != nil {
		h.writeExecError(c, record, err)
		return
	}

	c.JSON(http.StatusOK, toCallResponse(record))
}

func (h *FunctionHandler) writeExecError(c *gin.Context, record *call.FunctionCall, err error) {
	execErr, ok := call.AsExecError(err)
	if !ok {
		c.Error(err)
		return
	}

	body := gin.H{
		"error_type": string(execErr.Type()),
		"message":    execErr.Message(),
	}
	if record != nil {
		body["call_id"] = record.ID
	}
	if execErr.Type() == call.ErrorTypeRateLimited {
		c.Header("Retry-After", strconv.Itoa(h.retryAfter))
	}
	c.JSON(execErrorStatus(execErr.Type()), body)
}

func execErrorStatus(errType call.ErrorType) int {
	switch errType {
	case call.ErrorTypeNotFound:
		return http.StatusNotFound
	case call.ErrorTypeForbidden:
		return http.StatusForbidden
	case call.ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case call.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case call.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ListFunctions 当前生效的函数目录
func (h *FunctionHandler) ListFunctions(c *gin.Context) {
	metas := h.registry.All()
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })

	items := lo.Map(metas, func(meta *function.FunctionMeta, _ int) FunctionResponse {
		return toFunctionResponse(meta)
	})
	c.JSON(http.StatusOK, ListResponse[FunctionResponse]{
		Total: int64(len(items)),
		Items: items,
	})
}

// ListVersions 持久化的版本历史，含已被替换的旧版本
func (h *FunctionHandler) ListVersions(c *gin.Context) {
	filter := function.ListFilter{}
	if name := c.Query("name"); name != "" {
		filter.Name = mo.Some(name)
	}
	if hash := c.Query("content_hash"); hash != "" {
		filter.ContentHash = mo.Some(hash)
	}

	offset := cast.ToInt(c.DefaultQuery("offset", "0"))
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	metas, total, err := h.versions.List(c.Request.Context(), filter, offset, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[FunctionResponse]{
		Total: total,
		Items: lo.Map(metas, func(meta *function.FunctionMeta, _ int) FunctionResponse {
			return toFunctionResponse(meta)
		}),
	})
}
