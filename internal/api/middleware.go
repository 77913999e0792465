package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/funcbase/engine/internal/auth"
	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/biz/schedule"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "funcbase.identity"

// ErrorResponse 统一错误响应格式
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Cors CORS配置
func Cors() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	return cors.New(config)
}

// ErrorHandlingMiddleware 统一错误处理中间件
func ErrorHandlingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "An internal error occurred",
				})
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			logger.Error("request error",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))

			switch {
			case errors.Is(err, function.ErrFunctionNotFound),
				errors.Is(err, schedule.ErrScheduleNotFound),
				errors.Is(err, call.ErrCallNotFound):
				c.JSON(http.StatusNotFound, ErrorResponse{
					Code:    "NOT_FOUND",
					Message: "Resource not found",
				})
			case errors.Is(err, schedule.ErrInvalidConfig):
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Code:    "INVALID_CONFIG",
					Message: "Invalid schedule config",
					Details: err.Error(),
				})
			default:
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "An error occurred while processing your request",
					Details: err.Error(),
				})
			}
		}
	}
}

// AuthMiddleware 解析Authorization头并注入调用方身份
func AuthMiddleware(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		c.Set(identityKey, resolver.Resolve(token))
		c.Next()
	}
}

// RequireAdmin 管理接口门禁
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := callerIdentity(c)
		if !identity.Level.Satisfies(function.AuthLevelAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    "FORBIDDEN",
				Message: "Admin access required",
			})
			return
		}
		c.Next()
	}
}

func callerIdentity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Identity{UserID: "anonymous", Level: function.AuthLevelPublic}
}
