package api

import (
	"net/http"
	"time"

	"github.com/funcbase/engine/internal/auth"
	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/biz/schedule"
	"github.com/funcbase/engine/internal/engine"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options HTTP层参数
type Options struct {
	MaxPayloadBytes   int64
	RetryAfterSeconds int
}

type Server struct {
	router *gin.Engine
}

func NewServer(
	registry *function.Registry,
	functions function.Repo,
	eng *engine.Engine,
	schedules schedule.Repo,
	calls call.Repo,
	resolver auth.Resolver,
	opts Options,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(ErrorHandlingMiddleware(logger))
	s.router.Use(Cors())
	s.router.Use(AuthMiddleware(resolver))

	functionHandler := NewFunctionHandler(registry, functions, eng, opts.MaxPayloadBytes, opts.RetryAfterSeconds, logger)
	scheduleHandler := NewScheduleHandler(schedules, registry, logger)
	callHandler := NewCallHandler(calls)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now()})
	})

	s.router.POST("/functions/:name", functionHandler.Invoke)

	admin := s.router.Group("/admin", RequireAdmin())
	{
		admin.GET("/functions", functionHandler.ListFunctions)
		admin.GET("/function-versions", functionHandler.ListVersions)

		schedulesGroup := admin.Group("/schedules")
		{
			schedulesGroup.POST("", scheduleHandler.Create)
			schedulesGroup.GET("", scheduleHandler.List)
			schedulesGroup.GET("/:id", scheduleHandler.Get)
			schedulesGroup.PATCH("/:id", scheduleHandler.Update)
			schedulesGroup.DELETE("/:id", scheduleHandler.Delete)
		}

		admin.GET("/function-calls", callHandler.List)
		admin.GET("/function-calls/:id", callHandler.Get)
	}

	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
