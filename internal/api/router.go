package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/serialcfg/internal/middleware"
	"github.com/wfunc/serialcfg/internal/service"
	ws "github.com/wfunc/serialcfg/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 路由依赖，Logs/Hub/DB 可为空
type Options struct {
	Config        *service.ConfigService
	Logs          *service.SerialLogService
	Hub           *ws.Hub
	DB            *gorm.DB
	RetentionDays int
	Logger        *zap.Logger
}

// Router API路由器
type Router struct {
	engine        *gin.Engine
	db            *gorm.DB
	serialHandler *SerialHandler
	serialLogAPI  *SerialLogAPI
	wsHandler     *WebSocketHandler
	log           *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts Options) *Router {
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := &Router{
		engine:        engine,
		db:            opts.DB,
		serialHandler: NewSerialHandler(opts.Config, opts.Hub),
		log:           log,
	}
	if opts.Logs != nil {
		router.serialLogAPI = NewSerialLogAPI(opts.Logs, opts.RetentionDays)
	}
	if opts.Hub != nil {
		router.wsHandler = NewWebSocketHandler(opts.Hub, log)
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		r.serialHandler.RegisterRoutes(v1)

		if r.serialLogAPI != nil {
			r.serialLogAPI.RegisterRoutes(v1)
		}
	}

	if r.wsHandler != nil {
		r.engine.GET("/ws", r.wsHandler.IncomingWebSocket)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status": "healthy",
		"serial": r.serialHandler.svc.State(),
	}

	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil || sqlDB.Ping() != nil {
			resp["status"] = "unhealthy"
			resp["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	c.JSON(http.StatusOK, resp)
}

// Handler HTTP处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
