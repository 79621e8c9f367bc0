package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/models"
	"github.com/wfunc/serialcfg/internal/service"
)

// SerialLogAPI 串口日志API
type SerialLogAPI struct {
	service       *service.SerialLogService
	retentionDays int
}

// NewSerialLogAPI 创建串口日志API
func NewSerialLogAPI(service *service.SerialLogService, retentionDays int) *SerialLogAPI {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &SerialLogAPI{
		service:       service,
		retentionDays: retentionDays,
	}
}

// RegisterRoutes 注册路由
func (api *SerialLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/serial-logs")
	{
		logs.GET("", api.QueryLogs)            // 查询日志列表
		logs.GET("/latest", api.GetLatestLogs) // 获取最新日志
		logs.GET("/stats", api.GetStats)       // 获取统计信息
		logs.GET("/errors", api.GetErrorLogs)  // 获取错误日志
		logs.POST("/cleanup", api.CleanupLogs) // 清理旧日志
		logs.GET("/export", api.ExportLogs)    // 导出日志
	}
}

// bindQuery 解析查询参数，查询前写入缓冲中的日志
func (api *SerialLogAPI) bindQuery(c *gin.Context, defaultLimit int) (*models.SerialLogQuery, bool) {
	query := &models.SerialLogQuery{}
	if err := c.ShouldBindQuery(query); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return nil, false
	}
	if query.Limit <= 0 {
		query.Limit = defaultLimit
	}
	api.service.Flush()
	return query, true
}

// QueryLogs 查询日志列表
func (api *SerialLogAPI) QueryLogs(c *gin.Context) {
	query, ok := api.bindQuery(c, 20)
	if !ok {
		return
	}

	logs, total, err := api.service.Query(query)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
		"total":   total,
		"limit":   query.Limit,
		"offset":  query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *SerialLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	api.service.Flush()

	logs, err := api.service.GetLatestLogs(limit, c.Query("port"))
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
		"count":   len(logs),
	})
}

// GetStats 获取统计信息
func (api *SerialLogAPI) GetStats(c *gin.Context) {
	var startTime, endTime *time.Time

	if start := c.Query("start_time"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = &t
		}
	}
	if end := c.Query("end_time"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}

	api.service.Flush()
	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	respondOK(c, stats)
}

// GetErrorLogs 获取错误日志
func (api *SerialLogAPI) GetErrorLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	api.service.Flush()

	logs, err := api.service.GetErrorLogs(limit)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
		"count":   len(logs),
	})
}

// CleanupLogs 清理旧日志
func (api *SerialLogAPI) CleanupLogs(c *gin.Context) {
	retentionDays, err := strconv.Atoi(c.DefaultPostForm("retention_days", strconv.Itoa(api.retentionDays)))
	if err != nil || retentionDays < 1 {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "保留天数必须大于0"))
		return
	}

	count, err := api.service.CleanupOldLogs(retentionDays)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseDelete))
		return
	}

	respondOK(c, gin.H{
		"deleted":        count,
		"retention_days": retentionDays,
	})
}

// ExportLogs 导出日志
func (api *SerialLogAPI) ExportLogs(c *gin.Context) {
	query, ok := api.bindQuery(c, 1000)
	if !ok {
		return
	}

	data, err := api.service.ExportLogs(query)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.Header("Content-Disposition", "attachment; filename=serial_logs_export.json")
	c.Data(http.StatusOK, "application/json", data)
}
