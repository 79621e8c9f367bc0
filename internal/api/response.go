package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/logger"
	"github.com/wfunc/serialcfg/internal/middleware"
)

// respondOK 成功响应
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError 按错误码返回错误响应，不输出调用栈，服务端错误写入错误日志
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}

	requestID := middleware.GetRequestID(c)
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		logger.LogError(err, "request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", int(appErr.Code)),
			zap.String("request_id", requestID),
		)
	}

	public := *appErr
	public.Stack = nil
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(&public, requestID))
}
