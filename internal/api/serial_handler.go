package api

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/service"
	ws "github.com/wfunc/serialcfg/internal/websocket"
)

// SerialHandler 串口控制处理器
type SerialHandler struct {
	svc *service.ConfigService
	hub *ws.Hub
}

// ConnectRequest 连接请求
type ConnectRequest struct {
	Port string `json:"port" binding:"required"`
}

// SendConfigRequest 发送配置请求
type SendConfigRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// NewSerialHandler 创建串口控制处理器
func NewSerialHandler(svc *service.ConfigService, hub *ws.Hub) *SerialHandler {
	return &SerialHandler{svc: svc, hub: hub}
}

// RegisterRoutes 注册路由
func (h *SerialHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
	router.POST("/ports/scan", h.ScanPorts)

	router.GET("/connection", h.GetConnection)
	router.POST("/connection", h.Connect)
	router.DELETE("/connection", h.Disconnect)

	router.POST("/config", h.SendConfig)

	router.GET("/incoming", h.GetIncoming)
	router.DELETE("/incoming", h.ClearIncoming)
}

// ListPorts 枚举串口，不改变连接状态
func (h *SerialHandler) ListPorts(c *gin.Context) {
	ports, err := h.svc.Client().ListPorts()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"ports": ports,
		"names": service.PortNames(ports),
	})
}

// ScanPorts 重新扫描并自动连接
func (h *SerialHandler) ScanPorts(c *gin.Context) {
	ports, err := h.svc.Scan(c.Request.Context())
	h.broadcastState()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"ports": ports,
		"names": service.PortNames(ports),
		"state": h.svc.State(),
	})
}

// GetConnection 当前连接状态
func (h *SerialHandler) GetConnection(c *gin.Context) {
	respondOK(c, h.svc.State())
}

// Connect 连接指定串口
func (h *SerialHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}

	state, err := h.svc.Connect(c.Request.Context(), req.Port)
	if err != nil {
		respondError(c, err)
		return
	}
	h.broadcastState()
	respondOK(c, state)
}

// Disconnect 断开当前串口
func (h *SerialHandler) Disconnect(c *gin.Context) {
	state, err := h.svc.Stop(c.Request.Context())
	h.broadcastState()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, state)
}

// SendConfig 发送 SSID/密码 配置
func (h *SerialHandler) SendConfig(c *gin.Context) {
	var req SendConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrMessageFormat))
		return
	}

	n, err := h.svc.Send(c.Request.Context(), req.SSID, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"bytes_written": n})
}

// GetIncoming 接收区文本
func (h *SerialHandler) GetIncoming(c *gin.Context) {
	respondOK(c, gin.H{
		"text":  h.svc.Text(),
		"lines": h.svc.Buffer().LineCount(),
	})
}

// ClearIncoming 清空接收区
func (h *SerialHandler) ClearIncoming(c *gin.Context) {
	h.svc.ClearOutput()
	respondOK(c, nil)
}

func (h *SerialHandler) broadcastState() {
	if h.hub != nil {
		h.hub.BroadcastState(h.svc.State())
	}
}
