package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Seq       uint64          `json:"seq,omitempty"` // 接收区变更序号
	Timestamp int64           `json:"timestamp"`
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 接收区消息
	MessageTypeSnapshot = "snapshot" // 当前接收区全文
	MessageTypeIncoming = "incoming" // 追加文本
	MessageTypeClear    = "clear"    // 接收区清空
	MessageTypeState    = "state"    // 连接状态变化
)

// SnapshotFunc 返回接收区当前全文及变更序号
type SnapshotFunc func() (string, uint64)

// Hub WebSocket连接管理中心
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	resync     chan *Client
	done       chan struct{}

	snapshot          SnapshotFunc
	heartbeatInterval time.Duration

	logger *zap.Logger
}

// NewHub 创建Hub，snapshot 为空时新连接不推送全文
func NewHub(logger *zap.Logger, snapshot SnapshotFunc) *Hub {
	return &Hub{
		clients:           make(map[string]*Client),
		broadcast:         make(chan *Message, 256),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		resync:            make(chan *Client),
		done:              make(chan struct{}),
		snapshot:          snapshot,
		heartbeatInterval: 30 * time.Second,
		logger:            logger,
	}
}

// Run 运行Hub，ctx 取消后关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case client := <-h.resync:
			h.sendSnapshot(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.broadcastMessage(&Message{Type: MessageTypePing, Timestamp: time.Now().Unix()})

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接", zap.String("client_id", client.ID))

	h.SendToClient(client.ID, NewMessage(MessageTypeConnected, map[string]string{"client_id": client.ID}))
	h.sendSnapshot(client)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开", zap.String("client_id", client.ID))
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		// 已包含在该客户端快照中的变更不再推送
		if message.Seq != 0 && message.Seq <= client.snapshotSeq {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", client.ID))
		}
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// sendSnapshot 推送接收区全文并记录快照序号，仅在 Run 协程中调用
func (h *Hub) sendSnapshot(client *Client) {
	if h.snapshot == nil {
		return
	}
	text, seq := h.snapshot()
	client.snapshotSeq = seq

	msg := NewMessage(MessageTypeSnapshot, map[string]string{"text": text})
	msg.Seq = seq
	h.SendToClient(client.ID, msg)
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息，Hub 已停止时丢弃
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Register 注册客户端，Hub 已停止时关闭发送通道
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// RequestSnapshot 客户端请求重新推送接收区全文
func (h *Hub) RequestSnapshot(client *Client) {
	select {
	case h.resync <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NewMessage 创建消息，data 序列化失败时忽略数据
func NewMessage(msgType string, data interface{}) *Message {
	msg := &Message{Type: msgType, Timestamp: time.Now().Unix()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}
