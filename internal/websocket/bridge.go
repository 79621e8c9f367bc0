package websocket

import (
	"context"

	"github.com/wfunc/serialcfg/internal/hardware"
)

// BridgeBuffer 将接收区变更转发给所有WebSocket客户端，直到ctx取消或缓冲区关闭
func (h *Hub) BridgeBuffer(ctx context.Context, buffer *hardware.IncomingBuffer) {
	id, events := buffer.Subscribe()
	defer buffer.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var msg *Message
			switch ev.Type {
			case hardware.BufferEventAppend:
				msg = NewMessage(MessageTypeIncoming, map[string]string{"text": ev.Text})
			case hardware.BufferEventClear:
				msg = NewMessage(MessageTypeClear, nil)
			default:
				continue
			}
			msg.Seq = ev.Seq
			h.Broadcast(msg)
		}
	}
}

// BroadcastState 广播连接状态
func (h *Hub) BroadcastState(state hardware.ConnectionState) {
	h.Broadcast(NewMessage(MessageTypeState, state))
}
