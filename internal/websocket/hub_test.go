package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/serialcfg/internal/hardware"
)

func newTestClient(hub *Hub) *Client {
	return &Client{ID: "c1", Hub: hub, Send: make(chan []byte, 16)}
}

func readMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		require.FailNow(t, "no message")
	}
	return Message{}
}

func TestHubRegisterSendsSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop(), func() (string, uint64) { return "line1\nline2", 3 })
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.Register(client)

	assert.Equal(t, MessageTypeConnected, readMessage(t, client).Type)
	snapshot := readMessage(t, client)
	assert.Equal(t, MessageTypeSnapshot, snapshot.Type)
	assert.JSONEq(t, `{"text":"line1\nline2"}`, string(snapshot.Data))
	assert.Equal(t, uint64(3), snapshot.Seq)
	assert.Equal(t, 1, hub.GetOnlineCount())

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubBridgeBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop(), nil)
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.Register(client)
	assert.Equal(t, MessageTypeConnected, readMessage(t, client).Type)

	buffer := hardware.NewIncomingBuffer()
	bridged := make(chan struct{})
	go func() {
		defer close(bridged)
		hub.BridgeBuffer(ctx, buffer)
	}()

	// 订阅建立前的追加不会被转发，重试直到收到
	var msg Message
	require.Eventually(t, func() bool {
		buffer.Append("OK")
		select {
		case raw := <-client.Send:
			return json.Unmarshal(raw, &msg) == nil
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, time.Second, time.Millisecond)
	assert.Equal(t, MessageTypeIncoming, msg.Type)
	assert.JSONEq(t, `{"text":"OK"}`, string(msg.Data))

	buffer.Clear()
	// 跳过重试期间多余的追加消息
	next := readMessage(t, client)
	for next.Type == MessageTypeIncoming {
		next = readMessage(t, client)
	}
	assert.Equal(t, MessageTypeClear, next.Type)

	buffer.Close()
	select {
	case <-bridged:
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop after buffer close")
	}
}

func TestHubSkipsEventsCoveredBySnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buffer := hardware.NewIncomingBuffer()
	_, events := buffer.Subscribe()
	buffer.Append("A")
	inFlight := <-events

	hub := NewHub(zap.NewNop(), buffer.Snapshot)
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.Register(client)
	assert.Equal(t, MessageTypeConnected, readMessage(t, client).Type)
	snapshot := readMessage(t, client)
	assert.JSONEq(t, `{"text":"A"}`, string(snapshot.Data))

	// 注册前已追加、注册后才转发的事件已在快照中
	stale := NewMessage(MessageTypeIncoming, map[string]string{"text": inFlight.Text})
	stale.Seq = inFlight.Seq
	hub.Broadcast(stale)

	buffer.Append("B")
	next := <-events
	fresh := NewMessage(MessageTypeIncoming, map[string]string{"text": next.Text})
	fresh.Seq = next.Seq
	hub.Broadcast(fresh)

	msg := readMessage(t, client)
	assert.JSONEq(t, `{"text":"B"}`, string(msg.Data))
	assert.Equal(t, next.Seq, msg.Seq)

	// 重新请求快照后序号前移
	hub.RequestSnapshot(client)
	resent := readMessage(t, client)
	assert.Equal(t, MessageTypeSnapshot, resent.Type)
	assert.JSONEq(t, `{"text":"AB"}`, string(resent.Data))
	hub.Broadcast(fresh)
	hub.Broadcast(NewMessage(MessageTypeState, hardware.Disconnected()))
	assert.Equal(t, MessageTypeState, readMessage(t, client).Type)
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop(), nil)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		hub.Run(ctx)
	}()

	client := newTestClient(hub)
	hub.Register(client)
	readMessage(t, client)

	cancel()
	<-stopped

	_, ok := <-client.Send
	assert.False(t, ok)

	// 停止后注册立即关闭发送通道，广播不阻塞
	late := newTestClient(hub)
	hub.Register(late)
	_, ok = <-late.Send
	assert.False(t, ok)

	hub.Broadcast(NewMessage(MessageTypeState, hardware.Disconnected()))
}
