package hardware

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TextSink 接收文本的输出端
type TextSink interface {
	Append(text string)
	Clear()
	Text() string
}

// BufferEventType 缓冲区事件类型
type BufferEventType string

const (
	BufferEventAppend BufferEventType = "append"
	BufferEventClear  BufferEventType = "clear"
)

// BufferEvent 缓冲区变更事件，Seq 随每次变更递增
type BufferEvent struct {
	Type BufferEventType `json:"type"`
	Text string          `json:"text,omitempty"`
	Seq  uint64          `json:"seq"`
}

// IncomingBuffer 只追加的接收文本缓冲区，支持订阅变更
//
// 行数上限策略由写入方（SerialConfigClient）执行。
type IncomingBuffer struct {
	mu          sync.Mutex
	text        strings.Builder
	seq         uint64
	subscribers map[string]chan BufferEvent
	closed      bool
}

// NewIncomingBuffer 创建接收缓冲区
func NewIncomingBuffer() *IncomingBuffer {
	return &IncomingBuffer{
		subscribers: make(map[string]chan BufferEvent),
	}
}

// Append 追加文本
func (b *IncomingBuffer) Append(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.WriteString(text)
	b.seq++
	b.publish(BufferEvent{Type: BufferEventAppend, Text: text, Seq: b.seq})
}

// Clear 清空缓冲区
func (b *IncomingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.Reset()
	b.seq++
	b.publish(BufferEvent{Type: BufferEventClear, Seq: b.seq})
}

// Text 当前文本
func (b *IncomingBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}

// Snapshot 当前文本及其对应的变更序号
//
// 序号不大于 seq 的事件已包含在返回的文本中。
func (b *IncomingBuffer) Snapshot() (string, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String(), b.seq
}

// LineCount 当前换行符数量
func (b *IncomingBuffer) LineCount() int {
	return strings.Count(b.Text(), "\n")
}

// Subscribe 订阅缓冲区变更，返回订阅ID与事件通道
func (b *IncomingBuffer) Subscribe() (string, <-chan BufferEvent) {
	id := uuid.New().String()
	ch := make(chan BufferEvent, 64)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe 取消订阅
func (b *IncomingBuffer) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Close 关闭所有订阅
func (b *IncomingBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// publish 调用方需持有锁
func (b *IncomingBuffer) publish(ev BufferEvent) {
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// 订阅方处理过慢时丢弃，不阻塞串口读循环
		}
	}
}
