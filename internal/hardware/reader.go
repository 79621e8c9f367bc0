package hardware

import (
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	readBufferSize = 4096
	// 驱动以 (0, io.EOF) 表示读超时时的空闲等待
	readIdleDelay = 20 * time.Millisecond
)

// connection 一个打开的串口及其读协程
type connection struct {
	desc  PortDescriptor
	port  Port
	since time.Time
	stop  chan struct{}
	done  chan struct{}
}

func newConnection(desc PortDescriptor, port Port) *connection {
	return &connection{
		desc:  desc,
		port:  port,
		since: time.Now(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (c *connection) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// readLoop 串口数据监听协程，每次读到数据即调用 onDataAvailable
func (c *SerialConfigClient) readLoop(conn *connection) {
	defer close(conn.done)

	buf := make([]byte, readBufferSize)
	dec := &utf8Decoder{}

	for !conn.stopping() {
		n, err := conn.port.Read(buf)
		if n > 0 {
			if conn.stopping() {
				return
			}
			c.onDataAvailable(conn, buf[:n], dec)
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			select {
			case <-conn.stop:
				return
			case <-time.After(readIdleDelay):
			}
			continue
		}

		if conn.stopping() {
			// 断开时关闭句柄导致的读错误
			return
		}

		c.logger.Error("串口读取失败，停止监听",
			zap.String("port", conn.desc.ID),
			zap.Error(err))
		c.emit(Traffic{Direction: DirectionReceive, Port: conn.desc, Err: err, Time: time.Now()})
		return
	}
}

// onDataAvailable 解码读到的字节并按行数上限策略追加到输出端
func (c *SerialConfigClient) onDataAvailable(conn *connection, raw []byte, dec *utf8Decoder) {
	data := make([]byte, len(raw))
	copy(data, raw)

	c.logger.Debug("串口收到数据",
		zap.String("port", conn.desc.ID),
		zap.Int("bytes", len(data)))
	c.emit(Traffic{Direction: DirectionReceive, Port: conn.desc, Data: data, Bytes: len(data), Time: time.Now()})

	if text := dec.Decode(data); text != "" {
		c.AppendOutput(text)
	}
}

// utf8Decoder 以UTF-8解码字节流，跨读取边界的不完整字符留到下一次
type utf8Decoder struct {
	carry []byte
}

// Decode 返回可完整解码的文本，非法字节替换为U+FFFD
func (d *utf8Decoder) Decode(p []byte) string {
	data := append(d.carry, p...)
	d.carry = nil

	cut := len(data)
	for i := len(data) - 1; i >= 0 && len(data)-i < utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}

	if cut < len(data) {
		d.carry = append([]byte(nil), data[cut:]...)
	}
	return strings.ToValidUTF8(string(data[:cut]), "\uFFFD")
}
