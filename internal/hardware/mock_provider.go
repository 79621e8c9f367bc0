package hardware

import (
	"errors"
	"io"
	"regexp"
	"sync"
	"time"
)

// MockProvider 模拟串口驱动，用于 mock_mode 与测试
type MockProvider struct {
	mu      sync.Mutex
	Ports   []PortDescriptor
	ListErr error
	OpenErr error
	// NewPort 自定义打开的串口，为空时创建回显串口
	NewPort func(desc PortDescriptor) *MockPort
	opened  []*MockPort
}

// NewMockProvider 创建模拟驱动
func NewMockProvider(ports ...PortDescriptor) *MockProvider {
	return &MockProvider{Ports: ports}
}

// DefaultMockPorts mock_mode 下的模拟设备
func DefaultMockPorts() []PortDescriptor {
	return []PortDescriptor{
		{ID: "/dev/mock0", Name: "mock0", IsUSB: true, VID: "2341", PID: "0043", Product: "Mock Config Device"},
	}
}

// ListPorts 返回预设串口
func (p *MockProvider) ListPorts() ([]PortDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	ports := make([]PortDescriptor, len(p.Ports))
	copy(ports, p.Ports)
	return ports, nil
}

// Open 打开模拟串口
func (p *MockProvider) Open(desc PortDescriptor, opts PortOptions) (Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}

	var port *MockPort
	if p.NewPort != nil {
		port = p.NewPort(desc)
	} else {
		port = NewMockPort(opts.ReadTimeout)
		port.Responder = EchoResponder
	}
	p.opened = append(p.opened, port)
	return port, nil
}

// Opened 已打开过的模拟串口
func (p *MockProvider) Opened() []*MockPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*MockPort, len(p.opened))
	copy(out, p.opened)
	return out
}

var echoPasswordField = regexp.MustCompile(`;P:[^;]*;`)

// EchoResponder 模拟设备应答 "OK <报文>\n"，应答中的密码字段已脱敏
func EchoResponder(written []byte) []byte {
	masked := echoPasswordField.ReplaceAll(written, []byte(";P:******;"))
	return append(append([]byte("OK "), masked...), '\n')
}

// MockPort 模拟串口句柄
type MockPort struct {
	readTimeout time.Duration
	incoming    chan []byte
	closed      chan struct{}
	closeOnce   sync.Once

	mu         sync.Mutex
	pending    []byte
	written    []byte
	closeCount int

	// WriteErr 写入时返回的错误
	WriteErr error
	// ShortWrite 大于0时每次最多写入的字节数
	ShortWrite int
	// WriteDelay 模拟慢速写入
	WriteDelay time.Duration
	// CloseErr 关闭时返回的错误
	CloseErr error
	// Responder 根据写入内容生成设备应答
	Responder func(written []byte) []byte
}

// NewMockPort 创建模拟串口，readTimeout 为空闲读等待
func NewMockPort(readTimeout time.Duration) *MockPort {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Millisecond
	}
	return &MockPort{
		readTimeout: readTimeout,
		incoming:    make(chan []byte, 64),
		closed:      make(chan struct{}),
	}
}

// Inject 模拟设备发送数据
func (p *MockPort) Inject(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-p.closed:
	case p.incoming <- buf:
	}
}

// Read 读超时返回 (0, nil)，关闭后返回 io.ErrClosedPipe
func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()

	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	case data := <-p.incoming:
		n := copy(b, data)
		if n < len(data) {
			p.mu.Lock()
			p.pending = append(p.pending, data[n:]...)
			p.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Write 记录写入内容，按 Responder 生成应答
func (p *MockPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	if p.WriteDelay > 0 {
		time.Sleep(p.WriteDelay)
	}
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}

	n := len(b)
	if p.ShortWrite > 0 && n > p.ShortWrite {
		n = p.ShortWrite
	}

	p.mu.Lock()
	p.written = append(p.written, b[:n]...)
	p.mu.Unlock()

	if p.Responder != nil {
		if reply := p.Responder(b[:n]); len(reply) > 0 {
			go p.Inject(reply)
		}
	}
	return n, nil
}

// Close 关闭串口，重复关闭只计数
func (p *MockPort) Close() error {
	p.mu.Lock()
	p.closeCount++
	p.mu.Unlock()

	p.closeOnce.Do(func() { close(p.closed) })
	return p.CloseErr
}

// Written 已写入的全部字节
func (p *MockPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

// CloseCount Close 调用次数
func (p *MockPort) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

// IsClosed 是否已关闭
func (p *MockPort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// ErrMockUnavailable 模拟设备不可用
var ErrMockUnavailable = errors.New("mock port unavailable")
