package hardware

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/logger"
	"go.uber.org/zap"
)

// 默认值
const (
	DefaultMaxLines     = 8
	DefaultOpenTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultCloseTimeout = 3 * time.Second
)

// SerialConfigClient 串口配置客户端
//
// 同一时刻最多持有一个打开的串口。控制操作（扫描、连接、发送、断开）由 mu 串行化；
// 读协程只访问输出端和流量回调，不获取 mu。
type SerialConfigClient struct {
	provider PortProvider
	opts     PortOptions
	sink     TextSink
	hook     TrafficHook
	logger   *zap.Logger

	openTimeout  time.Duration
	writeTimeout time.Duration
	closeTimeout time.Duration

	mu   sync.Mutex
	conn *connection

	// 行数检查与追加需原子执行
	outMu    sync.Mutex
	maxLines int
}

// Option 客户端选项
type Option func(*SerialConfigClient)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(c *SerialConfigClient) { c.logger = l }
}

// WithSink 设置输出端
func WithSink(sink TextSink) Option {
	return func(c *SerialConfigClient) { c.sink = sink }
}

// WithPortOptions 设置串口参数
func WithPortOptions(opts PortOptions) Option {
	return func(c *SerialConfigClient) { c.opts = opts }
}

// WithMaxLines 设置输出端行数上限
func WithMaxLines(n int) Option {
	return func(c *SerialConfigClient) {
		if n > 0 {
			c.maxLines = n
		}
	}
}

// WithTimeouts 设置打开、写入、关闭超时，非正值保持默认
func WithTimeouts(openTimeout, writeTimeout, closeTimeout time.Duration) Option {
	return func(c *SerialConfigClient) {
		if openTimeout > 0 {
			c.openTimeout = openTimeout
		}
		if writeTimeout > 0 {
			c.writeTimeout = writeTimeout
		}
		if closeTimeout > 0 {
			c.closeTimeout = closeTimeout
		}
	}
}

// WithTrafficHook 设置流量回调
func WithTrafficHook(hook TrafficHook) Option {
	return func(c *SerialConfigClient) { c.hook = hook }
}

// NewSerialConfigClient 创建串口配置客户端
func NewSerialConfigClient(provider PortProvider, options ...Option) *SerialConfigClient {
	c := &SerialConfigClient{
		provider:     provider,
		opts:         DefaultPortOptions(),
		logger:       logger.GetModuleLogger("serial"),
		openTimeout:  DefaultOpenTimeout,
		writeTimeout: DefaultWriteTimeout,
		closeTimeout: DefaultCloseTimeout,
		maxLines:     DefaultMaxLines,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.sink == nil {
		c.sink = NewIncomingBuffer()
	}
	return c
}

// Sink 输出端
func (c *SerialConfigClient) Sink() TextSink {
	return c.sink
}

// SetMaxLines 运行时调整行数上限（配置热加载）
func (c *SerialConfigClient) SetMaxLines(n int) {
	if n <= 0 {
		return
	}
	c.outMu.Lock()
	c.maxLines = n
	c.outMu.Unlock()
}

// State 当前连接状态
func (c *SerialConfigClient) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *SerialConfigClient) stateLocked() ConnectionState {
	if c.conn == nil {
		return Disconnected()
	}
	return connectedState(c.conn.desc, c.conn.since)
}

// ListPorts 枚举串口，无副作用
func (c *SerialConfigClient) ListPorts() ([]PortDescriptor, error) {
	ports, err := c.provider.ListPorts()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrPortEnumeration)
	}
	return ports, nil
}

// ScanPorts 关闭当前串口后重新枚举，列表非空时自动连接第一个串口
//
// 自动连接失败时同时返回枚举结果和打开错误。
func (c *SerialConfigClient) ScanPorts(ctx context.Context) ([]PortDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.disconnectLocked(ctx); err != nil {
		c.logger.Warn("扫描前关闭串口失败", zap.Error(err))
	}

	ports, err := c.provider.ListPorts()
	if err != nil {
		c.logger.Error("串口枚举失败", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrPortEnumeration)
	}

	c.logger.Info("串口扫描完成", zap.Int("count", len(ports)))
	if len(ports) == 0 {
		return ports, nil
	}

	if _, err := c.connectLocked(ctx, ports[0]); err != nil {
		return ports, err
	}
	return ports, nil
}

// Connect 打开串口并启动数据监听
//
// 已连接时返回 ErrDeviceBusy，不会关闭已有连接。
func (c *SerialConfigClient) Connect(ctx context.Context, desc PortDescriptor) (ConnectionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.stateLocked(), apperrors.Newf(apperrors.ErrDeviceBusy,
			"port %s is open, disconnect before connecting to %s", c.conn.desc, desc)
	}
	return c.connectLocked(ctx, desc)
}

func (c *SerialConfigClient) connectLocked(ctx context.Context, desc PortDescriptor) (ConnectionState, error) {
	port, err := callWithTimeout(ctx, c.openTimeout, "open "+desc.ID,
		func() (Port, error) { return c.provider.Open(desc, c.opts) },
		func(late Port) { late.Close() },
	)
	if err != nil {
		c.logger.Error("打开串口失败",
			zap.String("port", desc.ID),
			zap.Error(err))
		c.emit(Traffic{Direction: DirectionOpen, Port: desc, Err: err, Time: time.Now()})
		if apperrors.Is(err, apperrors.ErrSerialTimeout) || apperrors.Is(err, apperrors.ErrCanceled) {
			return Disconnected(), err
		}
		return Disconnected(), apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "open %s", desc.ID)
	}

	conn := newConnection(desc, port)
	c.conn = conn
	go c.readLoop(conn)

	c.logger.Info("串口连接成功", zap.String("port", desc.ID))
	c.emit(Traffic{Direction: DirectionOpen, Port: desc, Time: conn.since})

	return c.stateLocked(), nil
}

// Disconnect 关闭当前串口，未连接时为空操作
func (c *SerialConfigClient) Disconnect(ctx context.Context) (ConnectionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked(ctx)
}

func (c *SerialConfigClient) disconnectLocked(ctx context.Context) (ConnectionState, error) {
	conn := c.conn
	if conn == nil {
		return Disconnected(), nil
	}
	c.conn = nil

	close(conn.stop)
	_, closeErr := callWithTimeout(ctx, c.closeTimeout, "close "+conn.desc.ID,
		func() (struct{}, error) { return struct{}{}, conn.port.Close() },
		nil,
	)

	// 等待读协程退出，保证状态行在最后一段数据之后
	timer := time.NewTimer(c.closeTimeout)
	select {
	case <-conn.done:
	case <-timer.C:
		c.logger.Warn("等待串口读协程退出超时", zap.String("port", conn.desc.ID))
	case <-ctx.Done():
	}
	timer.Stop()

	c.AppendOutput("\nPort " + conn.desc.String() + " is now closed")
	c.emit(Traffic{Direction: DirectionClose, Port: conn.desc, Err: closeErr, Time: time.Now()})
	c.logger.Info("串口已关闭", zap.String("port", conn.desc.ID))

	if closeErr != nil {
		return Disconnected(), apperrors.Wrap(closeErr, apperrors.ErrSerialPortClose, conn.desc.ID)
	}
	return Disconnected(), nil
}

// SendConfig 编码并发送配置消息，返回实际写入的字节数
//
// 不等待设备确认。写入字节数少于报文长度时返回 ErrSerialPortWrite 及实际字节数。
func (c *SerialConfigClient) SendConfig(ctx context.Context, msg ConfigMessage) (int, error) {
	data, err := msg.Encode()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.conn
	if conn == nil {
		return 0, apperrors.New(apperrors.ErrNotConnected, "send config")
	}

	n, err := callWithTimeout(ctx, c.writeTimeout, "write "+conn.desc.ID,
		func() (int, error) { return conn.port.Write(data) },
		nil,
	)

	redacted := []byte(msg.Redacted().String())
	c.emit(Traffic{Direction: DirectionSend, Port: conn.desc, Data: redacted, SSID: msg.SSID, Bytes: n, Err: err, Time: time.Now()})

	if err != nil {
		c.logger.Error("发送配置失败",
			zap.String("port", conn.desc.ID),
			zap.Int("bytes", n),
			zap.Error(err))
		if apperrors.Is(err, apperrors.ErrSerialTimeout) || apperrors.Is(err, apperrors.ErrCanceled) {
			return n, err
		}
		return n, apperrors.Wrap(err, apperrors.ErrSerialPortWrite, conn.desc.ID)
	}
	if n != len(data) {
		c.logger.Warn("串口写入不完整",
			zap.String("port", conn.desc.ID),
			zap.Int("written", n),
			zap.Int("expected", len(data)))
		return n, apperrors.Newf(apperrors.ErrSerialPortWrite, "short write %d/%d bytes", n, len(data))
	}

	c.logger.Info("配置已发送",
		zap.String("port", conn.desc.ID),
		zap.String("message", string(redacted)),
		zap.Int("bytes", n))
	return n, nil
}

// AppendOutput 追加文本到输出端，行数达到上限时先清空
func (c *SerialConfigClient) AppendOutput(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if strings.Count(c.sink.Text(), "\n") >= c.maxLines {
		c.sink.Clear()
	}
	c.sink.Append(text)
}

func (c *SerialConfigClient) emit(t Traffic) {
	if c.hook != nil {
		c.hook(t)
	}
}
