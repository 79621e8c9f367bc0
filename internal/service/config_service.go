package service

import (
	"context"
	"strings"
	"sync"

	"github.com/wfunc/serialcfg/internal/config"
	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/hardware"
	"github.com/wfunc/serialcfg/internal/logger"
	"go.uber.org/zap"
)

// 操作员状态提示
const (
	StatusInitializing = "Initializing com ports..."
	StatusUseFirstPort = "System will use the first available port"
	StatusUsePort      = "System will use port:"
	StatusNoPorts      = "There are no available ports, please scan again"
	StatusInvalidSSID  = "Error, please enter a valid SSID"
	StatusPortMissing  = "Configured port is not available: "
)

// NewPortProvider 按配置选择串口驱动
func NewPortProvider(cfg *config.SerialConfig) hardware.PortProvider {
	if cfg.MockMode {
		return hardware.NewMockProvider(hardware.DefaultMockPorts()...)
	}
	switch cfg.Driver {
	case "tarm":
		return hardware.NewTarmProvider(cfg.Patterns)
	default:
		return hardware.NewBugstProvider()
	}
}

// PortOptionsFrom 串口配置转换为串口参数
func PortOptionsFrom(cfg *config.SerialConfig) hardware.PortOptions {
	return hardware.PortOptions{
		BaudRate:    cfg.BaudRate,
		DataBits:    cfg.DataBits,
		StopBits:    cfg.StopBits,
		Parity:      cfg.Parity,
		ReadTimeout: cfg.ReadTimeout,
	}
}

// ConfigService 串口配置服务
//
// 封装操作员流程：初始化扫描、状态提示、SSID校验提示和流量日志。
type ConfigService struct {
	client    *hardware.SerialConfigClient
	buffer    *hardware.IncomingBuffer
	logs      *SerialLogService
	fixedPort string
	logger    *zap.Logger

	mu    sync.RWMutex
	ports []hardware.PortDescriptor
}

// NewConfigService 创建串口配置服务，logs 为空时不记录流量日志
func NewConfigService(provider hardware.PortProvider, cfg *config.Config, logs *SerialLogService) *ConfigService {
	s := &ConfigService{
		buffer:    hardware.NewIncomingBuffer(),
		logs:      logs,
		fixedPort: strings.TrimSpace(cfg.Serial.Port),
		logger:    logger.GetModuleLogger("serial"),
	}

	s.client = hardware.NewSerialConfigClient(provider,
		hardware.WithLogger(s.logger),
		hardware.WithSink(s.buffer),
		hardware.WithMaxLines(cfg.Buffer.MaxLines),
		hardware.WithPortOptions(PortOptionsFrom(&cfg.Serial)),
		hardware.WithTimeouts(cfg.Serial.OpenTimeout, cfg.Serial.WriteTimeout, cfg.Serial.CloseTimeout),
		hardware.WithTrafficHook(s.onTraffic),
	)
	return s
}

// Client 串口配置客户端
func (s *ConfigService) Client() *hardware.SerialConfigClient {
	return s.client
}

// Buffer 接收缓冲区
func (s *ConfigService) Buffer() *hardware.IncomingBuffer {
	return s.buffer
}

// Initialize 启动时的初始化流程：重置输出并扫描串口
func (s *ConfigService) Initialize(ctx context.Context) ([]hardware.PortDescriptor, error) {
	s.buffer.Clear()
	s.client.AppendOutput(StatusInitializing)
	if s.fixedPort == "" {
		s.status(StatusUseFirstPort)
	} else {
		s.status(StatusUsePort + s.fixedPort)
	}
	return s.Scan(ctx)
}

// Scan 重新扫描串口并连接（自动选择第一个或固定串口）
func (s *ConfigService) Scan(ctx context.Context) ([]hardware.PortDescriptor, error) {
	if s.fixedPort != "" {
		return s.scanFixed(ctx)
	}

	ports, err := s.client.ScanPorts(ctx)
	if ports != nil || err == nil {
		s.setPorts(ports)
	}
	if apperrors.Is(err, apperrors.ErrPortEnumeration) {
		return nil, err
	}

	if len(ports) == 0 {
		s.status(StatusNoPorts)
		return ports, nil
	}
	s.status(StatusUsePort + ports[0].String())
	return ports, err
}

func (s *ConfigService) scanFixed(ctx context.Context) ([]hardware.PortDescriptor, error) {
	if _, err := s.client.Disconnect(ctx); err != nil {
		s.logger.Warn("扫描前关闭串口失败", zap.Error(err))
	}

	ports, err := s.client.ListPorts()
	if err != nil {
		return nil, err
	}
	s.setPorts(ports)

	if len(ports) == 0 {
		s.status(StatusNoPorts)
		return ports, nil
	}

	desc, ok := findPort(ports, s.fixedPort)
	if !ok {
		s.status(StatusPortMissing + s.fixedPort)
		return ports, apperrors.New(apperrors.ErrNotFound, s.fixedPort)
	}

	s.status(StatusUsePort + desc.String())
	_, err = s.client.Connect(ctx, desc)
	return ports, err
}

// Ports 最近一次扫描的串口
func (s *ConfigService) Ports() []hardware.PortDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]hardware.PortDescriptor, len(s.ports))
	copy(out, s.ports)
	return out
}

// PortNames 串口名称列表，每个名称后跟一个空格
func (s *ConfigService) PortNames() string {
	return PortNames(s.Ports())
}

// PortNames 串口名称列表，如 "ttyUSB0 ttyUSB1 "
func PortNames(ports []hardware.PortDescriptor) string {
	var b strings.Builder
	for _, p := range ports {
		b.WriteString(p.String())
		b.WriteByte(' ')
	}
	return b.String()
}

// Connect 按名称或路径连接串口，名称先在最近一次扫描结果中查找
func (s *ConfigService) Connect(ctx context.Context, name string) (hardware.ConnectionState, error) {
	desc, ok := findPort(s.Ports(), name)
	if !ok {
		ports, err := s.client.ListPorts()
		if err != nil {
			return s.client.State(), err
		}
		s.setPorts(ports)
		if desc, ok = findPort(ports, name); !ok {
			return s.client.State(), apperrors.New(apperrors.ErrNotFound, name)
		}
	}
	return s.client.Connect(ctx, desc)
}

// Send 发送配置，SSID为空时输出提示
func (s *ConfigService) Send(ctx context.Context, ssid, password string) (int, error) {
	n, err := s.client.SendConfig(ctx, hardware.ConfigMessage{SSID: ssid, Password: password})
	if apperrors.Is(err, apperrors.ErrInvalidConfig) {
		s.status(StatusInvalidSSID)
	}
	return n, err
}

// Stop 断开当前串口
func (s *ConfigService) Stop(ctx context.Context) (hardware.ConnectionState, error) {
	return s.client.Disconnect(ctx)
}

// State 当前连接状态
func (s *ConfigService) State() hardware.ConnectionState {
	return s.client.State()
}

// Text 接收区文本
func (s *ConfigService) Text() string {
	return s.buffer.Text()
}

// ClearOutput 清空接收区
func (s *ConfigService) ClearOutput() {
	s.buffer.Clear()
}

// ApplyConfig 配置热加载时更新可在线调整的参数
func (s *ConfigService) ApplyConfig(cfg *config.Config) {
	s.client.SetMaxLines(cfg.Buffer.MaxLines)
}

// Close 断开串口并关闭缓冲区订阅
func (s *ConfigService) Close(ctx context.Context) error {
	_, err := s.client.Disconnect(ctx)
	s.buffer.Close()
	return err
}

// status 输出一行状态提示，遵循行数上限策略
func (s *ConfigService) status(line string) {
	s.client.AppendOutput("\n" + line)
}

func (s *ConfigService) setPorts(ports []hardware.PortDescriptor) {
	s.mu.Lock()
	s.ports = ports
	s.mu.Unlock()
}

func (s *ConfigService) onTraffic(t hardware.Traffic) {
	logger.LogSerialTraffic(string(t.Direction), t.Port.ID, string(t.Data), t.Bytes, t.Err)
	if s.logs != nil {
		s.logs.RecordTraffic(t)
	}
}

func findPort(ports []hardware.PortDescriptor, name string) (hardware.PortDescriptor, bool) {
	for _, p := range ports {
		if p.ID == name || p.Name == name {
			return p, true
		}
	}
	return hardware.PortDescriptor{}, false
}
