package hardware

import (
	"path/filepath"
	"sort"

	tarm "github.com/tarm/serial"
)

var openTarmPort = func(cfg *tarm.Config) (Port, error) {
	port, err := tarm.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// DefaultDevicePatterns Linux与macOS上常见的串口设备
var DefaultDevicePatterns = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

// TarmProvider 基于 tarm/serial 的串口驱动
//
// tarm/serial 不提供枚举，串口通过设备路径模式匹配发现。
type TarmProvider struct {
	Patterns []string
}

// NewTarmProvider 创建 tarm/serial 驱动
func NewTarmProvider(patterns []string) *TarmProvider {
	if len(patterns) == 0 {
		patterns = DefaultDevicePatterns
	}
	return &TarmProvider{Patterns: patterns}
}

// ListPorts 按模式顺序匹配设备，同一模式内按名称排序
func (p *TarmProvider) ListPorts() ([]PortDescriptor, error) {
	seen := make(map[string]bool)
	var ports []PortDescriptor

	for _, pattern := range p.Patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			// 模式错误跳过
			continue
		}
		sort.Strings(matches)

		for _, device := range matches {
			if seen[device] {
				continue
			}
			seen[device] = true
			ports = append(ports, PortDescriptor{ID: device, Name: systemPortName(device)})
		}
	}

	return ports, nil
}

// Open 打开串口
func (p *TarmProvider) Open(desc PortDescriptor, opts PortOptions) (Port, error) {
	cfg, err := opts.TarmConfig(desc.ID)
	if err != nil {
		return nil, err
	}
	return openTarmPort(cfg)
}
