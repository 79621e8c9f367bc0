package hardware

import (
	"fmt"
	"path/filepath"

	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// allow tests to override the OS backed calls
var (
	getDetailedPortsList = enumerator.GetDetailedPortsList
	getPortsList         = bugst.GetPortsList
	openBugstPort        = func(name string, mode *bugst.Mode) (bugst.Port, error) { return bugst.Open(name, mode) }
)

// BugstProvider 基于 go.bug.st/serial 的串口驱动，支持USB详细信息枚举
type BugstProvider struct{}

// NewBugstProvider 创建 go.bug.st/serial 驱动
func NewBugstProvider() *BugstProvider {
	return &BugstProvider{}
}

// ListPorts 枚举串口，详细枚举不可用时退回到简单列表
func (p *BugstProvider) ListPorts() ([]PortDescriptor, error) {
	details, err := getDetailedPortsList()
	if err == nil {
		ports := make([]PortDescriptor, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortDescriptor{
				ID:           d.Name,
				Name:         systemPortName(d.Name),
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return ports, nil
	}

	names, listErr := getPortsList()
	if listErr != nil {
		return nil, fmt.Errorf("enumerate ports: %w (detailed: %v)", listErr, err)
	}

	ports := make([]PortDescriptor, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortDescriptor{ID: name, Name: systemPortName(name)})
	}
	return ports, nil
}

// Open 打开串口并设置读超时
func (p *BugstProvider) Open(desc PortDescriptor, opts PortOptions) (Port, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := normalized.BugstMode()
	if err != nil {
		return nil, err
	}

	port, err := openBugstPort(desc.ID, mode)
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(normalized.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return port, nil
}

// systemPortName /dev/ttyUSB0 -> ttyUSB0，COM3 保持不变
func systemPortName(path string) string {
	return filepath.Base(path)
}
