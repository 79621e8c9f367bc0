package hardware

import (
	"io"
)

// Port 已打开的串口句柄
//
// Read 在读超时到期时可以返回 (0, nil) 或 (0, io.EOF)，读循环都视为空闲。
type Port interface {
	io.ReadWriteCloser
}

// PortProvider 串口枚举与打开能力
type PortProvider interface {
	// ListPorts 枚举系统可见的串口，顺序即系统返回顺序
	ListPorts() ([]PortDescriptor, error)
	// Open 按描述打开串口
	Open(desc PortDescriptor, opts PortOptions) (Port, error)
}
