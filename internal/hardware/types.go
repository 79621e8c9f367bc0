package hardware

import (
	"time"
)

// PortDescriptor 可发现的串口描述（枚举结果，不可变）
type PortDescriptor struct {
	ID   string `json:"id"`   // 打开串口使用的系统路径，如 /dev/ttyUSB0、COM3
	Name string `json:"name"` // 系统端口名称，如 ttyUSB0

	IsUSB        bool   `json:"is_usb,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// String 返回系统端口名称
func (d PortDescriptor) String() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// ConnectionState 连接状态：Disconnected 或 Connected(PortDescriptor)
type ConnectionState struct {
	Connected bool            `json:"connected"`
	Port      *PortDescriptor `json:"port,omitempty"`
	Since     time.Time       `json:"since,omitempty"`
}

// Disconnected 未连接状态
func Disconnected() ConnectionState {
	return ConnectionState{}
}

// connectedState 已连接状态
func connectedState(desc PortDescriptor, since time.Time) ConnectionState {
	return ConnectionState{Connected: true, Port: &desc, Since: since}
}

// String 状态描述
func (s ConnectionState) String() string {
	if !s.Connected || s.Port == nil {
		return "Disconnected"
	}
	return "Connected(" + s.Port.String() + ")"
}

// Direction 串口流量方向
type Direction string

const (
	DirectionSend    Direction = "SEND"
	DirectionReceive Direction = "RECEIVE"
	DirectionOpen    Direction = "OPEN"
	DirectionClose   Direction = "CLOSE"
)

// Traffic 一次串口流量事件
type Traffic struct {
	Direction Direction
	Port      PortDescriptor
	Data      []byte // 发送时为脱敏后的报文
	SSID      string // 仅发送配置时有值
	Bytes     int    // 实际读写字节数
	Err       error
	Time      time.Time
}

// TrafficHook 流量回调，同步调用，实现方不应阻塞
type TrafficHook func(Traffic)
