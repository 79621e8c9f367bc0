package models

import (
	"time"

	"gorm.io/gorm"
)

// SerialLogLevel 日志级别
type SerialLogLevel string

const (
	SerialLogLevelInfo  SerialLogLevel = "INFO"
	SerialLogLevelDebug SerialLogLevel = "DEBUG"
	SerialLogLevelWarn  SerialLogLevel = "WARN"
	SerialLogLevelError SerialLogLevel = "ERROR"
)

// 流量方向
const (
	DirectionSend    = "SEND"
	DirectionReceive = "RECEIVE"
	DirectionOpen    = "OPEN"
	DirectionClose   = "CLOSE"
)

// SerialLog 串口通信日志
type SerialLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 基础信息
	Port      string         `gorm:"type:varchar(255);index;not null" json:"port"`     // 系统路径，如 /dev/ttyUSB0
	PortName  string         `gorm:"type:varchar(100)" json:"port_name"`               // 端口名称，如 ttyUSB0
	Direction string         `gorm:"type:varchar(10);index;not null" json:"direction"` // SEND/RECEIVE/OPEN/CLOSE
	Level     SerialLogLevel `gorm:"type:varchar(10);default:INFO" json:"level"`

	// 数据内容（发送报文中的密码已脱敏）
	RawData    string `gorm:"type:text" json:"raw_data,omitempty"`
	HexData    string `gorm:"type:text" json:"hex_data,omitempty"`
	BytesCount int    `gorm:"default:0" json:"bytes_count"`

	// 配置报文
	SSID string `gorm:"type:varchar(100);index" json:"ssid,omitempty"`

	ErrorMsg  string `gorm:"type:text" json:"error_msg,omitempty"`
	SessionID string `gorm:"type:varchar(100);index" json:"session_id,omitempty"`
	Timestamp int64  `gorm:"index" json:"timestamp"` // Unix时间戳（毫秒）
}

// TableName 指定表名
func (SerialLog) TableName() string {
	return "serial_logs"
}

// BeforeCreate 创建前的钩子
func (s *SerialLog) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Timestamp == 0 {
		s.Timestamp = s.CreatedAt.UnixMilli()
	}
	if s.Level == "" {
		s.Level = SerialLogLevelInfo
	}
	return nil
}

// SerialLogQuery 查询参数
type SerialLogQuery struct {
	Port      string         `form:"port" json:"port,omitempty"`
	Direction string         `form:"direction" json:"direction,omitempty"`
	Level     SerialLogLevel `form:"level" json:"level,omitempty"`
	SSID      string         `form:"ssid" json:"ssid,omitempty"`
	SessionID string         `form:"session_id" json:"session_id,omitempty"`
	StartTime *time.Time     `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00" json:"start_time,omitempty"`
	EndTime   *time.Time     `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00" json:"end_time,omitempty"`
	HasError  *bool          `form:"has_error" json:"has_error,omitempty"`
	Limit     int            `form:"limit" json:"limit,omitempty"`
	Offset    int            `form:"offset" json:"offset,omitempty"`
	OrderBy   string         `form:"order_by" json:"order_by,omitempty"`
}

// SerialLogStats 统计信息
type SerialLogStats struct {
	TotalCount   int64 `json:"total_count"`
	TotalSend    int64 `json:"total_send"`
	TotalReceive int64 `json:"total_receive"`
	TotalOpen    int64 `json:"total_open"`
	TotalClose   int64 `json:"total_close"`
	TotalErrors  int64 `json:"total_errors"`
	BytesSent    int64 `json:"bytes_sent"`
	BytesRecv    int64 `json:"bytes_received"`
}
