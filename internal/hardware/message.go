package hardware

import (
	"strings"

	apperrors "github.com/wfunc/serialcfg/internal/errors"
)

// 报文字段前缀与结束符
const (
	ssidPrefix     = "S:"
	passwordPrefix = "P:"
	fieldEnd       = ";"
)

// ConfigMessage 设备配置消息 (SSID, 可选密码)
type ConfigMessage struct {
	SSID     string `json:"ssid"`
	Password string `json:"password,omitempty"`
}

// Validate 校验SSID非空
func (m ConfigMessage) Validate() error {
	if m.SSID == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, "ssid is empty")
	}
	return nil
}

// Encode 编码为线上格式 "S:<ssid>;" ["P:<password>;"]
func (m ConfigMessage) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return []byte(m.String()), nil
}

// String 报文文本，不做校验
func (m ConfigMessage) String() string {
	var b strings.Builder
	b.Grow(len(ssidPrefix) + len(m.SSID) + len(passwordPrefix) + len(m.Password) + 2)
	b.WriteString(ssidPrefix)
	b.WriteString(m.SSID)
	b.WriteString(fieldEnd)
	if m.Password != "" {
		b.WriteString(passwordPrefix)
		b.WriteString(m.Password)
		b.WriteString(fieldEnd)
	}
	return b.String()
}

// Redacted 返回密码脱敏后的消息（用于日志与持久化）
func (m ConfigMessage) Redacted() ConfigMessage {
	if m.Password == "" {
		return m
	}
	return ConfigMessage{SSID: m.SSID, Password: strings.Repeat("*", 6)}
}
