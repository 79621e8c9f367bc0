package hardware

import (
	"fmt"
	"strings"
	"time"

	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// PortOptions 串口参数
type PortOptions struct {
	BaudRate    int           `json:"baud_rate"`
	DataBits    int           `json:"data_bits"`
	StopBits    int           `json:"stop_bits"`
	Parity      string        `json:"parity"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// DefaultPortOptions 默认 9600 8N1
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Normalize 校验串口参数并补齐默认值
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 9600
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 100 * time.Millisecond
	}

	return opts, nil
}

// BugstMode 转换为 go.bug.st/serial 的串口模式
func (o PortOptions) BugstMode() (*bugst.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &bugst.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: bugst.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	default:
		mode.Parity = bugst.NoParity
	}

	return mode, nil
}

// TarmConfig 转换为指定设备路径的 tarm/serial 配置
func (o PortOptions) TarmConfig(name string) (*tarm.Config, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	cfg := &tarm.Config{
		Name:        name,
		Baud:        opts.BaudRate,
		Size:        byte(opts.DataBits),
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
		ReadTimeout: opts.ReadTimeout,
	}
	if opts.StopBits == 2 {
		cfg.StopBits = tarm.Stop2
	}
	switch opts.Parity {
	case "E":
		cfg.Parity = tarm.ParityEven
	case "O":
		cfg.Parity = tarm.ParityOdd
	}

	return cfg, nil
}
