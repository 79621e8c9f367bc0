package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/wfunc/serialcfg/internal/hardware"
	"github.com/wfunc/serialcfg/internal/service"
)

const consoleHelp = `命令:
  scan                     重新扫描并连接第一个可用串口
  ports                    列出已发现的串口
  connect <port>           连接指定串口
  send <ssid> [password]   发送WiFi配置，含空格的值加引号，如 send "My Home" "pass word"
  stop                     断开当前串口
  show                     显示接收区
  clear                    清空接收区
  status                   显示连接状态
  help                     显示帮助
  quit                     退出`

const sendUsage = `用法: send <ssid> [password]，含空格的值请加引号，如 send "My Home" "pass word"`

// Console 交互命令行
type Console struct {
	svc *service.ConfigService
	in  io.Reader

	outMu sync.Mutex
	out   io.Writer
}

// NewConsole 创建交互命令行
func NewConsole(svc *service.ConfigService, in io.Reader, out io.Writer) *Console {
	return &Console{svc: svc, in: in, out: out}
}

// Run 读取并执行命令，输入结束、quit 或 ctx 取消时返回
func (c *Console) Run(ctx context.Context) {
	tailCtx, stopTail := context.WithCancel(ctx)
	tailDone := make(chan struct{})
	go func() {
		defer close(tailDone)
		c.tail(tailCtx)
	}()
	defer func() {
		stopTail()
		<-tailDone
	}()

	c.println(consoleHelp)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := c.Execute(ctx, scanner.Text()); quit {
			return
		}
	}
}

// Execute 执行一条命令，返回是否退出
func (c *Console) Execute(ctx context.Context, line string) bool {
	fields, err := splitArgs(line)
	if err != nil {
		c.printError(err)
		return false
	}
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "scan":
		ports, err := c.svc.Scan(ctx)
		if err != nil {
			c.printError(err)
		}
		if len(ports) > 0 {
			c.println("串口: " + service.PortNames(ports))
		}

	case "ports":
		c.println("串口: " + c.svc.PortNames())

	case "connect":
		if len(fields) < 2 {
			c.println("用法: connect <port>")
			return false
		}
		state, err := c.svc.Connect(ctx, fields[1])
		if err != nil {
			c.printError(err)
			return false
		}
		c.println(state.String())

	case "send":
		if len(fields) > 3 {
			c.println(sendUsage)
			return false
		}
		ssid, password := "", ""
		if len(fields) > 1 {
			ssid = fields[1]
		}
		if len(fields) > 2 {
			password = fields[2]
		}
		n, err := c.svc.Send(ctx, ssid, password)
		if err != nil {
			c.printError(err)
			return false
		}
		c.println(fmt.Sprintf("已发送 %d 字节", n))

	case "stop":
		if _, err := c.svc.Stop(ctx); err != nil {
			c.printError(err)
		}

	case "show":
		c.println(c.svc.Text())

	case "clear":
		c.svc.ClearOutput()

	case "status":
		c.println(c.svc.State().String())

	case "help", "?":
		c.println(consoleHelp)

	case "quit", "exit":
		return true

	default:
		c.println("未知命令: " + fields[0] + "，输入 help 查看帮助")
	}
	return false
}

// tail 实时输出接收区追加的文本
func (c *Console) tail(ctx context.Context) {
	id, events := c.svc.Buffer().Subscribe()
	defer c.svc.Buffer().Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == hardware.BufferEventAppend {
				c.print(ev.Text)
			}
		}
	}
}

// splitArgs 按shell规则拆分命令行，支持引号与转义
//
// shlex 将词首的 # 视为注释，被注释吞掉的输入按错误处理。
func splitArgs(line string) ([]string, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("无法解析命令: %w", err)
	}
	kept := 0
	for _, f := range fields {
		kept += strings.Count(f, "#")
	}
	if kept < strings.Count(line, "#") {
		return nil, errors.New("以 # 开头的参数需要加引号")
	}
	return fields, nil
}

func (c *Console) printError(err error) {
	c.println("错误: " + err.Error())
}

func (c *Console) println(s string) {
	c.print(s + "\n")
}

func (c *Console) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	io.WriteString(c.out, s)
}
