package hardware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/serialcfg/internal/errors"
)

// ClientTestSuite 串口配置客户端测试套件
type ClientTestSuite struct {
	suite.Suite
	provider *MockProvider
	client   *SerialConfigClient
	ctx      context.Context

	trafficMu sync.Mutex
	traffic   []Traffic
}

var (
	portA = PortDescriptor{ID: "/dev/ttyUSB0", Name: "ttyUSB0"}
	portB = PortDescriptor{ID: "/dev/ttyUSB1", Name: "ttyUSB1"}
)

func (suite *ClientTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.traffic = nil
	suite.provider = NewMockProvider(portA, portB)
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		return NewMockPort(5 * time.Millisecond)
	}
	suite.client = suite.newClient()
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.client.Disconnect(suite.ctx)
}

func (suite *ClientTestSuite) newClient(opts ...Option) *SerialConfigClient {
	base := []Option{
		WithLogger(zap.NewNop()),
		WithTrafficHook(suite.record),
		WithTimeouts(time.Second, time.Second, time.Second),
	}
	return NewSerialConfigClient(suite.provider, append(base, opts...)...)
}

func (suite *ClientTestSuite) record(t Traffic) {
	suite.trafficMu.Lock()
	defer suite.trafficMu.Unlock()
	suite.traffic = append(suite.traffic, t)
}

func (suite *ClientTestSuite) recorded(dir Direction) []Traffic {
	suite.trafficMu.Lock()
	defer suite.trafficMu.Unlock()
	var out []Traffic
	for _, t := range suite.traffic {
		if t.Direction == dir {
			out = append(out, t)
		}
	}
	return out
}

func (suite *ClientTestSuite) lastPort() *MockPort {
	opened := suite.provider.Opened()
	suite.Require().NotEmpty(opened)
	return opened[len(opened)-1]
}

// 扫描到串口后自动连接第一个
func (suite *ClientTestSuite) TestScanConnectsFirstPort() {
	ports, err := suite.client.ScanPorts(suite.ctx)
	suite.NoError(err)
	suite.Equal([]PortDescriptor{portA, portB}, ports)

	state := suite.client.State()
	suite.True(state.Connected)
	suite.Equal(portA, *state.Port)
	suite.Equal("Connected(ttyUSB0)", state.String())
	suite.Len(suite.recorded(DirectionOpen), 1)
}

func (suite *ClientTestSuite) TestScanNoPorts() {
	suite.provider.Ports = nil

	ports, err := suite.client.ScanPorts(suite.ctx)
	suite.NoError(err)
	suite.Empty(ports)
	suite.Equal(Disconnected(), suite.client.State())
	suite.Empty(suite.provider.Opened())
}

func (suite *ClientTestSuite) TestScanEnumerationError() {
	suite.provider.ListErr = errors.New("udev unavailable")

	ports, err := suite.client.ScanPorts(suite.ctx)
	suite.Nil(ports)
	suite.True(apperrors.Is(err, apperrors.ErrPortEnumeration))
	suite.False(suite.client.State().Connected)
}

func (suite *ClientTestSuite) TestScanOpenErrorReturnsPorts() {
	suite.provider.OpenErr = errors.New("permission denied")

	ports, err := suite.client.ScanPorts(suite.ctx)
	suite.Len(ports, 2)
	suite.True(apperrors.Is(err, apperrors.ErrSerialPortOpen))
	suite.Equal(Disconnected(), suite.client.State())

	opens := suite.recorded(DirectionOpen)
	suite.Require().Len(opens, 1)
	suite.Error(opens[0].Err)
}

// 重新扫描先关闭已打开的串口
func (suite *ClientTestSuite) TestRescanClosesPreviousPort() {
	_, err := suite.client.ScanPorts(suite.ctx)
	suite.Require().NoError(err)
	first := suite.lastPort()

	_, err = suite.client.ScanPorts(suite.ctx)
	suite.Require().NoError(err)

	suite.Equal(1, first.CloseCount())
	suite.Len(suite.provider.Opened(), 2)
	suite.True(suite.client.State().Connected)
	suite.Contains(suite.client.Sink().Text(), "Port ttyUSB0 is now closed")
}

func (suite *ClientTestSuite) TestConnectWhileConnectedIsBusy() {
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	state, err := suite.client.Connect(suite.ctx, portB)
	suite.True(apperrors.Is(err, apperrors.ErrDeviceBusy))
	suite.Equal(portA, *state.Port)
	suite.Len(suite.provider.Opened(), 1)
	suite.Zero(suite.lastPort().CloseCount())
}

func (suite *ClientTestSuite) TestConnectOpenTimeout() {
	block := make(chan struct{})
	defer close(block)
	slow := &slowProvider{MockProvider: suite.provider, block: block}
	client := NewSerialConfigClient(slow,
		WithLogger(zap.NewNop()),
		WithTimeouts(30*time.Millisecond, 0, 0))

	state, err := client.Connect(suite.ctx, portA)
	suite.True(apperrors.Is(err, apperrors.ErrSerialTimeout))
	suite.False(state.Connected)
}

// 断开两次只关闭一次，只输出一行状态
func (suite *ClientTestSuite) TestDisconnectIsIdempotent() {
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)
	port := suite.lastPort()

	state, err := suite.client.Disconnect(suite.ctx)
	suite.NoError(err)
	suite.Equal(Disconnected(), state)

	state, err = suite.client.Disconnect(suite.ctx)
	suite.NoError(err)
	suite.Equal(Disconnected(), state)

	suite.Equal(1, port.CloseCount())
	suite.Equal("\nPort ttyUSB0 is now closed", suite.client.Sink().Text())
	suite.Len(suite.recorded(DirectionClose), 1)
}

func (suite *ClientTestSuite) TestDisconnectCloseError() {
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		p := NewMockPort(5 * time.Millisecond)
		p.CloseErr = errors.New("io error")
		return p
	}
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	state, err := suite.client.Disconnect(suite.ctx)
	suite.True(apperrors.Is(err, apperrors.ErrSerialPortClose))
	suite.Equal(Disconnected(), state)
	suite.Equal(Disconnected(), suite.client.State())
}

func (suite *ClientTestSuite) TestSendConfig() {
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	n, err := suite.client.SendConfig(suite.ctx, ConfigMessage{SSID: "home", Password: "secret"})
	suite.NoError(err)
	suite.Equal(len("S:home;P:secret;"), n)
	suite.Equal([]byte("S:home;P:secret;"), suite.lastPort().Written())

	sends := suite.recorded(DirectionSend)
	suite.Require().Len(sends, 1)
	suite.Equal("S:home;P:******;", string(sends[0].Data))
	suite.Equal(n, sends[0].Bytes)
}

func (suite *ClientTestSuite) TestSendConfigEmptySSID() {
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	n, err := suite.client.SendConfig(suite.ctx, ConfigMessage{Password: "secret"})
	suite.Zero(n)
	suite.True(apperrors.Is(err, apperrors.ErrInvalidConfig))
	suite.Empty(suite.lastPort().Written())
	suite.Empty(suite.recorded(DirectionSend))
}

func (suite *ClientTestSuite) TestSendConfigNotConnected() {
	n, err := suite.client.SendConfig(suite.ctx, ConfigMessage{SSID: "home"})
	suite.Zero(n)
	suite.True(apperrors.Is(err, apperrors.ErrNotConnected))
}

func (suite *ClientTestSuite) TestSendConfigShortWrite() {
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		p := NewMockPort(5 * time.Millisecond)
		p.ShortWrite = 4
		return p
	}
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	n, err := suite.client.SendConfig(suite.ctx, ConfigMessage{SSID: "home"})
	suite.Equal(4, n)
	suite.True(apperrors.Is(err, apperrors.ErrSerialPortWrite))
}

func (suite *ClientTestSuite) TestSendConfigWriteError() {
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		p := NewMockPort(5 * time.Millisecond)
		p.WriteErr = errors.New("device unplugged")
		return p
	}
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	_, err = suite.client.SendConfig(suite.ctx, ConfigMessage{SSID: "home"})
	suite.True(apperrors.Is(err, apperrors.ErrSerialPortWrite))
	suite.True(suite.client.State().Connected)
}

func (suite *ClientTestSuite) TestSendConfigWriteTimeout() {
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		p := NewMockPort(5 * time.Millisecond)
		p.WriteDelay = 200 * time.Millisecond
		return p
	}
	client := suite.newClient(WithTimeouts(0, 30*time.Millisecond, 0))
	defer client.Disconnect(suite.ctx)

	_, err := client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	_, err = client.SendConfig(suite.ctx, ConfigMessage{SSID: "home"})
	suite.True(apperrors.Is(err, apperrors.ErrSerialTimeout))
}

// 设备应答经读协程追加到输出端
func (suite *ClientTestSuite) TestIncomingDataReachesSink() {
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		p := NewMockPort(5 * time.Millisecond)
		p.Responder = EchoResponder
		return p
	}
	_, err := suite.client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	_, err = suite.client.SendConfig(suite.ctx, ConfigMessage{SSID: "home", Password: "secret"})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		return suite.client.Sink().Text() == "OK S:home;P:******;\n"
	}, time.Second, 5*time.Millisecond)

	suite.Eventually(func() bool {
		return len(suite.recorded(DirectionReceive)) > 0
	}, time.Second, 5*time.Millisecond)
}

// 换行数达到上限时先清空再追加
func (suite *ClientTestSuite) TestAppendOutputOverflow() {
	client := suite.newClient(WithMaxLines(2))

	client.AppendOutput("a\n")
	client.AppendOutput("b")
	suite.Equal("a\nb", client.Sink().Text())

	client.AppendOutput("\n")
	suite.Equal("a\nb\n", client.Sink().Text())

	client.AppendOutput("c\n")
	suite.Equal("c\n", client.Sink().Text())

	client.SetMaxLines(1)
	client.AppendOutput("d")
	suite.Equal("d", client.Sink().Text())
}

func (suite *ClientTestSuite) TestOnDataAvailableAppliesOverflow() {
	client := suite.newClient(WithMaxLines(1))
	conn := newConnection(portA, NewMockPort(0))
	dec := &utf8Decoder{}

	client.onDataAvailable(conn, []byte("line1\n"), dec)
	client.onDataAvailable(conn, []byte("line2\n"), dec)
	suite.Equal("line2\n", client.Sink().Text())
}

func (suite *ClientTestSuite) TestReadErrorStopsListener() {
	suite.provider.NewPort = func(PortDescriptor) *MockPort {
		return NewMockPort(5 * time.Millisecond)
	}
	client := suite.newClient()
	_, err := client.Connect(suite.ctx, portA)
	suite.Require().NoError(err)

	// 设备侧关闭句柄，读循环收到错误后退出
	port := suite.lastPort()
	port.Close()

	suite.Eventually(func() bool {
		for _, t := range suite.recorded(DirectionReceive) {
			if t.Err != nil {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	_, err = client.Disconnect(suite.ctx)
	suite.NoError(err)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

type slowProvider struct {
	*MockProvider
	block chan struct{}
}

func (p *slowProvider) Open(desc PortDescriptor, opts PortOptions) (Port, error) {
	<-p.block
	return p.MockProvider.Open(desc, opts)
}
