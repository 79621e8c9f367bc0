package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidConfig)
	suite.NotNil(err)
	suite.Equal(ErrInvalidConfig, err.Code)
	suite.Equal("无效的配置消息", err.Message)
	suite.Empty(err.Details)

	err = New(ErrSerialPortOpen, "/dev/ttyUSB0", "permission denied")
	suite.Equal("/dev/ttyUSB0; permission denied", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrSerialPortWrite, "short write %d/%d", 3, 16)
	suite.Equal(ErrSerialPortWrite, err.Code)
	suite.Equal("short write 3/16", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("device busy")
	wrappedErr := Wrap(originalErr, ErrSerialPortOpen)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialPortOpen, wrappedErr.Code)
	suite.Equal("device busy", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError，保留原始错误码
	appErr := New(ErrNotConnected, "no port")
	wrappedAppErr := Wrap(appErr, ErrSerialPortWrite, "send config")
	suite.Equal(ErrNotConnected, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "send config")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("timeout")
	wrappedErr := Wrapf(originalErr, ErrSerialTimeout, "写入 %s 超时", "COM3")
	suite.Equal(ErrSerialTimeout, wrappedErr.Code)
	suite.Equal("写入 COM3 超时", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断（包括fmt.Errorf包装后的错误链）
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrNotConnected)
	suite.True(Is(err, ErrNotConnected))
	suite.False(Is(err, ErrInvalidConfig))
	suite.False(Is(nil, ErrNotConnected))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	chained := fmt.Errorf("scan: %w", New(ErrPortEnumeration))
	suite.True(Is(chained, ErrPortEnumeration))
}

func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrDeviceBusy, GetCode(New(ErrDeviceBusy)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{
		Code:    ErrNotConnected,
		Message: "串口未连接",
	}
	suite.Equal("[3004] 串口未连接", err.Error())

	err.Details = "send config"
	suite.Equal("[3004] 串口未连接: send config", err.Error())
}

func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrUnknown)
	suite.Equal(originalErr, wrappedErr.Unwrap())
	suite.True(errors.Is(wrappedErr, originalErr))

	suite.Nil(New(ErrUnknown).Unwrap())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	err := New(ErrDatabaseQuery)
	cause := errors.New("SQL语法错误")
	err.WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("SQL语法错误", err.Details)

	err2 := New(ErrDatabaseQuery, "查询失败")
	err2.WithCause(cause)
	suite.Equal("查询失败", err2.Details) // 保留原有Details
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidConfig, 400},
		{ErrInvalidParam, 400},
		{ErrNotFound, 404},
		{ErrNotConnected, 409},
		{ErrDeviceBusy, 409},
		{ErrSerialPortOpen, 503},
		{ErrPortEnumeration, 503},
		{ErrSerialPortWrite, 502},
		{ErrSerialTimeout, 504},
		{ErrDatabaseQuery, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrSerialTimeout, ErrSerialPortOpen, ErrDeviceBusy, ErrDatabaseConnect} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrInvalidConfig, ErrNotConnected, ErrSerialPortWrite} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

func (suite *ErrorsTestSuite) TestIsCritical() {
	for _, code := range []ErrorCode{ErrDatabaseConnect, ErrConfigLoad, ErrConfigMissing} {
		suite.True(IsCritical(New(code)))
	}
	for _, code := range []ErrorCode{ErrInvalidConfig, ErrSerialPortOpen, ErrTimeout} {
		suite.False(IsCritical(New(code)))
	}
	suite.False(IsCritical(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotConnected)
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试串口相关错误
func (suite *ErrorsTestSuite) TestSerialErrors() {
	serialErrors := map[ErrorCode]string{
		ErrSerialPortOpen:  "串口打开失败",
		ErrSerialPortWrite: "串口写入失败",
		ErrSerialPortRead:  "串口读取失败",
		ErrSerialTimeout:   "串口通信超时",
		ErrNotConnected:    "串口未连接",
		ErrDeviceBusy:      "串口已被占用",
		ErrPortEnumeration: "串口枚举失败",
		ErrSerialPortClose: "串口关闭失败",
	}

	for code, expectedMsg := range serialErrors {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
