package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/serialcfg/internal/models"
	"gorm.io/gorm"
)

// SerialLogRepositoryTestSuite 串口日志仓储测试套件
type SerialLogRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo *SerialLogRepository
}

func (suite *SerialLogRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB(suite.T())
	suite.repo = NewSerialLogRepository(suite.db)
}

func (suite *SerialLogRepositoryTestSuite) seed() {
	now := time.Now()
	logs := []*models.SerialLog{
		{Port: "/dev/ttyUSB0", PortName: "ttyUSB0", Direction: models.DirectionOpen, SessionID: "s1", CreatedAt: now.Add(-4 * time.Minute)},
		{Port: "/dev/ttyUSB0", PortName: "ttyUSB0", Direction: models.DirectionSend, RawData: "S:home;P:******;", SSID: "home", BytesCount: 16, SessionID: "s1", CreatedAt: now.Add(-3 * time.Minute)},
		{Port: "/dev/ttyUSB0", PortName: "ttyUSB0", Direction: models.DirectionReceive, RawData: "OK\n", BytesCount: 3, SessionID: "s1", CreatedAt: now.Add(-2 * time.Minute)},
		{Port: "/dev/ttyUSB1", PortName: "ttyUSB1", Direction: models.DirectionOpen, Level: models.SerialLogLevelError, ErrorMsg: "permission denied", SessionID: "s2", CreatedAt: now.Add(-time.Minute)},
		{Port: "/dev/ttyUSB0", PortName: "ttyUSB0", Direction: models.DirectionClose, SessionID: "s1", CreatedAt: now},
	}
	suite.Require().NoError(suite.repo.CreateBatch(logs))
}

// TestCreate 测试创建日志
func (suite *SerialLogRepositoryTestSuite) TestCreate() {
	log := &models.SerialLog{Port: "COM3", PortName: "COM3", Direction: models.DirectionSend, RawData: "S:x;"}
	suite.NoError(suite.repo.Create(log))
	suite.NotZero(log.ID)
	suite.NotZero(log.Timestamp)
	suite.Equal(models.SerialLogLevelInfo, log.Level)

	got, err := suite.repo.GetByID(log.ID)
	suite.NoError(err)
	suite.Equal("S:x;", got.RawData)
}

func (suite *SerialLogRepositoryTestSuite) TestCreateBatchEmpty() {
	suite.NoError(suite.repo.CreateBatch(nil))
}

func (suite *SerialLogRepositoryTestSuite) TestQuery() {
	suite.seed()

	logs, total, err := suite.repo.Query(&models.SerialLogQuery{Port: "ttyUSB0"})
	suite.NoError(err)
	suite.Equal(int64(4), total)
	suite.Len(logs, 4)
	suite.Equal(models.DirectionClose, logs[0].Direction)

	logs, total, err = suite.repo.Query(&models.SerialLogQuery{Direction: models.DirectionSend})
	suite.NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal("home", logs[0].SSID)

	hasError := true
	logs, total, err = suite.repo.Query(&models.SerialLogQuery{HasError: &hasError})
	suite.NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal("permission denied", logs[0].ErrorMsg)

	logs, total, err = suite.repo.Query(&models.SerialLogQuery{Limit: 2, Offset: 1, OrderBy: "created_at ASC"})
	suite.NoError(err)
	suite.Equal(int64(5), total)
	suite.Len(logs, 2)
	suite.Equal(models.DirectionSend, logs[0].Direction)

	// 非法排序字段回退到默认排序
	logs, _, err = suite.repo.Query(&models.SerialLogQuery{OrderBy: "1; DROP TABLE serial_logs"})
	suite.NoError(err)
	suite.Len(logs, 5)
}

func (suite *SerialLogRepositoryTestSuite) TestGetLatest() {
	suite.seed()

	logs, err := suite.repo.GetLatest(2, "")
	suite.NoError(err)
	suite.Len(logs, 2)
	suite.Equal(models.DirectionClose, logs[0].Direction)

	logs, err = suite.repo.GetLatest(10, "/dev/ttyUSB1")
	suite.NoError(err)
	suite.Len(logs, 1)
}

func (suite *SerialLogRepositoryTestSuite) TestGetBySessionID() {
	suite.seed()

	logs, err := suite.repo.GetBySessionID("s1")
	suite.NoError(err)
	suite.Len(logs, 4)
	suite.Equal(models.DirectionOpen, logs[0].Direction)
}

func (suite *SerialLogRepositoryTestSuite) TestGetStats() {
	suite.seed()

	stats, err := suite.repo.GetStats(nil, nil)
	suite.NoError(err)
	suite.Equal(int64(5), stats.TotalCount)
	suite.Equal(int64(1), stats.TotalSend)
	suite.Equal(int64(1), stats.TotalReceive)
	suite.Equal(int64(2), stats.TotalOpen)
	suite.Equal(int64(1), stats.TotalClose)
	suite.Equal(int64(1), stats.TotalErrors)
	suite.Equal(int64(16), stats.BytesSent)
	suite.Equal(int64(3), stats.BytesRecv)

	since := time.Now().Add(-90 * time.Second)
	stats, err = suite.repo.GetStats(&since, nil)
	suite.NoError(err)
	suite.Equal(int64(2), stats.TotalCount)
	suite.Zero(stats.TotalSend)
}

func (suite *SerialLogRepositoryTestSuite) TestGetErrorLogs() {
	suite.seed()

	logs, err := suite.repo.GetErrorLogs(10)
	suite.NoError(err)
	suite.Len(logs, 1)
}

func (suite *SerialLogRepositoryTestSuite) TestCleanupLogs() {
	suite.seed()
	old := &models.SerialLog{Port: "COM1", Direction: models.DirectionSend, CreatedAt: time.Now().AddDate(0, 0, -40)}
	suite.Require().NoError(suite.repo.Create(old))

	deleted, err := suite.repo.CleanupLogs(30)
	suite.NoError(err)
	suite.Equal(int64(1), deleted)

	_, err = suite.repo.CleanupLogs(0)
	suite.Error(err)
}

func TestSerialLogRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(SerialLogRepositoryTestSuite))
}

func TestSerialLogQueryDefaults(t *testing.T) {
	assert.True(t, serialLogOrders["created_at DESC"])
	assert.False(t, serialLogOrders["port"])
}
