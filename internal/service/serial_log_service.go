package service

import (
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/serialcfg/internal/hardware"
	"github.com/wfunc/serialcfg/internal/logger"
	"github.com/wfunc/serialcfg/internal/models"
	"github.com/wfunc/serialcfg/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	serialLogBatchSize     = 100
	serialLogQueueSize     = 1000
	defaultSerialLogFlush  = 5 * time.Second
	defaultSerialLogLatest = 50
)

// SerialLogService 串口日志服务，流量事件经缓冲批量写入数据库
type SerialLogService struct {
	repo      *repository.SerialLogRepository
	logger    *zap.Logger
	buffer    []*models.SerialLog
	bufferCh  chan *models.SerialLog
	flushCh   chan chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	sessionID string
	interval  time.Duration
}

// NewSerialLogService 创建串口日志服务，interval 为批量写入周期
func NewSerialLogService(db *gorm.DB, interval time.Duration) *SerialLogService {
	if interval <= 0 {
		interval = defaultSerialLogFlush
	}
	s := &SerialLogService{
		repo:      repository.NewSerialLogRepository(db),
		logger:    logger.GetModuleLogger("database"),
		buffer:    make([]*models.SerialLog, 0, serialLogBatchSize),
		bufferCh:  make(chan *models.SerialLog, serialLogQueueSize),
		flushCh:   make(chan chan struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sessionID: uuid.New().String(),
		interval:  interval,
	}

	go s.backgroundWriter()

	return s
}

// SessionID 本次运行的会话ID
func (s *SerialLogService) SessionID() string {
	return s.sessionID
}

// backgroundWriter 后台写入协程
func (s *SerialLogService) backgroundWriter() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			if len(s.buffer) >= serialLogBatchSize {
				s.flushBuffer()
			}

		case <-ticker.C:
			s.flushBuffer()

		case ack := <-s.flushCh:
			s.drain()
			s.flushBuffer()
			close(ack)

		case <-s.stopCh:
			// 退出前写入剩余的日志
			s.drain()
			s.flushBuffer()
			return
		}
	}
}

// drain 取出队列中已有的日志
func (s *SerialLogService) drain() {
	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
		default:
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *SerialLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(s.buffer); err != nil {
		s.logger.Error("批量写入串口日志失败", zap.Error(err), zap.Int("count", len(s.buffer)))
	} else {
		s.logger.Debug("批量写入串口日志成功", zap.Int("count", len(s.buffer)))
	}

	s.buffer = make([]*models.SerialLog, 0, serialLogBatchSize)
}

// Flush 立即写入已记录的日志
func (s *SerialLogService) Flush() {
	ack := make(chan struct{})
	select {
	case s.flushCh <- ack:
		<-ack
	case <-s.doneCh:
	}
}

// RecordTraffic 记录一次串口流量，可直接作为 hardware.TrafficHook 使用
func (s *SerialLogService) RecordTraffic(t hardware.Traffic) {
	at := t.Time
	if at.IsZero() {
		at = time.Now()
	}

	log := &models.SerialLog{
		Port:       t.Port.ID,
		PortName:   t.Port.Name,
		Direction:  string(t.Direction),
		Level:      models.SerialLogLevelInfo,
		RawData:    string(t.Data),
		BytesCount: t.Bytes,
		SSID:       t.SSID,
		SessionID:  s.sessionID,
		CreatedAt:  at,
		Timestamp:  at.UnixMilli(),
	}
	if len(t.Data) > 0 {
		log.HexData = hex.EncodeToString(t.Data)
	}
	if t.Err != nil {
		log.Level = models.SerialLogLevelError
		log.ErrorMsg = t.Err.Error()
	}

	select {
	case s.bufferCh <- log:
	default:
		s.logger.Warn("串口日志缓冲区满，丢弃日志",
			zap.String("port", log.Port),
			zap.String("direction", log.Direction))
	}
}

// Query 查询日志
func (s *SerialLogService) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *SerialLogService) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *SerialLogService) GetLatestLogs(limit int, port string) ([]*models.SerialLog, error) {
	if limit <= 0 {
		limit = defaultSerialLogLatest
	}
	return s.repo.GetLatest(limit, port)
}

// GetSessionLogs 获取本次运行的日志
func (s *SerialLogService) GetSessionLogs() ([]*models.SerialLog, error) {
	return s.repo.GetBySessionID(s.sessionID)
}

// GetErrorLogs 获取错误日志
func (s *SerialLogService) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	return s.repo.GetErrorLogs(limit)
}

// CleanupOldLogs 清理旧日志
func (s *SerialLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(retentionDays)
}

// ExportLogs 导出日志为JSON格式
func (s *SerialLogService) ExportLogs(query *models.SerialLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// Close 写入剩余日志并停止后台协程
func (s *SerialLogService) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
