package repository

import (
	"fmt"
	"time"

	"github.com/wfunc/serialcfg/internal/models"
	"gorm.io/gorm"
)

// 允许的排序字段
var serialLogOrders = map[string]bool{
	"created_at DESC": true,
	"created_at ASC":  true,
	"id DESC":         true,
	"id ASC":          true,
}

// SerialLogRepository 串口日志仓库
type SerialLogRepository struct {
	db *gorm.DB
}

// NewSerialLogRepository 创建串口日志仓库
func NewSerialLogRepository(db *gorm.DB) *SerialLogRepository {
	return &SerialLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *SerialLogRepository) Create(log *models.SerialLog) error {
	return r.db.Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *SerialLogRepository) CreateBatch(logs []*models.SerialLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.CreateInBatches(logs, 100).Error
}

// GetByID 根据ID获取日志
func (r *SerialLogRepository) GetByID(id uint) (*models.SerialLog, error) {
	var log models.SerialLog
	if err := r.db.First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// GetBySessionID 根据会话ID获取日志
func (r *SerialLogRepository) GetBySessionID(sessionID string) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// Query 查询日志
func (r *SerialLogRepository) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	db := r.db.Model(&models.SerialLog{})

	if query.Port != "" {
		db = db.Where("port = ? OR port_name = ?", query.Port, query.Port)
	}
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}
	if query.SSID != "" {
		db = db.Where("ssid = ?", query.SSID)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil {
		if *query.HasError {
			db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
		} else {
			db = db.Where("error_msg IS NULL OR error_msg = ''")
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := query.OrderBy
	if !serialLogOrders[orderBy] {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy).Order("id DESC")

	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.SerialLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// GetStats 获取统计信息
func (r *SerialLogRepository) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	scope := func() *gorm.DB {
		db := r.db.Model(&models.SerialLog{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	stats := &models.SerialLogStats{}
	if err := scope().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 按方向统计
	type directionRow struct {
		Direction string
		Count     int64
		Bytes     int64
	}
	var rows []directionRow
	if err := scope().
		Select("direction, COUNT(*) as count, COALESCE(SUM(bytes_count), 0) as bytes").
		Group("direction").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		switch row.Direction {
		case models.DirectionSend:
			stats.TotalSend = row.Count
			stats.BytesSent = row.Bytes
		case models.DirectionReceive:
			stats.TotalReceive = row.Count
			stats.BytesRecv = row.Bytes
		case models.DirectionOpen:
			stats.TotalOpen = row.Count
		case models.DirectionClose:
			stats.TotalClose = row.Count
		}
	}

	if err := scope().
		Where("error_msg IS NOT NULL AND error_msg != ''").
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// GetLatest 获取最新的日志记录，port 为空时不过滤
func (r *SerialLogRepository) GetLatest(limit int, port string) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	db := r.db.Order("created_at DESC").Order("id DESC").Limit(limit)
	if port != "" {
		db = db.Where("port = ? OR port_name = ?", port, port)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetErrorLogs 获取错误日志
func (r *SerialLogRepository) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("error_msg IS NOT NULL AND error_msg != ''").
		Or("level = ?", models.SerialLogLevelError).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// DeleteOldLogs 删除旧日志
func (r *SerialLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Unscoped().Where("created_at < ?", beforeTime).Delete(&models.SerialLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *SerialLogRepository) CleanupLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldLogs(beforeTime)
}
