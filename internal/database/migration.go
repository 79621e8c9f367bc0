package database

import (
	"fmt"

	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/logger"
	"github.com/wfunc/serialcfg/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 数据量超过该值的日志表跳过 AutoMigrate，只补索引
const largeTableThreshold = 10000

// serialLogIndexes 串口日志表索引
var serialLogIndexes = map[string]string{
	"idx_serial_logs_port_direction": "CREATE INDEX IF NOT EXISTS idx_serial_logs_port_direction ON serial_logs(port, direction)",
	"idx_serial_logs_session_time":   "CREATE INDEX IF NOT EXISTS idx_serial_logs_session_time ON serial_logs(session_id, created_at)",
}

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 迁移表结构
func Migrate(db *gorm.DB) error {
	CleanupStaleLocks()

	// SQLite 文件库加迁移锁，避免多个进程同时迁移
	if dbPath := sqliteFile(db); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "获取迁移锁失败")
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")

	model := &models.SerialLog{}
	if shouldSkipMigration(db, model.TableName()) {
		logger.Info("跳过大型表的迁移", zap.String("table", model.TableName()))
	} else if err := db.AutoMigrate(model); err != nil {
		logger.Error("迁移失败",
			zap.String("model", fmt.Sprintf("%T", model)),
			zap.Error(err),
		)
		return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "迁移失败")
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建组合索引
func createIndexes(db *gorm.DB) {
	for name, stmt := range serialLogIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}

// shouldSkipMigration 表已存在且数据量较大时跳过
func shouldSkipMigration(db *gorm.DB, tableName string) bool {
	if !db.Migrator().HasTable(tableName) {
		return false
	}

	var count int64
	if err := db.Table(tableName).Count(&count).Error; err != nil {
		return false
	}

	if count > largeTableThreshold {
		logger.Info("表中数据量较大，跳过AutoMigrate",
			zap.String("table", tableName),
			zap.Int64("count", count))
		return true
	}
	return false
}
