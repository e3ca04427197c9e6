package storage

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mobilechat/internal/config"
	"mobilechat/internal/logging"
	"mobilechat/internal/models"
)

// InitDB initializes the database connection using the provided configuration.
func InitDB(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		var dsnParts []string
		dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
		dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
		dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
		dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
		if cfg.Password != "" {
			dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
		}
		dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
		dialector = postgres.Open(strings.Join(dsnParts, " "))
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.GormLogger(log, cfg.LogSQL),
		// 将唯一键冲突转换为 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connected", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return db, nil
}

// AutoMigrateTables runs GORM's auto-migration feature for all defined models.
func AutoMigrateTables(db *gorm.DB, log *zap.Logger) error {
	log.Info("migrating database schema")
	err := db.AutoMigrate(
		&models.User{},
		&models.EmailIndexEntry{},
		&models.NicknameIndexEntry{},
		&models.UserRelation{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.Credential{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// OpenStore returns the Store selected by cfg.Type. "memory" keeps all data
// in process; "postgres" connects and migrates. closeFn releases the pool.
func OpenStore(cfg config.DatabaseConfig, log *zap.Logger) (store Store, closeFn func() error, err error) {
	if cfg.Type == "memory" {
		log.Warn("使用内存存储，进程退出后数据将丢失")
		return NewMemoryStore(), func() error { return nil }, nil
	}
	db, err := InitDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := AutoMigrateTables(db, log); err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	return NewGormStore(db), sqlDB.Close, nil
}
