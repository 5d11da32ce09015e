package db

import (
	"fmt"
	"time"

	"skillconnect/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// poolFor 返回驱动对应的连接池参数。
// sqlite 内存库随唯一连接关闭而丢失，因此只保留一个永不回收的连接。
func poolFor(driver string) pool {
	if driver == "sqlite" {
		return pool{maxOpen: 1}
	}
	return pool{maxOpen: 20, maxIdle: 5, maxLifetime: time.Hour}
}

// Connect 按驱动名建立数据库连接，并带有简单的重试来等待容器就绪。
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				p := poolFor(driver)
				sqlDB.SetMaxOpenConns(p.maxOpen)
				if p.maxIdle > 0 {
					sqlDB.SetMaxIdleConns(p.maxIdle)
				}
				sqlDB.SetConnMaxLifetime(p.maxLifetime)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// Migrate 自动迁移全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.UserSkill{},
		&models.SkillProfile{},
		&models.Application{},
		&models.Message{},
		&models.RefreshToken{},
	)
}
