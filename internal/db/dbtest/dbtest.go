// Package dbtest 为依赖存储的测试提供临时 SQLite 数据库。
package dbtest

import (
	"testing"

	"skillconnect/internal/db"

	"gorm.io/gorm"
)

// Open 返回已迁移的内存库，测试结束时关闭。
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.Connect("sqlite", "file::memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
