// Package storage 页面缓存和实体的持久化
package storage

import (
	"context"
	"path/filepath"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

// Config 存储配置
type Config struct {
	// Backend file(默认) 或 sqlite
	Backend string `mapstructure:"backend"`

	// Dir 文件存储的输出目录
	Dir string `mapstructure:"dir"`

	// DSN SQLite数据源,为空时使用 {Dir}/compcrawl.db
	DSN string `mapstructure:"dsn"`
}

// Open 按配置打开存储
func Open(ctx context.Context, cfg Config) (models.Storage, error) {
	switch cfg.Backend {
	case "", "file":
		fs, err := NewFileStorage(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			if _, err := NewFileStorage(cfg.Dir); err != nil {
				return nil, err
			}
			dsn = filepath.Join(cfg.Dir, "compcrawl.db")
		}
		db, err := NewSQLiteStorage(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, &models.ConfigError{Scope: "storage.backend", Reason: "未知的存储后端 " + cfg.Backend}
	}
}
