package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pages (
	url        TEXT PRIMARY KEY,
	html       TEXT,
	screenshot BLOB,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entities (
	entity_type TEXT NOT NULL,
	bundle      TEXT NOT NULL,
	url         TEXT NOT NULL,
	data        TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (entity_type, bundle, url)
);`

// SQLiteStorage 把页面缓存和实体写入单个SQLite文件
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage 打开数据库并建表
func NewSQLiteStorage(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite失败: %w", err)
	}
	// 单连接避免 database is locked
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接SQLite失败: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// PersistPageMarkup 实现 models.Storage
func (s *SQLiteStorage) PersistPageMarkup(ctx context.Context, pageURL, html string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (url, html, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET html = excluded.html, updated_at = excluded.updated_at`,
		pageURL, html, now())
	if err != nil {
		return fmt.Errorf("保存页面源码失败: %w", err)
	}
	return nil
}

// PersistScreenshot 实现 models.Storage
func (s *SQLiteStorage) PersistScreenshot(ctx context.Context, pageURL string, png []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (url, screenshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET screenshot = excluded.screenshot, updated_at = excluded.updated_at`,
		pageURL, png, now())
	if err != nil {
		return fmt.Errorf("保存截图失败: %w", err)
	}
	return nil
}

// PersistEntity 实现 models.Storage
func (s *SQLiteStorage) PersistEntity(ctx context.Context, entity models.Entity, entityType, bundle, pageURL string) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("序列化实体失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (entity_type, bundle, url, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(entity_type, bundle, url) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		entityType, bundle, pageURL, string(data), now())
	if err != nil {
		return fmt.Errorf("保存实体失败: %w", err)
	}
	return nil
}

// HasPageMarkup 实现 models.Storage
func (s *SQLiteStorage) HasPageMarkup(ctx context.Context, pageURL string) bool {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE url = ? AND html IS NOT NULL`, pageURL).Scan(&n)
	return err == nil && n > 0
}

// HasEntity 实现 models.Storage
func (s *SQLiteStorage) HasEntity(ctx context.Context, entityType, bundle, pageURL string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE entity_type = ? AND bundle = ? AND url = ?`,
		entityType, bundle, pageURL).Scan(&n)
	return err == nil && n > 0
}

// LoadEntity 读取已保存的实体
func (s *SQLiteStorage) LoadEntity(ctx context.Context, entityType, bundle, pageURL string) (models.Entity, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE entity_type = ? AND bundle = ? AND url = ?`,
		entityType, bundle, pageURL).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("读取实体失败: %w", err)
	}
	var entity models.Entity
	if err := json.Unmarshal([]byte(data), &entity); err != nil {
		return nil, fmt.Errorf("解析实体失败: %w", err)
	}
	return entity, nil
}

// Close 实现 models.Storage
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
