package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// FileStorage 默认的文件存储
//
//	{root}/cache/{host}/{path}.html       页面源码
//	{root}/cache/{host}/{path}.png        截图
//	{root}/{entityType}/{bundle}/{host}/{path}.json  实体
type FileStorage struct {
	root string
}

// NewFileStorage 创建文件存储
func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	return &FileStorage{root: root}, nil
}

// Root 返回输出根目录
func (fs *FileStorage) Root() string {
	return fs.root
}

func (fs *FileStorage) cachePath(pageURL, ext string) (string, error) {
	rel, err := PathForURL(pageURL, ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, "cache", rel), nil
}

func (fs *FileStorage) entityPath(entityType, bundle, pageURL string) (string, error) {
	rel, err := PathForURL(pageURL, ".json")
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, sanitizeSegment(entityType), sanitizeSegment(bundle), rel), nil
}

// PersistPageMarkup 实现 models.Storage
func (fs *FileStorage) PersistPageMarkup(ctx context.Context, pageURL, html string) error {
	p, err := fs.cachePath(pageURL, ".html")
	if err != nil {
		return err
	}
	return writeFile(p, []byte(html))
}

// PersistScreenshot 实现 models.Storage
func (fs *FileStorage) PersistScreenshot(ctx context.Context, pageURL string, png []byte) error {
	p, err := fs.cachePath(pageURL, ".png")
	if err != nil {
		return err
	}
	return writeFile(p, png)
}

// PersistEntity 实现 models.Storage
func (fs *FileStorage) PersistEntity(ctx context.Context, entity models.Entity, entityType, bundle, pageURL string) error {
	p, err := fs.entityPath(entityType, bundle, pageURL)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化实体失败: %w", err)
	}
	return writeFile(p, data)
}

// HasPageMarkup 实现 models.Storage
func (fs *FileStorage) HasPageMarkup(ctx context.Context, pageURL string) bool {
	p, err := fs.cachePath(pageURL, ".html")
	return err == nil && exists(p)
}

// HasEntity 实现 models.Storage
func (fs *FileStorage) HasEntity(ctx context.Context, entityType, bundle, pageURL string) bool {
	p, err := fs.entityPath(entityType, bundle, pageURL)
	return err == nil && exists(p)
}

// Close 实现 models.Storage
func (fs *FileStorage) Close() error {
	return nil
}

func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	log.Debug().Str("path", p).Int("bytes", len(data)).Msg("已写入")
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
