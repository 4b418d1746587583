package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// NewRunID 生成一次抓取运行的唯一ID
func NewRunID() string {
	return uuid.New().String()
}

// SplitDestination 将目标标签拆分为实体类型和bundle
// "content/blog" -> ("content", "blog"); 无斜杠时两者相同
func SplitDestination(destination string) (entityType, bundle string) {
	destination = strings.Trim(destination, "/")
	if i := strings.Index(destination, "/"); i >= 0 {
		return destination[:i], destination[i+1:]
	}
	return destination, destination
}
