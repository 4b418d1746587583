package storage

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// PathForURL 把URL转换为相对文件路径: {host}/{path}[__{query哈希}]{ext}
// 目录形式的路径使用 index 作为文件名
func PathForURL(rawURL, ext string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("解析URL失败: %w", err)
	}
	host := sanitizeSegment(u.Host)
	if host == "" {
		host = "unknown"
	}

	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index"
	}
	p = strings.TrimSuffix(p, path.Ext(p))

	segments := []string{host}
	for _, seg := range strings.Split(path.Clean("/"+p), "/") {
		if seg = sanitizeSegment(seg); seg != "" && seg != "." && seg != ".." {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 1 {
		segments = append(segments, "index")
	}

	if u.RawQuery != "" {
		segments[len(segments)-1] += "__" + calculateHash([]byte(u.RawQuery))[:12]
	}
	segments[len(segments)-1] += ext
	return filepath.Join(segments...), nil
}

// sanitizeSegment 替换文件名中不安全的字符
func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '\\', '|', '?', '*', '\x00':
			return '_'
		}
		return r
	}, s)
}

// calculateHash 计算SHA-256哈希
func calculateHash(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
