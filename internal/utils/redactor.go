package utils

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

var (
	// SensitiveKeywords 敏感头部和查询参数名称关键字 (用于脱敏)
	// 站点设置里常见登录态头部: Cookie、X-Session-Id、X-CSRF-Token
	SensitiveKeywords = []string{
		"authorization",
		"token",
		"key",
		"secret",
		"password",
		"credential",
		"cookie",
		"session",
		"csrf",
		"xsrf",
		"signature",
	}

	defaultRedactor = NewHeaderRedactor()
)

// HeaderRedactor 头部与URL脱敏器
// 负责在日志和报告输出前隐藏站点设置中的登录态和密钥
type HeaderRedactor struct {
	sensitiveKeywords []string
}

// NewHeaderRedactor 创建脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitiveHeader 检查头部(或查询参数)名称是否敏感
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range hr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}

	// Cookie 保留名称,隐藏值: "sid=***; theme=***"
	if strings.EqualFold(name, "Cookie") || strings.EqualFold(name, "Set-Cookie") {
		return redactCookie(value)
	}

	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}

	// 足够长时保留前4位和后4位
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

func redactCookie(value string) string {
	var parts []string
	for _, pair := range strings.Split(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, _, _ := strings.Cut(pair, "=")
		parts = append(parts, name+"=***")
	}
	if len(parts) == 0 {
		return "***"
	}
	return strings.Join(parts, "; ")
}

// Redact 脱敏整个http.Header,返回安全的字符串map (用于日志)
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		// 只取第一个值
		result[name] = hr.RedactHeaderValue(name, values[0])
	}
	return result
}

// RedactToString 脱敏http.Header并返回按名称排序的字符串
// 格式: "Header1: value1, Header2: value2"
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + redacted[name]
	}
	return strings.Join(parts, ", ")
}

// RedactURL 隐藏URL中的用户密码和敏感查询参数值
// 无法解析时原样返回
func (hr *HeaderRedactor) RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if u.RawQuery != "" {
		pairs := strings.Split(u.RawQuery, "&")
		for i, pair := range pairs {
			name, _, _ := strings.Cut(pair, "=")
			if decoded, err := url.QueryUnescape(name); err == nil {
				name = decoded
			}
			if hr.IsSensitiveHeader(name) {
				pairs[i] = strings.SplitN(pair, "=", 2)[0] + "=***"
			}
		}
		u.RawQuery = strings.Join(pairs, "&")
	}
	return u.Redacted()
}

// SafeURL 使用默认脱敏器处理日志中的URL
func SafeURL(rawURL string) string {
	return defaultRedactor.RedactURL(rawURL)
}
