// Package browser 提供提取引擎使用的页面驱动
//
// 两种实现:
//   - rod: 驱动无头Chromium,支持JavaScript渲染和截图
//   - static: Colly抓取 + goquery查询,不执行脚本
package browser

import (
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

// Options 页面驱动选项
type Options struct {
	// Driver "rod" 或 "static"
	Driver   string
	Headless bool

	// Headers 每个请求附带的HTTP头部
	Headers http.Header

	// Timeout 单次请求超时
	Timeout time.Duration
}

// OptionsFromSettings 从站点设置构建驱动选项
func OptionsFromSettings(s models.Settings, headers http.Header) Options {
	return Options{
		Driver:   s.Browser,
		Headless: s.Headless,
		Headers:  headers,
		Timeout:  s.PageTimeout,
	}
}

// New 按 Driver 创建页面工厂
func New(opts Options) (models.PageFactory, error) {
	switch opts.Driver {
	case "", "rod":
		return LaunchRod(opts)
	case "static":
		return NewStaticFetcher(opts), nil
	default:
		return nil, &models.ConfigError{Scope: "settings.browser", Reason: fmt.Sprintf("未知的页面驱动 %q", opts.Driver)}
	}
}
