package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	jsCount     = `(sel) => document.querySelectorAll(sel).length`
	jsText      = `(sel) => Array.from(document.querySelectorAll(sel), el => (el.textContent || '').trim())`
	jsMarkup    = `(sel) => Array.from(document.querySelectorAll(sel), el => el.innerHTML)`
	jsAttribute = `(sel, name) => Array.from(document.querySelectorAll(sel)).filter(el => el.hasAttribute(name)).map(el => el.getAttribute(name))`
	jsAddClass  = `(sel, cls) => { document.querySelectorAll(sel).forEach(el => el.classList.add(cls)) }`
	jsTagEach   = `(sel, classes) => { document.querySelectorAll(sel).forEach((el, i) => { if (i < classes.length) el.classList.add(classes[i]) }) }`
	jsPosition  = `(sel) => {
		const el = document.querySelector(sel)
		if (!el) return -1
		return Array.prototype.indexOf.call(document.getElementsByTagName('*'), el)
	}`
)

// RodBrowser 无头Chromium会话
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	headers  []string

	mu     sync.Mutex
	closed bool
}

// LaunchRod 启动浏览器并连接
func LaunchRod(opts Options) (*RodBrowser, error) {
	l := launcher.New().Headless(opts.Headless)

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已启动: %s (headless=%v)", controlURL, opts.Headless)

	headers := make([]string, 0, len(opts.Headers)*2)
	for name, values := range opts.Headers {
		if len(values) > 0 {
			headers = append(headers, name, values[0])
		}
	}

	return &RodBrowser{browser: b, launcher: l, headers: headers}, nil
}

// NewPage 创建新标签页
func (b *RodBrowser) NewPage(ctx context.Context) (models.Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	page = page.Context(context.Background())

	if len(b.headers) > 0 {
		if _, err := page.SetExtraHeaders(b.headers); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("设置请求头失败: %w", err)
		}
	}
	return &RodPage{page: page}, nil
}

// Close 关闭浏览器,可重复调用
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.browser.Close()
	b.launcher.Cleanup()
	utils.Debugf("浏览器已关闭")
	return err
}

// RodPage rod标签页
type RodPage struct {
	page *rod.Page

	mu  sync.Mutex
	url string
}

// URL 当前已加载的地址
func (p *RodPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Navigate 导航并等待load事件
func (p *RodPage) Navigate(ctx context.Context, pageURL string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(pageURL); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", pageURL, err)
	}

	p.mu.Lock()
	p.url = pageURL
	p.mu.Unlock()
	return nil
}

// HTML 返回渲染后的文档源码
func (p *RodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Screenshot 整页截图
func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close 关闭标签页
func (p *RodPage) Close() error {
	return p.page.Close()
}

func (p *RodPage) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("执行脚本失败: %w", err)
	}
	return res, nil
}

func (p *RodPage) evalStrings(ctx context.Context, js string, args ...interface{}) ([]string, error) {
	res, err := p.eval(ctx, js, args...)
	if err != nil {
		return nil, err
	}
	arr := res.Value.Arr()
	values := make([]string, 0, len(arr))
	for _, v := range arr {
		values = append(values, v.Str())
	}
	return values, nil
}

// Exists 实现 models.DOM
func (p *RodPage) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := p.Count(ctx, selector)
	return n > 0, err
}

// Count 实现 models.DOM
func (p *RodPage) Count(ctx context.Context, selector string) (int, error) {
	res, err := p.eval(ctx, jsCount, selector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// QueryText 实现 models.DOM
func (p *RodPage) QueryText(ctx context.Context, selector string) ([]string, error) {
	return p.evalStrings(ctx, jsText, selector)
}

// QueryMarkup 实现 models.DOM
func (p *RodPage) QueryMarkup(ctx context.Context, selector string) ([]string, error) {
	return p.evalStrings(ctx, jsMarkup, selector)
}

// QueryAttribute 实现 models.DOM
func (p *RodPage) QueryAttribute(ctx context.Context, selector, name string) ([]string, error) {
	return p.evalStrings(ctx, jsAttribute, selector, name)
}

// Evaluate 以匹配元素数组为第一个参数调用 js 函数
func (p *RodPage) Evaluate(ctx context.Context, selector, js string, args ...interface{}) (interface{}, error) {
	wrapped := fmt.Sprintf(`(sel, args) => (%s)(Array.from(document.querySelectorAll(sel)), ...args)`, js)
	if args == nil {
		args = []interface{}{}
	}
	res, err := p.eval(ctx, wrapped, selector, args)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

// AddMarkerClass 实现 models.DOM
func (p *RodPage) AddMarkerClass(ctx context.Context, selector, class string) error {
	_, err := p.eval(ctx, jsAddClass, selector, class)
	return err
}

// TagEach 实现 models.DOM
func (p *RodPage) TagEach(ctx context.Context, selector string, classes []string) error {
	_, err := p.eval(ctx, jsTagEach, selector, classes)
	return err
}

// Position 实现 models.DOM
func (p *RodPage) Position(ctx context.Context, selector string) (int, error) {
	res, err := p.eval(ctx, jsPosition, selector)
	if err != nil {
		return -1, err
	}
	return res.Value.Int(), nil
}
