package browser

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/andybalholm/cascadia"
	"github.com/gocolly/colly/v2"
)

// StaticFetcher 静态页面抓取器(使用Colly),不执行JavaScript
type StaticFetcher struct {
	collector *colly.Collector
	headers   http.Header
}

// NewStaticFetcher 创建静态抓取器
func NewStaticFetcher(opts Options) *StaticFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// 跳过证书验证,允许访问自签名或过期证书的站点
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: timeout,
	}

	// 同步模式,每次抓取使用 Clone 出的独立回调
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetClient(httpClient)
	c.SetRequestTimeout(timeout)
	c.WithTransport(httpClient.Transport)

	utils.Debugf("静态抓取器: 超时 %v, TLS证书验证已禁用", timeout)

	return &StaticFetcher{
		collector: c,
		headers:   opts.Headers,
	}
}

// Fetch 抓取URL,返回解压后的响应体和最终地址
func (f *StaticFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	c := f.collector.Clone()
	c.Context = ctx

	var (
		body     []byte
		finalURL = pageURL
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL.String()
		body = r.Body
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			decompressed, err := decompressBody(encoding, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", finalURL, encoding, err)
				return
			}
			body = decompressed
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("请求失败 (状态码=%d): %w", r.StatusCode, err)
	})

	if err := c.Request(http.MethodGet, pageURL, nil, nil, f.headers.Clone()); err != nil {
		if fetchErr != nil {
			return nil, "", fetchErr
		}
		return nil, "", fmt.Errorf("访问 %s 失败: %w", pageURL, err)
	}
	if fetchErr != nil {
		return nil, "", fetchErr
	}
	return body, finalURL, nil
}

// NewPage 实现 models.PageFactory
func (f *StaticFetcher) NewPage(ctx context.Context) (models.Page, error) {
	return &StaticPage{fetcher: f}, nil
}

// Close 实现 models.PageFactory
func (f *StaticFetcher) Close() error {
	return nil
}

// decompressBody 按 Content-Encoding 解压响应体
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "", "identity":
		return body, nil
	default:
		return nil, fmt.Errorf("不支持的压缩编码: %s", contentEncoding)
	}
}

// StaticPage 基于goquery文档的页面
// 标记类直接写入内存中的DOM树
type StaticPage struct {
	fetcher *StaticFetcher

	mu  sync.Mutex
	doc *goquery.Document
	url string
}

// NewStaticPageFromHTML 从HTML字符串构建页面,不发起网络请求
func NewStaticPageFromHTML(pageURL, markup string) (*StaticPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	return &StaticPage{doc: doc, url: pageURL}, nil
}

// URL 当前已加载的地址
func (p *StaticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Navigate 抓取并解析页面
func (p *StaticPage) Navigate(ctx context.Context, pageURL string) error {
	if p.fetcher == nil {
		return fmt.Errorf("静态页面未绑定抓取器: %w", models.ErrUnsupported)
	}

	body, finalURL, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("解析HTML失败 [%s]: %w", finalURL, err)
	}

	p.mu.Lock()
	p.doc = doc
	p.url = pageURL
	p.mu.Unlock()
	return nil
}

// HTML 返回当前文档源码
func (p *StaticPage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", fmt.Errorf("页面尚未加载")
	}
	return p.doc.Html()
}

// Screenshot 静态模式不支持截图
func (p *StaticPage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, models.ErrUnsupported
}

// Close 释放文档
func (p *StaticPage) Close() error {
	p.mu.Lock()
	p.doc = nil
	p.mu.Unlock()
	return nil
}

// find 编译选择器并查询,选择器无效时返回错误而不是空结果
func (p *StaticPage) find(selector string) (*goquery.Selection, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("页面尚未加载")
	}
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("无效的选择器 %q: %w", selector, err)
	}
	return p.doc.FindMatcher(matcher), nil
}

// Exists 实现 models.DOM
func (p *StaticPage) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := p.Count(ctx, selector)
	return n > 0, err
}

// Count 实现 models.DOM
func (p *StaticPage) Count(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return 0, err
	}
	return sel.Length(), nil
}

// QueryText 实现 models.DOM
func (p *StaticPage) QueryText(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		values = append(values, strings.TrimSpace(s.Text()))
	})
	return values, nil
}

// QueryMarkup 实现 models.DOM
func (p *StaticPage) QueryMarkup(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, sel.Length())
	var htmlErr error
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		inner, err := s.Html()
		if err != nil {
			htmlErr = err
			return false
		}
		values = append(values, inner)
		return true
	})
	if htmlErr != nil {
		return nil, fmt.Errorf("渲染HTML失败: %w", htmlErr)
	}
	return values, nil
}

// QueryAttribute 实现 models.DOM
func (p *StaticPage) QueryAttribute(ctx context.Context, selector, name string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(name); ok {
			values = append(values, v)
		}
	})
	return values, nil
}

// Evaluate 静态模式无法执行脚本
func (p *StaticPage) Evaluate(ctx context.Context, selector, js string, args ...interface{}) (interface{}, error) {
	return nil, models.ErrUnsupported
}

// AddMarkerClass 实现 models.DOM
func (p *StaticPage) AddMarkerClass(ctx context.Context, selector, class string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return err
	}
	sel.AddClass(class)
	return nil
}

// TagEach 实现 models.DOM
func (p *StaticPage) TagEach(ctx context.Context, selector string, classes []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return err
	}
	sel.Each(func(i int, s *goquery.Selection) {
		if i < len(classes) {
			s.AddClass(classes[i])
		}
	})
	return nil
}

// Position 实现 models.DOM
func (p *StaticPage) Position(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return -1, err
	}
	if sel.Length() == 0 {
		return -1, nil
	}
	first := sel.Get(0)
	for i, node := range p.doc.Find("*").Nodes {
		if node == first {
			return i, nil
		}
	}
	return -1, nil
}
