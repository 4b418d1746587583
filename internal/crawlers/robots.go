package crawlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// DefaultUserAgent robots.txt 匹配使用的UA
const DefaultUserAgent = "CompCrawl"

// RobotsChecker 按主机缓存 robots.txt 并判断链接是否允许抓取
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	headers   http.Header

	// scheme://host -> 规则, nil 表示全部允许
	cache map[string]*robotstxt.Group
	mu    sync.Mutex
}

// NewRobotsChecker 创建 robots.txt 检查器
func NewRobotsChecker(headers http.Header, timeout time.Duration) *RobotsChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsChecker{
		client:    &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
		headers:   headers,
		cache:     make(map[string]*robotstxt.Group),
	}
}

// Allowed 判断URL是否允许抓取,robots.txt 获取失败时视为允许
func (rc *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	rc.mu.Lock()
	group, ok := rc.cache[origin]
	rc.mu.Unlock()

	if !ok {
		group, err = rc.fetch(ctx, origin)
		if err != nil {
			log.Debug().Err(err).Str("origin", origin).Msg("获取robots.txt失败,视为允许")
		}
		rc.mu.Lock()
		rc.cache[origin] = group
		rc.mu.Unlock()
	}
	if group == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (rc *RobotsChecker) fetch(ctx context.Context, origin string) (*robotstxt.Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	for name, values := range rc.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求robots.txt失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("读取robots.txt失败: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("解析robots.txt失败: %w", err)
	}
	return data.FindGroup(rc.userAgent), nil
}
