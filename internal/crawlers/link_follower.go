package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/rs/zerolog/log"
)

// CrawlState 一次运行中共享的抓取状态
// 已抓取集合和限制计数器在整个运行期间只增不减
type CrawlState struct {
	seen     map[string]struct{}
	counters map[string]int
	mu       sync.Mutex
}

// NewCrawlState 创建抓取状态
func NewCrawlState() *CrawlState {
	return &CrawlState{
		seen:     make(map[string]struct{}),
		counters: make(map[string]int),
	}
}

// MarkSeen 标记URL已抓取,URL此前已标记时返回false
func (s *CrawlState) MarkSeen(pageURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[pageURL]; ok {
		return false
	}
	s.seen[pageURL] = struct{}{}
	return true
}

// admit 标记URL并递增限制计数,返回跳过原因
func (s *CrawlState) admit(pageURL string, rule models.CrawlRule) (models.SkipReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[pageURL]; ok {
		return models.SkipAlreadyCrawled, false
	}
	s.seen[pageURL] = struct{}{}

	id := rule.LimitID()
	s.counters[id]++
	if rule.MaxPagesToCrawl > 0 && s.counters[id] > rule.MaxPagesToCrawl {
		return models.SkipLimitExceeded, false
	}
	return "", true
}

// Count 返回限制计数器的当前值
func (s *CrawlState) Count(limitID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[limitID]
}

// LinkFollower 按抓取规则在页面上发现链接并入队
type LinkFollower struct {
	site   *models.SiteConfig
	queue  *OperationQueue
	state  *CrawlState
	stats  *Stats
	filter models.EnqueueFilter

	// robots 为nil时不检查 robots.txt
	robots *RobotsChecker
}

// NewLinkFollower 创建链接跟随器
func NewLinkFollower(site *models.SiteConfig, queue *OperationQueue, state *CrawlState, stats *Stats, filter models.EnqueueFilter, robots *RobotsChecker) *LinkFollower {
	return &LinkFollower{
		site:   site,
		queue:  queue,
		state:  state,
		stats:  stats,
		filter: filter,
		robots: robots,
	}
}

// Follow 查询规则选择器匹配的链接,去重并按限制入队
// 返回入队的链接数
func (lf *LinkFollower) Follow(ctx context.Context, page models.Page, rule models.CrawlRule, entry *models.EntryPoint) (int, error) {
	hrefs, err := page.QueryAttribute(ctx, rule.Selector, "href")
	if err != nil {
		return 0, fmt.Errorf("查询链接 %q 失败: %w", rule.Selector, err)
	}

	var configs []models.ExtractionConfig
	if !rule.Recurses() {
		var ok bool
		if configs, ok = lf.site.ResolveDestination(rule.To); !ok {
			return 0, &models.ConfigError{Scope: rule.LimitID(), Reason: fmt.Sprintf("未定义的目标 %q", rule.To)}
		}
	}

	enqueued := 0
	for _, link := range ResolveLinks(page.URL(), hrefs) {
		if err := ctx.Err(); err != nil {
			return enqueued, err
		}

		if lf.robots != nil && !lf.robots.Allowed(ctx, link) {
			lf.skip(link, rule, models.SkipRobots)
			continue
		}
		if reason, ok := lf.state.admit(link, rule); !ok {
			lf.skip(link, rule, reason)
			continue
		}
		if lf.filter != nil && !lf.filter.AllowEnqueue(ctx, link, rule) {
			lf.skip(link, rule, models.SkipVetoed)
			continue
		}

		if rule.Recurses() {
			if entry == nil {
				return enqueued, &models.ConfigError{Scope: rule.LimitID(), Reason: "递归规则缺少入口点"}
			}
			if err := SeedEntryPoint(lf.queue, lf.site, entry.WithURL(link)); err != nil {
				return enqueued, err
			}
		} else {
			lf.queue.AddItem(link, models.NewExtractOperation(rule.To, configs, rule.Cache, entry))
		}
		enqueued++
		lf.stats.LinkEnqueued()
		log.Debug().Str("url", utils.SafeURL(link)).Str("to", rule.To).Msg("链接已入队")
	}
	return enqueued, nil
}

func (lf *LinkFollower) skip(link string, rule models.CrawlRule, reason models.SkipReason) {
	lf.stats.LinkSkipped(reason)
	log.Info().
		Str("url", utils.SafeURL(link)).
		Str("limit", rule.LimitID()).
		Str("reason", string(reason)).
		Msg("跳过链接")
}

// SeedEntryPoint 为入口点URL添加操作: 先按顺序添加所有 follow 规则,再添加 extract
func SeedEntryPoint(queue *OperationQueue, site *models.SiteConfig, entry models.EntryPoint) error {
	if err := site.ValidateEntryPoint(entry); err != nil {
		return err
	}
	ep := entry
	for _, rule := range ep.Follow {
		queue.AddItem(ep.URL, models.NewCrawlOperation(rule, &ep))
	}
	if len(ep.Extract) > 0 {
		queue.AddItem(ep.URL, models.NewExtractOperation(ep.To, ep.Extract, ep.Cache, &ep))
	}
	return nil
}

// ResolveLinks 把href解析为绝对URL,去掉片段,只保留http(s),保持出现顺序
func ResolveLinks(baseURL string, hrefs []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		links = append(links, abs.String())
	}
	return links
}
