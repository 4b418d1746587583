package crawlers

import (
	"sync"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

// Stats 并发安全的运行计数器
type Stats struct {
	mu     sync.Mutex
	stats  models.RunStats
	failed []models.FailedPage

	// onPage 每完成一个URL回调一次,用于进度条
	onPage func()
}

// NewStats 创建计数器
func NewStats() *Stats {
	return &Stats{stats: models.RunStats{LinksSkipped: make(map[models.SkipReason]int)}}
}

// OnPageDone 注册URL完成回调
func (s *Stats) OnPageDone(fn func()) {
	s.mu.Lock()
	s.onPage = fn
	s.mu.Unlock()
}

func (s *Stats) pageDone(failed bool) {
	s.mu.Lock()
	if failed {
		s.stats.PagesFailed++
	} else {
		s.stats.PagesVisited++
	}
	fn := s.onPage
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// PageFailed 记录失败的URL
func (s *Stats) PageFailed(pageURL string, op models.OperationKind, err error) {
	s.mu.Lock()
	s.failed = append(s.failed, models.FailedPage{URL: pageURL, Operation: string(op), ErrorMsg: err.Error()})
	s.mu.Unlock()
}

func (s *Stats) inc(field *int) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

// PageCached 记录缓存的页面源码
func (s *Stats) PageCached() { s.inc(&s.stats.PagesCached) }

// EntitySaved 记录写出的实体
func (s *Stats) EntitySaved() { s.inc(&s.stats.EntitiesSaved) }

// EntitySkipped 记录因已存在而跳过的实体
func (s *Stats) EntitySkipped() { s.inc(&s.stats.EntitiesSkipped) }

// LinkEnqueued 记录入队的链接
func (s *Stats) LinkEnqueued() { s.inc(&s.stats.LinksEnqueued) }

// LinkSkipped 按原因记录跳过的链接
func (s *Stats) LinkSkipped(reason models.SkipReason) {
	s.mu.Lock()
	s.stats.LinksSkipped[reason]++
	s.mu.Unlock()
}

// Snapshot 返回当前计数的副本
func (s *Stats) Snapshot() models.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.LinksSkipped = make(map[models.SkipReason]int, len(s.stats.LinksSkipped))
	for k, v := range s.stats.LinksSkipped {
		out.LinksSkipped[k] = v
	}
	return out
}

// FailedPages 返回失败URL列表的副本
func (s *Stats) FailedPages() []models.FailedPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FailedPage(nil), s.failed...)
}
