package crawlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/CompCrawl/internal/extractor"
	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

// memStorage 内存存储
type memStorage struct {
	mu       sync.Mutex
	markup   map[string]string
	entities map[string]models.Entity
	order    []string
}

func newMemStorage() *memStorage {
	return &memStorage{markup: map[string]string{}, entities: map[string]models.Entity{}}
}

func (m *memStorage) PersistPageMarkup(ctx context.Context, url, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markup[url] = html
	return nil
}

func (m *memStorage) PersistScreenshot(ctx context.Context, url string, png []byte) error {
	return nil
}

func (m *memStorage) PersistEntity(ctx context.Context, entity models.Entity, entityType, bundle, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityType + "/" + bundle + " " + url
	m.entities[key] = entity
	m.order = append(m.order, key)
	return nil
}

func (m *memStorage) HasPageMarkup(ctx context.Context, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.markup[url]
	return ok
}

func (m *memStorage) HasEntity(ctx context.Context, entityType, bundle, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entities[entityType+"/"+bundle+" "+url]
	return ok
}

func (m *memStorage) Close() error { return nil }

const blogIndex = `<html><body>
	<a class="post" href="/posts/1">一</a>
	<a class="post" href="/posts/2">二</a>
	<a class="post" href="/posts/missing">坏链接</a>
	<a class="next" href="/blog?page=2">下一页</a>
</body></html>`

const blogIndex2 = `<html><body>
	<a class="post" href="/posts/3">三</a>
	<a class="post" href="/posts/1">一</a>
	<a class="next" href="/blog">上一页</a>
</body></html>`

func blogSite() (*models.SiteConfig, *fakeSite) {
	site := &models.SiteConfig{
		EntryPoints: []models.EntryPoint{{
			URL: "https://example.com/blog",
			Follow: []models.CrawlRule{
				{Selector: "a.post", To: "content/blog", Cache: true},
				{Selector: "a.next", To: models.RecursionMarker},
			},
		}},
		Destinations: map[string][]models.ExtractionConfig{
			"content/blog": {{Selector: "h1", Extract: "text", As: "title"}},
		},
		Settings: models.DefaultSettings(),
	}
	site.Settings.CrawlDelay = []int{0, 0}
	site.Settings.MaxParallelPages = 2

	pages := &fakeSite{pages: map[string]string{
		"https://example.com/blog":        blogIndex,
		"https://example.com/blog?page=2": blogIndex2,
		"https://example.com/posts/1":     "<h1>文章一</h1>",
		"https://example.com/posts/2":     "<h1>文章二</h1>",
		"https://example.com/posts/3":     "<h1>文章三</h1>",
	}}
	return site, pages
}

func newTestScheduler(site *models.SiteConfig, pages *fakeSite, storage models.Storage, hooks models.Hooks) *Scheduler {
	return NewScheduler(SchedulerOptions{
		Site:      site,
		Pool:      NewPagePool(pages, site.Settings.MaxParallelPages),
		Extractor: extractor.New(extractor.OptionsFromSite(site, hooks.Extractors)),
		Storage:   storage,
		Hooks:     hooks,
	})
}

func TestScheduler_Run(t *testing.T) {
	site, pages := blogSite()
	if err := site.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	storage := newMemStorage()
	s := newTestScheduler(site, pages, storage, models.Hooks{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, n := range []string{"1", "2", "3"} {
		key := "content/blog https://example.com/posts/" + n
		entity, ok := storage.entities[key]
		if !ok {
			t.Errorf("缺少实体 %s", key)
			continue
		}
		if entity["title"] == nil {
			t.Errorf("实体 %s 缺少 title: %v", key, entity)
		}
	}
	if len(storage.markup) != 3 {
		t.Errorf("应缓存3个页面, got %d", len(storage.markup))
	}

	t.Run("每个URL只导航一次", func(t *testing.T) {
		seen := map[string]int{}
		for _, u := range pages.navigations() {
			seen[u]++
			if seen[u] > 1 {
				t.Errorf("%s 被导航了 %d 次", u, seen[u])
			}
		}
	})

	t.Run("统计", func(t *testing.T) {
		snap := s.Stats().Snapshot()
		if snap.EntitiesSaved != 3 {
			t.Errorf("EntitiesSaved = %d, want 3", snap.EntitiesSaved)
		}
		if snap.PagesFailed != 1 {
			t.Errorf("PagesFailed = %d, want 1", snap.PagesFailed)
		}
		if snap.LinksSkipped[models.SkipAlreadyCrawled] != 2 {
			t.Errorf("already crawled = %d, want 2", snap.LinksSkipped[models.SkipAlreadyCrawled])
		}
		failed := s.Stats().FailedPages()
		if len(failed) != 1 || failed[0].URL != "https://example.com/posts/missing" {
			t.Errorf("FailedPages() = %+v", failed)
		}
	})

	if s.Queue().GetKeysCount() != 0 {
		t.Error("结束时队列应为空")
	}
	if pages.opened > site.Settings.MaxParallelPages {
		t.Errorf("打开的页面数 %d 超过上限", pages.opened)
	}
}

func TestScheduler_OutputSkipExisting(t *testing.T) {
	site, pages := blogSite()
	site.Settings.OutputSkipExisting = true
	storage := newMemStorage()
	storage.entities["content/blog https://example.com/posts/1"] = models.Entity{"title": "旧"}

	s := newTestScheduler(site, pages, storage, models.Hooks{})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if storage.entities["content/blog https://example.com/posts/1"]["title"] != "旧" {
		t.Error("已存在的实体不应被覆盖")
	}
	if got := s.Stats().Snapshot().EntitiesSkipped; got != 1 {
		t.Errorf("EntitiesSkipped = %d, want 1", got)
	}
}

func TestScheduler_Hooks(t *testing.T) {
	site, pages := blogSite()
	storage := newMemStorage()
	hooks := models.Hooks{
		EntityAlterer: models.EntityAltererFunc(func(ctx context.Context, e models.Entity, dest, url string) (models.Entity, error) {
			if url == "https://example.com/posts/2" {
				return nil, nil
			}
			e["source"] = url
			return e, nil
		}),
	}

	s := newTestScheduler(site, pages, storage, hooks)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := storage.entities["content/blog https://example.com/posts/2"]; ok {
		t.Error("钩子返回nil时不应保存实体")
	}
	if got := storage.entities["content/blog https://example.com/posts/1"]["source"]; got != "https://example.com/posts/1" {
		t.Errorf("source = %v", got)
	}
}

func TestScheduler_FatalAbort(t *testing.T) {
	site, pages := blogSite()
	site.Destinations["content/blog"] = []models.ExtractionConfig{
		{Selector: "h1", Extract: "custom:missing", As: "title"},
	}

	s := newTestScheduler(site, pages, newMemStorage(), models.Hooks{})
	err := s.Run(context.Background())
	var cv *models.ContractViolation
	if !errors.As(err, &cv) {
		t.Fatalf("Run() error = %v, want ContractViolation", err)
	}
}

func TestScheduler_InvalidEntryPoint(t *testing.T) {
	site, pages := blogSite()
	site.EntryPoints[0].URL = ""

	err := newTestScheduler(site, pages, newMemStorage(), models.Hooks{}).Run(context.Background())
	if !models.IsFatal(err) {
		t.Errorf("Run() error = %v, want ConfigError", err)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	site, pages := blogSite()
	site.Settings.CrawlDelay = []int{5000, 5000}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := newTestScheduler(site, pages, newMemStorage(), models.Hooks{}).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("取消后应尽快返回")
	}
}
