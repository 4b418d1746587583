package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/RecoveryAshes/CompCrawl/internal/browser"
	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

func listingPage(t *testing.T, base string, n int) *browser.StaticPage {
	t.Helper()
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<li><a class="post" href="/posts/%d">文章%d</a></li>`, i, i)
	}
	b.WriteString(`</ul><a class="next" href="?page=2">下一页</a></body></html>`)

	page, err := browser.NewStaticPageFromHTML(base, b.String())
	if err != nil {
		t.Fatalf("NewStaticPageFromHTML() error = %v", err)
	}
	return page
}

func testSite() *models.SiteConfig {
	return &models.SiteConfig{
		Destinations: map[string][]models.ExtractionConfig{
			"content/*": {{Selector: "h1", Extract: "text", As: "title"}},
		},
		Settings: models.DefaultSettings(),
	}
}

func TestLinkFollower_Limit(t *testing.T) {
	ctx := context.Background()
	page := listingPage(t, "https://example.com/blog", 5)
	queue := NewOperationQueue()
	stats := NewStats()
	lf := NewLinkFollower(testSite(), queue, NewCrawlState(), stats, nil, nil)

	rule := models.CrawlRule{Selector: "a.post", To: "content/blog", MaxPagesToCrawl: 2}
	n, err := lf.Follow(ctx, page, rule, nil)
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if n != 2 {
		t.Errorf("enqueued = %d, want 2", n)
	}

	keys := queue.Keys()
	want := []string{"https://example.com/posts/1", "https://example.com/posts/2"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("queue keys = %v, want %v", keys, want)
	}
	for _, key := range keys {
		op, _ := queue.GetItem(key)
		if op.Kind != models.OpExtract || op.Destination != "content/blog" || len(op.Configs) != 1 {
			t.Errorf("操作不正确: %+v", op)
		}
	}

	snap := stats.Snapshot()
	if snap.LinksSkipped[models.SkipLimitExceeded] != 3 {
		t.Errorf("limit exceeded = %d, want 3", snap.LinksSkipped[models.SkipLimitExceeded])
	}
	if snap.LinksEnqueued != 2 {
		t.Errorf("LinksEnqueued = %d", snap.LinksEnqueued)
	}

	t.Run("超限的URL不会被其他规则重新抓取", func(t *testing.T) {
		other := models.CrawlRule{Selector: "li a", To: "content/blog"}
		n, err := lf.Follow(ctx, page, other, nil)
		if err != nil || n != 0 {
			t.Errorf("Follow() = %d, %v, want 0", n, err)
		}
		if got := stats.Snapshot().LinksSkipped[models.SkipAlreadyCrawled]; got != 5 {
			t.Errorf("already crawled = %d, want 5", got)
		}
	})
}

func TestLinkFollower_Unlimited(t *testing.T) {
	// maxPagesToCrawl 为0或负数时不限制,而不是只取第一个匹配
	tests := []struct {
		name     string
		maxPages int
		want     int
	}{
		{"显式为0", 0, 5},
		{"负数", -1, 5},
		{"限制为1", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := listingPage(t, "https://example.com/blog", 5)
			queue := NewOperationQueue()
			state := NewCrawlState()
			lf := NewLinkFollower(testSite(), queue, state, NewStats(), nil, nil)

			rule := models.CrawlRule{Selector: "a.post", To: "content/blog", MaxPagesToCrawl: tt.maxPages}
			n, err := lf.Follow(context.Background(), page, rule, nil)
			if err != nil || n != tt.want {
				t.Errorf("Follow() = %d, %v, want %d", n, err, tt.want)
			}
			if got := queue.GetKeysCount(); got != tt.want {
				t.Errorf("GetKeysCount() = %d, want %d", got, tt.want)
			}
			if got := state.Count(rule.LimitID()); got != 5 {
				t.Errorf("计数器 = %d, want 5", got)
			}
		})
	}
}

func TestLinkFollower_Veto(t *testing.T) {
	page := listingPage(t, "https://example.com/blog", 4)
	stats := NewStats()
	filter := models.EnqueueFilterFunc(func(ctx context.Context, u string, rule models.CrawlRule) bool {
		return !strings.HasSuffix(u, "/3")
	})
	lf := NewLinkFollower(testSite(), NewOperationQueue(), NewCrawlState(), stats, filter, nil)

	n, err := lf.Follow(context.Background(), page, models.CrawlRule{Selector: "a.post", To: "content/blog"}, nil)
	if err != nil || n != 3 {
		t.Errorf("Follow() = %d, %v, want 3", n, err)
	}
	if got := stats.Snapshot().LinksSkipped[models.SkipVetoed]; got != 1 {
		t.Errorf("vetoed = %d, want 1", got)
	}
}

func TestLinkFollower_Recursion(t *testing.T) {
	page := listingPage(t, "https://example.com/blog", 1)
	queue := NewOperationQueue()
	site := testSite()
	entry := &models.EntryPoint{
		URL: "https://example.com/blog",
		Follow: []models.CrawlRule{
			{Selector: "a.post", To: "content/blog"},
			{Selector: "a.next", To: models.RecursionMarker},
		},
	}
	lf := NewLinkFollower(site, queue, NewCrawlState(), NewStats(), nil, nil)

	n, err := lf.Follow(context.Background(), page, entry.Follow[1], entry)
	if err != nil || n != 1 {
		t.Fatalf("Follow() = %d, %v", n, err)
	}

	next := "https://example.com/blog?page=2"
	if got := queue.GetItemsCount(next); got != 2 {
		t.Fatalf("下一页应获得入口点的全部规则, got %d", got)
	}
	op, _ := queue.GetItem(next)
	if op.Kind != models.OpCrawl || op.Rule.Selector != "a.post" || op.Entry.URL != next {
		t.Errorf("第一个操作 = %+v", op)
	}
	if entry.URL != "https://example.com/blog" {
		t.Error("原入口点不应被修改")
	}
}

func TestLinkFollower_MissingDestination(t *testing.T) {
	page := listingPage(t, "https://example.com/blog", 1)
	lf := NewLinkFollower(testSite(), NewOperationQueue(), NewCrawlState(), NewStats(), nil, nil)

	_, err := lf.Follow(context.Background(), page, models.CrawlRule{Selector: "a.post", To: "page"}, nil)
	if !models.IsFatal(err) {
		t.Errorf("未定义目标应为致命错误, got %v", err)
	}
}

func TestLinkFollower_Robots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /posts/2\n")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	page := listingPage(t, srv.URL+"/blog", 3)
	stats := NewStats()
	robots := NewRobotsChecker(nil, 0)
	lf := NewLinkFollower(testSite(), NewOperationQueue(), NewCrawlState(), stats, nil, robots)

	n, err := lf.Follow(context.Background(), page, models.CrawlRule{Selector: "a.post", To: "content/blog"}, nil)
	if err != nil || n != 2 {
		t.Errorf("Follow() = %d, %v, want 2", n, err)
	}
	if got := stats.Snapshot().LinksSkipped[models.SkipRobots]; got != 1 {
		t.Errorf("robots = %d, want 1", got)
	}
}

func TestResolveLinks(t *testing.T) {
	got := ResolveLinks("https://example.com/a/b", []string{
		"c",
		"/d#frag",
		"https://other.com/x",
		"#top",
		"mailto:x@example.com",
		"javascript:void(0)",
		"  ../e  ",
	})
	want := []string{
		"https://example.com/a/c",
		"https://example.com/d",
		"https://other.com/x",
		"https://example.com/e",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveLinks() = %v, want %v", got, want)
	}
}
