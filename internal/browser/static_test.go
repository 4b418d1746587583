package browser

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/andybalholm/brotli"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title>测试页面</title></head>
<body>
  <div class="list">
    <a class="item" href="/a">第一项</a>
    <a class="item" href="/b">第二项</a>
    <a class="item">第三项</a>
  </div>
  <footer class="footer"><p>版权所有</p></footer>
</body>
</html>`

func newTestPage(t *testing.T) *StaticPage {
	t.Helper()
	page, err := NewStaticPageFromHTML("https://example.com/", testPage)
	if err != nil {
		t.Fatalf("NewStaticPageFromHTML() error = %v", err)
	}
	return page
}

func TestStaticPage_Queries(t *testing.T) {
	ctx := context.Background()
	page := newTestPage(t)

	t.Run("计数", func(t *testing.T) {
		n, err := page.Count(ctx, ".list .item")
		if err != nil || n != 3 {
			t.Errorf("Count() = %d, %v, want 3", n, err)
		}
		ok, err := page.Exists(ctx, ".missing")
		if err != nil || ok {
			t.Errorf("Exists(.missing) = %v, %v", ok, err)
		}
	})

	t.Run("文本", func(t *testing.T) {
		got, err := page.QueryText(ctx, "head title")
		if err != nil {
			t.Fatalf("QueryText() error = %v", err)
		}
		if len(got) != 1 || got[0] != "测试页面" {
			t.Errorf("QueryText() = %v", got)
		}
	})

	t.Run("内部HTML", func(t *testing.T) {
		got, err := page.QueryMarkup(ctx, ".footer")
		if err != nil {
			t.Fatalf("QueryMarkup() error = %v", err)
		}
		if len(got) != 1 || got[0] != "<p>版权所有</p>" {
			t.Errorf("QueryMarkup() = %v", got)
		}
	})

	t.Run("属性只返回存在的值", func(t *testing.T) {
		got, err := page.QueryAttribute(ctx, ".item", "href")
		if err != nil {
			t.Fatalf("QueryAttribute() error = %v", err)
		}
		if strings.Join(got, ",") != "/a,/b" {
			t.Errorf("QueryAttribute() = %v", got)
		}
	})

	t.Run("无效选择器返回错误", func(t *testing.T) {
		if _, err := page.Count(ctx, "div[["); err == nil {
			t.Error("期望无效选择器返回错误")
		}
	})

	t.Run("脚本不受支持", func(t *testing.T) {
		_, err := page.Evaluate(ctx, "a", "(els) => els.length")
		if !errors.Is(err, models.ErrUnsupported) {
			t.Errorf("Evaluate() error = %v, want ErrUnsupported", err)
		}
	})
}

func TestStaticPage_Marking(t *testing.T) {
	ctx := context.Background()
	page := newTestPage(t)

	if err := page.TagEach(ctx, ".item", []string{"g-1", "g-2"}); err != nil {
		t.Fatalf("TagEach() error = %v", err)
	}
	if n, _ := page.Count(ctx, ".g-2"); n != 1 {
		t.Errorf("第二个元素应带有 g-2, 计数 = %d", n)
	}
	if n, _ := page.Count(ctx, ".item.g-1, .item.g-2"); n != 2 {
		t.Errorf("超出类名列表的元素不应被标记, 计数 = %d", n)
	}

	if err := page.AddMarkerClass(ctx, ".item", "done"); err != nil {
		t.Fatalf("AddMarkerClass() error = %v", err)
	}
	if n, _ := page.Count(ctx, ".item:not(.done)"); n != 0 {
		t.Errorf("标记后不应再匹配, 计数 = %d", n)
	}
}

func TestStaticPage_Position(t *testing.T) {
	ctx := context.Background()
	page := newTestPage(t)

	list, err := page.Position(ctx, ".list")
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	footer, err := page.Position(ctx, ".footer")
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if list >= footer {
		t.Errorf("文档顺序错误: list=%d footer=%d", list, footer)
	}
	if pos, _ := page.Position(ctx, ".missing"); pos != -1 {
		t.Errorf("无匹配时应返回 -1, 得到 %d", pos)
	}
}

func TestStaticFetcher_Navigate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "compcrawl" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("X-Test", "compcrawl")
	fetcher := NewStaticFetcher(Options{Driver: "static", Headers: headers})

	page, err := fetcher.NewPage(context.Background())
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	defer page.Close()

	if err := page.Navigate(context.Background(), server.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if page.URL() != server.URL {
		t.Errorf("URL() = %q, want %q", page.URL(), server.URL)
	}
	got, err := page.QueryText(context.Background(), "head title")
	if err != nil || len(got) != 1 || got[0] != "测试页面" {
		t.Errorf("QueryText() = %v, %v", got, err)
	}

	t.Run("缺少头部时请求失败", func(t *testing.T) {
		bare := NewStaticFetcher(Options{Driver: "static"})
		p, _ := bare.NewPage(context.Background())
		if err := p.Navigate(context.Background(), server.URL); err == nil {
			t.Error("期望403导致导航失败")
		}
	})
}

func TestDecompressBody(t *testing.T) {
	original := []byte("<html><body>压缩内容</body></html>")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(original)
	_ = gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(original)
	_ = bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		wantErr  bool
	}{
		{"gzip", "gzip", gz.Bytes(), false},
		{"brotli", "br", br.Bytes(), false},
		{"无压缩", "", original, false},
		{"未知编码", "zstd", original, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressBody(tt.encoding, tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decompressBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, original) {
				t.Errorf("decompressBody() = %q", got)
			}
		})
	}
}
