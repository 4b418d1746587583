package core

import (
	"errors"
	"testing"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	tests := []struct {
		name string
		site map[string]string
		cli  []string
		want map[string]string
	}{
		{
			name: "默认头部存在",
			want: map[string]string{"User-Agent": DefaultUserAgent},
		},
		{
			name: "站点头部覆盖默认",
			site: map[string]string{"user-agent": "SiteBot/1.0", "X-Site": "a"},
			want: map[string]string{"User-Agent": "SiteBot/1.0", "X-Site": "a"},
		},
		{
			name: "命令行头部覆盖站点",
			site: map[string]string{"User-Agent": "SiteBot/1.0", "X-Site": "a"},
			cli:  []string{"User-Agent: CustomBot/1.0", "Authorization: Bearer token123"},
			want: map[string]string{
				"User-Agent":    "CustomBot/1.0",
				"X-Site":        "a",
				"Authorization": "Bearer token123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager(tt.site, tt.cli)
			if err != nil {
				t.Fatalf("创建HeaderManager失败: %v", err)
			}
			headers := hm.GetMergedHeaders()
			for name, want := range tt.want {
				if got := headers.Get(name); got != want {
					t.Errorf("%s: 期望 %q, 得到 %q", name, want, got)
				}
			}
		})
	}
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager(nil, []string{
		"User-Agent: CustomBot/1.0",
		"Authorization: Bearer secret-token-12345",
		"X-API-Key: api-key-67890",
	})
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}

	safe := hm.GetSafeHeaders()
	if safe["User-Agent"] != "CustomBot/1.0" {
		t.Error("普通头部不应该被脱敏")
	}
	if safe["Authorization"] != "Bearer ***" {
		t.Errorf("期望Authorization='Bearer ***', 实际='%s'", safe["Authorization"])
	}
	if safe["X-Api-Key"] == "api-key-67890" {
		t.Error("X-API-Key应该被脱敏")
	}
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	t.Run("非法命令行参数返回错误", func(t *testing.T) {
		if _, err := NewHeaderManager(nil, []string{"InvalidFormat"}); err == nil {
			t.Error("期望返回错误, 但成功了")
		}
	})

	tests := []struct {
		name      string
		site      map[string]string
		cli       []string
		wantScope string
	}{
		{"命令行禁止头部", nil, []string{"Host: example.com"}, "--header"},
		{"站点禁止头部", map[string]string{"Content-Length": "1"}, nil, "settings.headers"},
		{"站点非法值", map[string]string{"X-Bad": "a\x00b"}, nil, "settings.headers"},
		{"合法头部", map[string]string{"X-Custom": "v"}, []string{"User-Agent: TestBot/1.0"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager(tt.site, tt.cli)
			if err != nil {
				t.Fatalf("创建HeaderManager失败: %v", err)
			}
			headers, err := hm.GetHeaders()
			if tt.wantScope == "" {
				if err != nil {
					t.Fatalf("GetHeaders失败: %v", err)
				}
				if headers.Get("User-Agent") != "TestBot/1.0" || headers.Get("X-Custom") != "v" {
					t.Errorf("头部合并错误: %v", headers)
				}
				return
			}

			var cfgErr *models.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("期望ConfigError, 得到 %v", err)
			}
			if cfgErr.Scope != tt.wantScope {
				t.Errorf("错误位置: 期望 %s, 得到 %s", tt.wantScope, cfgErr.Scope)
			}
			var vErr *models.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("应保留底层 ValidationError: %v", err)
			}
		})
	}
}
