package extractor

import (
	"reflect"
	"testing"
)

func TestSplitSelectorGroup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"单个选择器", "div > p", []string{"div > p"}},
		{"选择器组", "h1, h2 ,h3", []string{"h1", "h2", "h3"}},
		{"括号内的逗号", "li:is(.a, .b), p", []string{"li:is(.a, .b)", "p"}},
		{"引号内的逗号", `a[title="x, y"], b`, []string{`a[title="x, y"]`, "b"}},
		{"空字符串", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitSelectorGroup(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitSelectorGroup(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestScopeSelector(t *testing.T) {
	tests := []struct {
		name          string
		parent, child string
		want          string
	}{
		{"无父作用域", "", ".a", ".a"},
		{"无子选择器", ".p", "", ".p"},
		{"简单前缀", ".p", ".a", ".p .a"},
		{"笛卡尔积", ".p, .q", ".a, .b", ".p .a, .p .b, .q .a, .q .b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeSelector(tt.parent, tt.child); got != tt.want {
				t.Errorf("scopeSelector() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcludeMarked(t *testing.T) {
	got := excludeMarked(".a, div > .b", MarkerClass)
	want := ".a:not(.compcrawl-extracted), div > .b:not(.compcrawl-extracted)"
	if got != want {
		t.Errorf("excludeMarked() = %q, want %q", got, want)
	}
}

func TestSpecificity(t *testing.T) {
	if !Specificity(".a").Less(Specificity("#a")) {
		t.Error("ID选择器优先级应高于类选择器")
	}
	if !Specificity("p").Less(Specificity("p, .a")) {
		t.Error("选择器组应取最高优先级")
	}
	if Specificity("[[") != Specificity("") {
		t.Error("无法解析的选择器应为零值")
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		as   string
		want destination
	}{
		{"title", destination{field: "title"}},
		{"entity.meta.author", destination{field: "meta.author"}},
		{"tags[]", destination{field: "tags"}},
		{"component.Button", destination{component: "Button"}},
		{"component.Button.text", destination{component: "Button", field: "text"}},
		{"component.Grid.items[].title", destination{component: "Grid", group: "items", prop: "title"}},
		{"items[].image", destination{group: "items", prop: "image"}},
	}
	for _, tt := range tests {
		t.Run(tt.as, func(t *testing.T) {
			if got := parseDestination(tt.as); got != tt.want {
				t.Errorf("parseDestination(%q) = %+v, want %+v", tt.as, got, tt.want)
			}
		})
	}
}

func TestRewriteDestination(t *testing.T) {
	t.Run("去掉同名组件前缀", func(t *testing.T) {
		if got := relativeTo("component.Card.title", "Card"); got != "title" {
			t.Errorf("relativeTo() = %q", got)
		}
		if got := relativeTo("component.Other.title", "Card"); got != "component.Other.title" {
			t.Errorf("不同组件不应改写, got %q", got)
		}
	})

	t.Run("分组字段前缀", func(t *testing.T) {
		if got := prefixField("author", "meta"); got != "meta.author" {
			t.Errorf("prefixField() = %q", got)
		}
		if got := prefixField("component.Button.text", "meta"); got != "component.Button.text" {
			t.Errorf("组件目标不应加前缀, got %q", got)
		}
	})
}

func TestSetPath(t *testing.T) {
	m := map[string]interface{}{}
	setPath(m, "meta.author", "张三")
	setPath(m, "meta.date", "2024")
	setPath(m, "title", "标题")

	want := map[string]interface{}{
		"meta":  map[string]interface{}{"author": "张三", "date": "2024"},
		"title": "标题",
	}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("setPath() = %#v", m)
	}
}
