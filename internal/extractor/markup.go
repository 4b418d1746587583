package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// cleanMarkup 清除HTML片段中的标记类和区分类,可选压缩空白
func cleanMarkup(fragment string, minify bool) (string, error) {
	if !minify && !strings.Contains(fragment, generatedClassPrefix) {
		return fragment, nil
	}

	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return "", fmt.Errorf("解析HTML片段失败: %w", err)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		cleanNode(n, minify, false)
		if minify && n.Type == html.TextNode && n.Data == "" {
			continue
		}
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("渲染HTML片段失败: %w", err)
		}
	}
	out := buf.String()
	if minify {
		out = strings.TrimSpace(out)
	}
	return out, nil
}

func cleanNode(n *html.Node, minify, preformatted bool) {
	switch n.Type {
	case html.ElementNode:
		n.Attr = stripGeneratedClasses(n.Attr)
		if n.DataAtom == atom.Pre || n.DataAtom == atom.Textarea {
			preformatted = true
		}
	case html.TextNode:
		if minify && !preformatted {
			n.Data = collapseWhitespace(n.Data)
		}
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c, minify, preformatted)
		if minify && c.Type == html.TextNode && c.Data == "" {
			n.RemoveChild(c)
		} else if minify && c.Type == html.CommentNode {
			n.RemoveChild(c)
		}
		c = next
	}
}

func stripGeneratedClasses(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == "class" {
			var kept []string
			for _, cls := range strings.Fields(a.Val) {
				if !strings.HasPrefix(cls, generatedClassPrefix) {
					kept = append(kept, cls)
				}
			}
			if len(kept) == 0 {
				continue
			}
			a.Val = strings.Join(kept, " ")
		}
		out = append(out, a)
	}
	return out
}

// collapseWhitespace 连续空白压缩为一个空格,纯空白节点置空
func collapseWhitespace(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
