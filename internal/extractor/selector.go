package extractor

import (
	"strings"

	"github.com/andybalholm/cascadia"
)

// splitSelectorGroup 按顶层逗号拆分选择器组,忽略括号、方括号和引号内的逗号
func splitSelectorGroup(selector string) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(selector); i++ {
		c := selector[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			if part := strings.TrimSpace(selector[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(selector[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// scopeSelector 以父选择器作为前缀限定子选择器
// 两侧都是选择器组时取笛卡尔积: "a, b" + "x" -> "a x, b x"
func scopeSelector(parent, child string) string {
	parent = strings.TrimSpace(parent)
	child = strings.TrimSpace(child)
	if child == "" {
		return parent
	}
	if parent == "" {
		return child
	}

	parents := splitSelectorGroup(parent)
	children := splitSelectorGroup(child)
	scoped := make([]string, 0, len(parents)*len(children))
	for _, p := range parents {
		for _, c := range children {
			scoped = append(scoped, p+" "+c)
		}
	}
	return strings.Join(scoped, ", ")
}

// excludeMarked 为选择器组的每一项追加 :not(.class)
func excludeMarked(selector, class string) string {
	parts := splitSelectorGroup(selector)
	for i, p := range parts {
		parts[i] = p + ":not(." + class + ")"
	}
	return strings.Join(parts, ", ")
}

// Specificity 返回选择器组中最高的CSS优先级,无法解析时为零值
func Specificity(selector string) cascadia.Specificity {
	var max cascadia.Specificity
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return max
	}
	for _, sel := range group {
		if spec := sel.Specificity(); max.Less(spec) {
			max = spec
		}
	}
	return max
}
