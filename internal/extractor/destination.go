package extractor

import "strings"

const componentPrefix = "component."

// destination 解析后的 as 目标
//
//	title                          -> field=title
//	meta.author                    -> field=meta.author
//	component.Button               -> component=Button (分组形式)
//	component.Button.text          -> component=Button field=text
//	component.Grid.items[].title   -> component=Grid group=items prop=title
type destination struct {
	component string
	field     string
	group     string
	prop      string
}

func parseDestination(as string) destination {
	as = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(as), "entity."))

	var d destination
	if rest, ok := strings.CutPrefix(as, componentPrefix); ok {
		name, field, _ := strings.Cut(rest, ".")
		d.component = name
		as = field
	}

	if group, prop, ok := strings.Cut(as, "[]."); ok {
		d.group = group
		d.prop = prop
		return d
	}
	d.field = strings.TrimSuffix(as, "[]")
	return d
}

// isComponent 是否声明了新的组件
func (d destination) isComponent() bool {
	return d.component != ""
}

// fieldSpec 组件内部的字段写法,用于把扁平形式改写为相对目标
func (d destination) fieldSpec() string {
	if d.group != "" {
		return d.group + "[]." + d.prop
	}
	return d.field
}

// relativeTo 去掉与所在组件同名的 component.<Name>. 前缀
func relativeTo(as, component string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(as), "entity.")
	if rest, ok := strings.CutPrefix(trimmed, componentPrefix+component+"."); ok {
		return rest
	}
	return as
}

// prefixField 为非组件目标添加字段前缀
func prefixField(as, prefix string) string {
	if prefix == "" || parseDestination(as).isComponent() {
		return as
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(as), "entity.")
	if trimmed == "" {
		return prefix
	}
	return prefix + "." + trimmed
}
