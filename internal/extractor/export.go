package extractor

import (
	"sort"
	"strings"
)

// export 导出组件的字段
// 子组件按文档顺序追加到各自挂载字段的列表中,空组件被丢弃
func (r *run) export(id int) map[string]interface{} {
	comp := r.comps[id]

	out := make(map[string]interface{}, len(comp.fields))
	for k, v := range comp.fields {
		out[k] = v
	}

	names := make([]string, 0, len(comp.groups))
	for name := range comp.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mf := comp.groups[name]
		items := make([]interface{}, 0, len(mf.items))
		for _, item := range mf.items {
			if len(item) > 0 {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			setPath(out, name, items)
		}
	}

	children := append([]int(nil), comp.children...)
	sort.SliceStable(children, func(i, j int) bool {
		return r.comps[children[i]].position < r.comps[children[j]].position
	})

	var order []string
	lists := map[string][]interface{}{}
	for _, cid := range children {
		props := r.export(cid)
		if len(props) == 0 {
			continue
		}
		child := r.comps[cid]
		if _, ok := lists[child.field]; !ok {
			order = append(order, child.field)
		}
		lists[child.field] = append(lists[child.field], map[string]interface{}{
			"c":     child.name,
			"props": props,
		})
	}
	for _, field := range order {
		setPath(out, field, lists[field])
	}
	return out
}

// setPath 按点分路径写入嵌套map
func setPath(m map[string]interface{}, path string, value interface{}) {
	keys := strings.Split(path, ".")
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}
