package extractor

import (
	"strings"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/andybalholm/cascadia"
)

const rootComponent = 0

// component 结果树中的节点
// 父节点以竞技场下标引用,只用于深度和作用域计算
type component struct {
	id     int
	parent int
	name   string

	// selector 完整作用域后的选择器,根节点为空(整个文档)
	selector  string
	depth     int
	container bool

	// field 挂载到父节点的字段路径
	field    string
	position int

	fields   map[string]interface{}
	groups   map[string]*multiField
	children []int
}

func (c *component) group(name string) *multiField {
	for key, mf := range c.groups {
		if strings.EqualFold(key, name) {
			return mf
		}
	}
	mf := &multiField{name: name}
	c.groups[name] = mf
	return mf
}

// multiField 数组分组,同下标的值属于同一个逻辑条目
type multiField struct {
	name  string
	items []map[string]interface{}

	// scope 条目选择器(multiFieldScopes),为空时按下标对齐
	scope string

	// itemSelectors 已区分的条目元素选择器,首次使用时生成
	itemSelectors []string
	resolved      bool
}

func (mf *multiField) set(index int, prop string, value interface{}) {
	for len(mf.items) <= index {
		mf.items = append(mf.items, map[string]interface{}{})
	}
	mf.items[index][prop] = value
}

func (mf *multiField) has(index int, prop string) bool {
	if index >= len(mf.items) {
		return false
	}
	_, ok := mf.items[index][prop]
	return ok
}

// step 绑定到唯一组件的单选择器提取指令
type step struct {
	id        int
	component int

	// scope 所在作用域, selector = scope + cfg.Selector
	scope    string
	selector string

	cfg  models.ExtractionConfig
	dest destination

	depth       int
	specificity cascadia.Specificity

	processed    bool
	fallbackDone bool
}

// before 排序规则: 深度大者优先,同深度时优先级高者优先
func (s *step) before(other *step) bool {
	if s.depth != other.depth {
		return s.depth > other.depth
	}
	return other.specificity.Less(s.specificity)
}
