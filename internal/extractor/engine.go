// Package extractor 把声明式字段映射配置转换为页面实体
//
// 每次提取在页面上构建一棵组件树:
//  1. build: 深度优先遍历配置,先建组件再建步骤,选择器逐层加上父作用域前缀
//  2. 同一组件选择器匹配多个元素时,为每个元素打上生成的类名并分别构建(区分);
//     数组形式 component.<Name>.<group>[].<prop> 不区分,同作用域的同名配置合并为一个组件
//  3. 容器类型步骤(默认 components)在深度+1处递归构建,超过最大深度时静默截断
//  4. 步骤按深度降序、选择器优先级降序执行,执行后给匹配元素加标记类,
//     之后的步骤查询时排除已标记元素
//  5. export: 遍历组件树导出实体
package extractor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// MarkerClass 已提取元素的标记类
	MarkerClass = "compcrawl-extracted"

	// generatedClassPrefix 区分用类名前缀,导出HTML时与标记类一起清除
	generatedClassPrefix = "compcrawl-"

	// rootSelector 根作用域(整个文档)
	rootSelector = ":root"
)

// Options 提取引擎选项
type Options struct {
	// MaxDepth 容器类型递归的最大层数
	MaxDepth int

	ContainerTypes []string

	// ContainerConfigs 返回容器类型对应的组件配置
	ContainerConfigs func(containerType string) []models.ExtractionConfig

	PlainTextRemoveBreaks bool
	PlainTextSeparator    string
	MinifyHTML            bool

	// Extractors custom:<name> 的回调注册表
	Extractors map[string]models.CustomExtractor
}

// OptionsFromSite 从站点配置构建选项
func OptionsFromSite(site *models.SiteConfig, extractors map[string]models.CustomExtractor) Options {
	s := site.Settings
	return Options{
		MaxDepth:              s.MaxExtractionNestingDepth,
		ContainerTypes:        s.ContainerTypes,
		ContainerConfigs:      site.ContainerConfigs,
		PlainTextRemoveBreaks: s.PlainTextRemoveBreaks,
		PlainTextSeparator:    s.PlainTextSeparator,
		MinifyHTML:            s.MinifyExtractedHTML,
		Extractors:            extractors,
	}
}

// Engine 提取引擎,可被多个页面并发使用,每次提取的状态相互独立
type Engine struct {
	opts Options
}

// New 创建提取引擎
func New(opts Options) *Engine {
	if len(opts.ContainerTypes) == 0 {
		opts.ContainerTypes = []string{models.DefaultContainerType}
	}
	if opts.Extractors == nil {
		opts.Extractors = map[string]models.CustomExtractor{}
	}
	return &Engine{opts: opts}
}

// Extract 在页面上执行一组提取配置,返回导出的实体
func (e *Engine) Extract(ctx context.Context, dom models.DOM, configs []models.ExtractionConfig) (models.Entity, error) {
	cfgs, err := e.normalized(configs)
	if err != nil {
		return nil, err
	}

	r := newRun(e, dom)
	if err := r.build(ctx, cfgs, rootComponent, "", 0, models.DefaultContainerType); err != nil {
		return nil, err
	}
	r.order()

	for _, st := range r.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.process(ctx, st); err != nil {
			return nil, err
		}
	}
	if err := r.applyMultiFieldFallbacks(ctx); err != nil {
		return nil, err
	}

	log.Debug().
		Int("components", len(r.comps)-1).
		Int("steps", len(r.steps)).
		Msg("页面提取完成")
	return models.Entity(r.export(rootComponent)), nil
}

func (e *Engine) normalized(configs []models.ExtractionConfig) ([]models.ExtractionConfig, error) {
	cfgs := append([]models.ExtractionConfig(nil), configs...)
	if err := models.NormalizeConfigs(cfgs, e.opts.ContainerTypes); err != nil {
		return nil, err
	}
	return cfgs, nil
}

func (e *Engine) containerConfigs(containerType string) ([]models.ExtractionConfig, error) {
	if e.opts.ContainerConfigs == nil {
		return nil, nil
	}
	return e.normalized(e.opts.ContainerConfigs(containerType))
}

// run 单个页面的一次提取
type run struct {
	engine *Engine
	dom    models.DOM

	comps []*component
	steps []*step

	// shared 扁平数组形式按 (父节点, 挂载字段, 组件名, 作用域) 共用的组件
	shared map[string]int
}

func newRun(e *Engine, dom models.DOM) *run {
	root := &component{
		id:       rootComponent,
		parent:   -1,
		position: -1,
		fields:   map[string]interface{}{},
		groups:   map[string]*multiField{},
	}
	return &run{engine: e, dom: dom, comps: []*component{root}, shared: map[string]int{}}
}

// build 深度优先遍历配置列表
// attach 为新组件挂载到父组件的字段
func (r *run) build(ctx context.Context, configs []models.ExtractionConfig, parent int, scope string, level int, attach string) error {
	for _, cfg := range configs {
		dest := parseDestination(cfg.As)

		var err error
		switch {
		case dest.isComponent():
			err = r.addComponent(ctx, cfg, parent, scope, level, attach)
		case cfg.Kind == models.KindGroup:
			err = r.addGroup(ctx, cfg, parent, scope, level, attach)
		default:
			err = r.addStep(ctx, cfg, parent, scope, level)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// admit 检查配置在作用域内是否有匹配,没有时依次尝试 fallback
// 返回实际采用的配置、完整选择器和匹配数;全部未匹配时返回 ErrSelectorMiss
func (r *run) admit(ctx context.Context, cfg models.ExtractionConfig, scope string) (models.ExtractionConfig, string, int, error) {
	for c := &cfg; c != nil; c = c.Fallback {
		sel := scopedOrRoot(scope, c.Selector)
		n, err := r.dom.Count(ctx, sel)
		if err != nil {
			return *c, "", 0, fmt.Errorf("查询 %q 失败: %w", sel, err)
		}
		if n > 0 {
			return *c, sel, n, nil
		}
		log.Debug().Str("selector", sel).Str("as", c.As).Msg("选择器未匹配")
	}
	return cfg, "", 0, fmt.Errorf("%w: %s", models.ErrSelectorMiss, scopedOrRoot(scope, cfg.Selector))
}

// omitMiss 未匹配的配置直接省略,不向上返回
func omitMiss(err error) error {
	if errors.Is(err, models.ErrSelectorMiss) {
		return nil
	}
	return err
}

// addGroup 普通分组: 子配置限定在分组选择器下,字段加上分组前缀
func (r *run) addGroup(ctx context.Context, cfg models.ExtractionConfig, parent int, scope string, level int, attach string) error {
	c, sel, _, err := r.admit(ctx, cfg, scope)
	if err != nil {
		return omitMiss(err)
	}
	if c.Kind != models.KindGroup || parseDestination(c.As).isComponent() {
		c.Fallback = nil
		return r.build(ctx, []models.ExtractionConfig{c}, parent, scope, level, attach)
	}

	prefix := parseDestination(c.As).field
	children := make([]models.ExtractionConfig, len(c.Children))
	for i, child := range c.Children {
		children[i] = rewriteAs(child, func(as string) string { return prefixField(as, prefix) })
	}
	return r.build(ctx, children, parent, sel, level, attach)
}

// addComponent 创建组件,匹配多个元素时逐个区分
func (r *run) addComponent(ctx context.Context, cfg models.ExtractionConfig, parent int, scope string, level int, attach string) error {
	c, sel, n, err := r.admit(ctx, cfg, scope)
	if err != nil {
		return omitMiss(err)
	}

	dest := parseDestination(c.As)
	if !dest.isComponent() {
		dest.component = parseDestination(cfg.As).component
	}
	if dest.group != "" {
		return r.addMultiFieldMember(ctx, c, dest, parent, scope, level, attach)
	}

	selectors := []string{sel}
	if n > 1 {
		classes := make([]string, n)
		selectors = make([]string, n)
		for i := range classes {
			classes[i] = newGeneratedClass()
			selectors[i] = "." + classes[i]
		}
		if err := r.dom.TagEach(ctx, sel, classes); err != nil {
			return fmt.Errorf("区分组件 %s 失败: %w", dest.component, err)
		}
		log.Debug().Str("component", dest.component).Int("count", n).Msg("组件匹配多个元素,逐个区分")
	}

	for _, s := range selectors {
		id, err := r.newComponent(ctx, dest.component, s, parent, attach, c)
		if err != nil {
			return err
		}

		// 分组形式: component.<Name> + 子配置列表
		if dest.field == "" && c.Kind == models.KindGroup {
			children := make([]models.ExtractionConfig, len(c.Children))
			for i, child := range c.Children {
				name := dest.component
				children[i] = rewriteAs(child, func(as string) string { return relativeTo(as, name) })
			}
			if err := r.build(ctx, children, id, s, level, models.DefaultContainerType); err != nil {
				return err
			}
			continue
		}

		// 扁平形式: component.<Name>.<field>, 步骤作用在组件元素本身
		spec := dest.fieldSpec()
		if spec == "" {
			spec = defaultField(c)
		}
		inner := c
		inner.Selector = ""
		inner.As = spec
		inner.Fallback = nil
		if err := r.build(ctx, []models.ExtractionConfig{inner}, id, s, level, models.DefaultContainerType); err != nil {
			return err
		}
	}
	return nil
}

// addMultiFieldMember 扁平数组形式: component.<Name>.<group>[].<prop>
// 组件元素为当前作用域,同一作用域下的同名配置合并到一个组件,
// 各配置的匹配元素按下标对齐为条目,不做区分
func (r *run) addMultiFieldMember(ctx context.Context, c models.ExtractionConfig, dest destination, parent int, scope string, level int, attach string) error {
	sel := scopedOrRoot(scope, "")
	key := componentKey(parent, attach, dest.component, sel)

	id, ok := r.shared[key]
	if !ok {
		var err error
		if id, err = r.newComponent(ctx, dest.component, sel, parent, attach, c); err != nil {
			return err
		}
		r.shared[key] = id
	}

	inner := rewriteAs(c, func(string) string { return dest.fieldSpec() })
	return r.build(ctx, []models.ExtractionConfig{inner}, id, sel, level, models.DefaultContainerType)
}

func componentKey(parent int, attach, name, selector string) string {
	return fmt.Sprintf("%d|%s|%s|%s", parent, attach, name, selector)
}

func (r *run) newComponent(ctx context.Context, name, selector string, parent int, attach string, cfg models.ExtractionConfig) (int, error) {
	pos, err := r.dom.Position(ctx, selector)
	if err != nil {
		return 0, fmt.Errorf("定位组件 %s 失败: %w", name, err)
	}

	comp := &component{
		id:       len(r.comps),
		parent:   parent,
		name:     name,
		selector: selector,
		depth:    r.comps[parent].depth + 1,
		field:    attach,
		position: pos,
		fields:   map[string]interface{}{},
		groups:   map[string]*multiField{},
	}
	for group, itemSelector := range cfg.MultiFieldScopes {
		comp.group(group).scope = itemSelector
	}

	r.comps = append(r.comps, comp)
	r.comps[parent].children = append(r.comps[parent].children, comp.id)
	return comp.id, nil
}

// addStep 创建步骤;容器类型步骤触发下一层递归
func (r *run) addStep(ctx context.Context, cfg models.ExtractionConfig, owner int, scope string, level int) error {
	c, sel, _, err := r.admit(ctx, cfg, scope)
	if err != nil {
		return omitMiss(err)
	}
	if c.Kind == models.KindGroup || parseDestination(c.As).isComponent() {
		c.Fallback = nil
		return r.build(ctx, []models.ExtractionConfig{c}, owner, scope, level, models.DefaultContainerType)
	}

	dest := parseDestination(c.As)
	if dest.field == "" && dest.group == "" {
		if c.Kind != models.KindComponents {
			log.Warn().Str("selector", sel).Msg("提取配置缺少 as,已忽略")
			return nil
		}
		dest.field = c.Container
	}

	comp := r.comps[owner]
	st := &step{
		id:          len(r.steps),
		component:   owner,
		scope:       scope,
		selector:    sel,
		cfg:         c,
		dest:        dest,
		depth:       comp.depth,
		specificity: Specificity(sel),
	}
	r.steps = append(r.steps, st)

	if dest.group != "" {
		mf := comp.group(dest.group)
		for group, itemSelector := range c.MultiFieldScopes {
			if strings.EqualFold(group, dest.group) {
				mf.scope = itemSelector
			}
		}
	}

	if c.Kind != models.KindComponents {
		return nil
	}
	comp.container = true
	if level+1 > r.engine.opts.MaxDepth {
		log.Debug().Str("selector", sel).Int("depth", level+1).Msg("达到最大嵌套深度,停止展开")
		return nil
	}
	nested, err := r.engine.containerConfigs(c.Container)
	if err != nil {
		return err
	}
	return r.build(ctx, nested, owner, sel, level+1, dest.field)
}

// order 深度降序,同深度按选择器优先级降序,其余保持构建顺序
func (r *run) order() {
	sort.SliceStable(r.steps, func(i, j int) bool {
		return r.steps[i].before(r.steps[j])
	})
}

func (r *run) mark(ctx context.Context, selector string) error {
	if err := r.dom.AddMarkerClass(ctx, selector, MarkerClass); err != nil {
		return fmt.Errorf("标记元素失败 [%s]: %w", selector, err)
	}
	return nil
}

func scopedOrRoot(scope, selector string) string {
	if sel := scopeSelector(scope, selector); sel != "" {
		return sel
	}
	return rootSelector
}

func newGeneratedClass() string {
	return generatedClassPrefix + uuid.NewString()
}

func defaultField(cfg models.ExtractionConfig) string {
	if cfg.Kind == models.KindComponents {
		return cfg.Container
	}
	return "value"
}

// rewriteAs 复制配置并改写 as,包括 fallback 链
func rewriteAs(cfg models.ExtractionConfig, fn func(string) string) models.ExtractionConfig {
	cfg.As = fn(cfg.As)
	if cfg.Fallback != nil {
		fb := rewriteAs(*cfg.Fallback, fn)
		cfg.Fallback = &fb
	}
	return cfg
}
