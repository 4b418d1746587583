package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// process 执行单个步骤,重复调用不会重复写入
func (r *run) process(ctx context.Context, st *step) error {
	if st.processed {
		return nil
	}
	st.processed = true

	comp := r.comps[st.component]
	switch {
	case st.cfg.Kind == models.KindComponents:
		// 子组件在导出时聚合,这里只标记容器元素
		return r.mark(ctx, st.selector)
	case st.dest.group != "":
		return r.processMultiField(ctx, st, comp)
	}

	query := excludeMarked(st.selector, MarkerClass)
	value, ok, err := r.evaluate(ctx, st.cfg, query)
	if err != nil {
		return err
	}
	if !ok && st.cfg.Fallback != nil {
		fb := *st.cfg.Fallback
		query = excludeMarked(scopedOrRoot(st.scope, fb.Selector), MarkerClass)
		if value, ok, err = r.evaluate(ctx, fb, query); err != nil {
			return err
		}
	}
	if !ok {
		log.Debug().Str("selector", st.selector).Str("field", st.dest.field).Msg("步骤无结果,省略字段")
		return nil
	}

	setPath(comp.fields, st.dest.field, value)
	return r.mark(ctx, query)
}

// processMultiField 数组分组步骤
// 无条目作用域时按匹配下标对齐;有条目作用域时逐个条目查询并单独尝试 fallback
func (r *run) processMultiField(ctx context.Context, st *step, comp *component) error {
	mf := comp.group(st.dest.group)

	if mf.scope == "" {
		query := excludeMarked(st.selector, MarkerClass)
		values, err := r.evaluateEach(ctx, st.cfg, query)
		if err != nil || len(values) == 0 {
			return err
		}
		for i, v := range values {
			mf.set(i, st.dest.prop, v)
		}
		return r.mark(ctx, query)
	}

	items, err := r.resolveItems(ctx, comp, mf)
	if err != nil {
		return err
	}
	for i, item := range items {
		query := excludeMarked(scopeSelector(item, st.cfg.Selector), MarkerClass)
		values, err := r.evaluateEach(ctx, st.cfg, query)
		if err != nil {
			return err
		}
		if len(values) == 0 && st.cfg.Fallback != nil {
			fb := *st.cfg.Fallback
			query = excludeMarked(scopeSelector(item, fb.Selector), MarkerClass)
			if values, err = r.evaluateEach(ctx, fb, query); err != nil {
				return err
			}
		}
		if len(values) == 0 {
			continue
		}
		mf.set(i, st.dest.prop, collapse(values))
		if err := r.mark(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// resolveItems 首次使用时为条目元素打上生成的类名
func (r *run) resolveItems(ctx context.Context, comp *component, mf *multiField) ([]string, error) {
	if mf.resolved {
		return mf.itemSelectors, nil
	}
	mf.resolved = true

	sel := scopedOrRoot(comp.selector, mf.scope)
	n, err := r.dom.Count(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("查询条目 %q 失败: %w", sel, err)
	}
	if n == 0 {
		return nil, nil
	}

	classes := make([]string, n)
	mf.itemSelectors = make([]string, n)
	for i := range classes {
		classes[i] = newGeneratedClass()
		mf.itemSelectors[i] = "." + classes[i]
	}
	if err := r.dom.TagEach(ctx, sel, classes); err != nil {
		return nil, fmt.Errorf("区分条目 %q 失败: %w", sel, err)
	}
	return mf.itemSelectors, nil
}

// applyMultiFieldFallbacks 主流程结束后,为缺少属性的条目按下标尝试 fallback
func (r *run) applyMultiFieldFallbacks(ctx context.Context) error {
	for _, st := range r.steps {
		if st.dest.group == "" || st.cfg.Fallback == nil || st.fallbackDone {
			continue
		}
		st.fallbackDone = true

		mf := r.comps[st.component].group(st.dest.group)
		if mf.scope != "" {
			continue
		}
		var missing []int
		for i := range mf.items {
			if !mf.has(i, st.dest.prop) {
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 {
			continue
		}

		fb := *st.cfg.Fallback
		query := excludeMarked(scopedOrRoot(st.scope, fb.Selector), MarkerClass)
		values, err := r.evaluateEach(ctx, fb, query)
		if err != nil {
			return err
		}
		filled := 0
		for _, i := range missing {
			if i < len(values) {
				mf.set(i, st.dest.prop, values[i])
				filled++
			}
		}
		if filled > 0 {
			if err := r.mark(ctx, query); err != nil {
				return err
			}
		}
	}
	return nil
}

// evaluate 按提取类型查询值;单个匹配返回标量,多个返回列表
func (r *run) evaluate(ctx context.Context, cfg models.ExtractionConfig, query string) (interface{}, bool, error) {
	switch cfg.Kind {
	case models.KindTextSingle:
		values, err := r.texts(ctx, query)
		if err != nil || len(values) == 0 {
			return nil, false, err
		}
		return strings.Join(values, r.separator(cfg)), true, nil
	case models.KindCustom:
		return r.custom(ctx, cfg, query)
	}

	values, err := r.evaluateEach(ctx, cfg, query)
	if err != nil || len(values) == 0 {
		return nil, false, err
	}
	return collapse(values), true, nil
}

// evaluateEach 每个匹配元素返回一个值
func (r *run) evaluateEach(ctx context.Context, cfg models.ExtractionConfig, query string) ([]interface{}, error) {
	var (
		values []string
		err    error
	)
	switch cfg.Kind {
	case models.KindText, models.KindTextSingle:
		values, err = r.texts(ctx, query)
	case models.KindMarkup:
		values, err = r.markups(ctx, query)
	case models.KindAttribute:
		values, err = r.dom.QueryAttribute(ctx, query, cfg.Attribute)
		if err != nil {
			err = fmt.Errorf("查询属性 %s [%s] 失败: %w", cfg.Attribute, query, err)
		}
	case models.KindCustom:
		v, ok, err := r.custom(ctx, cfg, query)
		if err != nil || !ok {
			return nil, err
		}
		if list, isList := v.([]interface{}); isList {
			return list, nil
		}
		return []interface{}{v}, nil
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out, nil
}

func (r *run) texts(ctx context.Context, query string) ([]string, error) {
	values, err := r.dom.QueryText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询文本 [%s] 失败: %w", query, err)
	}
	if r.engine.opts.PlainTextRemoveBreaks {
		for i, v := range values {
			values[i] = strings.Join(strings.Fields(v), " ")
		}
	}
	return values, nil
}

func (r *run) markups(ctx context.Context, query string) ([]string, error) {
	values, err := r.dom.QueryMarkup(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询HTML [%s] 失败: %w", query, err)
	}
	for i, v := range values {
		cleaned, err := cleanMarkup(v, r.engine.opts.MinifyHTML)
		if err != nil {
			return nil, err
		}
		values[i] = cleaned
	}
	return values, nil
}

// custom 调用已注册的自定义提取器,未注册属于扩展约定错误
func (r *run) custom(ctx context.Context, cfg models.ExtractionConfig, query string) (interface{}, bool, error) {
	extractor, ok := r.engine.opts.Extractors[cfg.Callback]
	if !ok {
		return nil, false, &models.ContractViolation{
			Callback: cfg.Callback,
			Selector: query,
			Reason:   "没有注册对应的自定义提取器",
		}
	}

	n, err := r.dom.Count(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("查询 %q 失败: %w", query, err)
	}
	if n == 0 {
		return nil, false, nil
	}

	v, err := extractor.Extract(ctx, r.dom, query, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("自定义提取器 %s 失败: %w", cfg.Callback, err)
	}
	return v, v != nil, nil
}

func (r *run) separator(cfg models.ExtractionConfig) string {
	if cfg.Delimiter != "" {
		return cfg.Delimiter
	}
	return r.engine.opts.PlainTextSeparator
}

func collapse(values []interface{}) interface{} {
	if len(values) == 1 {
		return values[0]
	}
	return values
}
