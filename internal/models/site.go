package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gobwas/glob"
)

// RecursionMarker 作为 CrawlRule.To 时,发现的链接被当作新的入口点(分页式跟随)
const RecursionMarker = "@self"

// DefaultContainerType 默认的容器类型名,同时也是站点配置中保留的组件列表键
const DefaultContainerType = "components"

// ExtractKind 提取类型
type ExtractKind int

const (
	KindUnknown ExtractKind = iota
	KindText
	KindTextSingle
	KindMarkup
	KindAttribute
	KindCustom
	KindComponents
	KindGroup
)

// String 返回提取类型的配置名称
func (k ExtractKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTextSingle:
		return "text-single"
	case KindMarkup:
		return "markup"
	case KindAttribute:
		return "attribute"
	case KindCustom:
		return "custom"
	case KindComponents:
		return "components"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// ExtractionConfig 声明式字段映射配置
type ExtractionConfig struct {
	Selector         string            `mapstructure:"selector" json:"selector,omitempty"`
	Extract          interface{}       `mapstructure:"extract" json:"extract,omitempty"`
	As               string            `mapstructure:"as" json:"as,omitempty"`
	Fallback         *ExtractionConfig `mapstructure:"fallback" json:"fallback,omitempty"`
	MultiFieldScopes map[string]string `mapstructure:"multiFieldScopes" json:"multiFieldScopes,omitempty"`
	Delimiter        string            `mapstructure:"delimiter" json:"delimiter,omitempty"`

	// 以下字段由 Normalize 根据 Extract 填充
	Kind      ExtractKind        `mapstructure:"-" json:"-"`
	Attribute string             `mapstructure:"-" json:"-"`
	Callback  string             `mapstructure:"-" json:"-"`
	Container string             `mapstructure:"-" json:"-"`
	Children  []ExtractionConfig `mapstructure:"-" json:"-"`
}

// Normalize 解析 Extract 字段,递归处理子配置和 fallback
func (c *ExtractionConfig) Normalize(containerTypes []string) error {
	if c.Kind != KindUnknown {
		return nil
	}

	switch raw := c.Extract.(type) {
	case string:
		if err := c.parseKind(strings.TrimSpace(raw), containerTypes); err != nil {
			return err
		}
	case []ExtractionConfig:
		c.Kind = KindGroup
		c.Children = append([]ExtractionConfig(nil), raw...)
	case []interface{}:
		c.Kind = KindGroup
		c.Children = make([]ExtractionConfig, 0, len(raw))
		for i, item := range raw {
			sub, err := decodeExtractionConfig(item)
			if err != nil {
				return &ConfigError{Scope: fmt.Sprintf("%s.extract[%d]", c.scopeName(), i), Reason: "子配置无法解析", Cause: err}
			}
			c.Children = append(c.Children, sub)
		}
	case nil:
		return &ConfigError{Scope: c.scopeName(), Reason: "缺少 extract"}
	default:
		return &ConfigError{Scope: c.scopeName(), Reason: fmt.Sprintf("不支持的 extract 类型 %T", raw)}
	}

	for i := range c.Children {
		if err := c.Children[i].Normalize(containerTypes); err != nil {
			return err
		}
	}
	if c.Fallback != nil {
		fb := *c.Fallback
		c.Fallback = &fb
		// fallback 未声明的字段沿用主配置
		if c.Fallback.Extract == nil {
			c.Fallback.Extract = c.Extract
		}
		if c.Fallback.As == "" {
			c.Fallback.As = c.As
		}
		if err := c.Fallback.Normalize(containerTypes); err != nil {
			return err
		}
	}
	return nil
}

func (c *ExtractionConfig) parseKind(kind string, containerTypes []string) error {
	name, arg, hasArg := strings.Cut(kind, ":")
	switch {
	case kind == "text":
		c.Kind = KindText
	case kind == "text-single":
		c.Kind = KindTextSingle
	case kind == "markup" || kind == "html":
		c.Kind = KindMarkup
	case hasArg && (name == "attribute" || name == "attr"):
		if arg == "" {
			return &ConfigError{Scope: c.scopeName(), Reason: "attribute 缺少属性名"}
		}
		c.Kind = KindAttribute
		c.Attribute = arg
	case hasArg && name == "custom":
		if arg == "" {
			return &ConfigError{Scope: c.scopeName(), Reason: "custom 缺少回调名"}
		}
		c.Kind = KindCustom
		c.Callback = arg
	default:
		for _, t := range containerTypes {
			if kind == t {
				c.Kind = KindComponents
				c.Container = t
				return nil
			}
		}
		return &ConfigError{Scope: c.scopeName(), Reason: fmt.Sprintf("未知的提取类型 %q", kind)}
	}
	return nil
}

func (c *ExtractionConfig) scopeName() string {
	if c.As != "" {
		return c.As
	}
	if c.Selector != "" {
		return c.Selector
	}
	return "extract"
}

func decodeExtractionConfig(item interface{}) (ExtractionConfig, error) {
	if cfg, ok := item.(ExtractionConfig); ok {
		return cfg, nil
	}
	var cfg ExtractionConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(item); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NormalizeConfigs 规范化一组配置
func NormalizeConfigs(configs []ExtractionConfig, containerTypes []string) error {
	for i := range configs {
		if err := configs[i].Normalize(containerTypes); err != nil {
			return err
		}
	}
	return nil
}

// CrawlRule 链接跟随规则
type CrawlRule struct {
	Selector string `mapstructure:"selector" json:"selector"`
	To       string `mapstructure:"to" json:"to"`
	Cache    bool   `mapstructure:"cache" json:"cache,omitempty"`

	// MaxPagesToCrawl 同一 (to, selector) 组合最多展开的链接数, <=0 表示不限制
	MaxPagesToCrawl int `mapstructure:"maxPagesToCrawl" json:"maxPagesToCrawl,omitempty"`
}

// LimitID 爬取限制计数器的键
func (r CrawlRule) LimitID() string {
	return r.To + "::" + r.Selector
}

// Recurses 规则是否把发现的链接作为新的入口点
func (r CrawlRule) Recurses() bool {
	return r.To == RecursionMarker
}

// EntryPoint 抓取入口点
type EntryPoint struct {
	URL     string             `mapstructure:"url" json:"url"`
	Follow  []CrawlRule        `mapstructure:"follow" json:"follow,omitempty"`
	Extract []ExtractionConfig `mapstructure:"extract" json:"extract,omitempty"`
	To      string             `mapstructure:"to" json:"to,omitempty"`
	Cache   bool               `mapstructure:"cache" json:"cache,omitempty"`
}

// WithURL 返回替换了URL的入口点副本
func (e EntryPoint) WithURL(u string) EntryPoint {
	e.URL = u
	return e
}

// Settings 站点级抓取设置
type Settings struct {
	MaxParallelPages          int               `mapstructure:"maxParallelPages" json:"maxParallelPages"`
	CrawlDelay                []int             `mapstructure:"crawlDelay" json:"crawlDelay"`
	MaxExtractionNestingDepth int               `mapstructure:"maxExtractionNestingDepth" json:"maxExtractionNestingDepth"`
	PlainTextRemoveBreaks     bool              `mapstructure:"plainTextRemoveBreaks" json:"plainTextRemoveBreaks"`
	PlainTextSeparator        string            `mapstructure:"plainTextSeparator" json:"plainTextSeparator"`
	MinifyExtractedHTML       bool              `mapstructure:"minifyExtractedHtml" json:"minifyExtractedHtml"`
	CacheWithScreenshot       bool              `mapstructure:"cacheWithScreenshot" json:"cacheWithScreenshot"`
	CacheSkipExisting         bool              `mapstructure:"cacheSkipExisiting" json:"cacheSkipExisiting"`
	OutputSkipExisting        bool              `mapstructure:"outputSkipExisiting" json:"outputSkipExisiting"`
	ContainerTypes            []string          `mapstructure:"containerTypes" json:"containerTypes"`
	PageTimeout               time.Duration     `mapstructure:"pageTimeout" json:"pageTimeout"`
	MaxRequestsPerSecond      float64           `mapstructure:"maxRequestsPerSecond" json:"maxRequestsPerSecond"`
	RespectRobotsTxt          bool              `mapstructure:"respectRobotsTxt" json:"respectRobotsTxt"`
	Browser                   string            `mapstructure:"browser" json:"browser"`
	Headless                  bool              `mapstructure:"headless" json:"headless"`
	Headers                   map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// DefaultSettings 返回默认设置
func DefaultSettings() Settings {
	return Settings{
		MaxParallelPages:          4,
		CrawlDelay:                []int{500, 2500},
		MaxExtractionNestingDepth: 9,
		PlainTextSeparator:        " ",
		ContainerTypes:            []string{DefaultContainerType},
		PageTimeout:               60 * time.Second,
		Browser:                   "rod",
		Headless:                  true,
		Headers:                   map[string]string{},
	}
}

// DelayRange 返回抓取延迟区间
func (s Settings) DelayRange() (min, max time.Duration) {
	if len(s.CrawlDelay) != 2 {
		return 0, 0
	}
	return time.Duration(s.CrawlDelay[0]) * time.Millisecond, time.Duration(s.CrawlDelay[1]) * time.Millisecond
}

// Validate 验证设置
func (s Settings) Validate() error {
	var errs []error
	if s.MaxParallelPages < 1 {
		errs = append(errs, &ConfigError{Scope: "settings.maxParallelPages", Reason: "必须大于0"})
	}
	if len(s.CrawlDelay) != 2 {
		errs = append(errs, &ConfigError{Scope: "settings.crawlDelay", Reason: "必须是 [min, max] 两个毫秒值"})
	} else if s.CrawlDelay[0] < 0 || s.CrawlDelay[0] > s.CrawlDelay[1] {
		errs = append(errs, &ConfigError{Scope: "settings.crawlDelay", Reason: "要求 0 <= min <= max"})
	}
	if s.MaxExtractionNestingDepth < 0 {
		errs = append(errs, &ConfigError{Scope: "settings.maxExtractionNestingDepth", Reason: "不能为负数"})
	}
	if len(s.ContainerTypes) == 0 {
		errs = append(errs, &ConfigError{Scope: "settings.containerTypes", Reason: "至少需要一个容器类型"})
	}
	if s.MaxRequestsPerSecond < 0 {
		errs = append(errs, &ConfigError{Scope: "settings.maxRequestsPerSecond", Reason: "不能为负数"})
	}
	switch s.Browser {
	case "rod", "static":
	default:
		errs = append(errs, &ConfigError{Scope: "settings.browser", Reason: fmt.Sprintf("未知的页面驱动 %q (可选 rod, static)", s.Browser)})
	}
	return errors.Join(errs...)
}

// SiteConfig 站点抓取配置
type SiteConfig struct {
	EntryPoints  []EntryPoint                  `mapstructure:"entryPoints" json:"entryPoints"`
	Destinations map[string][]ExtractionConfig `mapstructure:"destinations" json:"destinations,omitempty"`
	Components   []ExtractionConfig            `mapstructure:"components" json:"components,omitempty"`
	Settings     Settings                      `mapstructure:"settings" json:"settings"`
}

// Normalize 规范化站点中所有提取配置
func (c *SiteConfig) Normalize() error {
	types := c.Settings.ContainerTypes
	for i := range c.EntryPoints {
		if err := NormalizeConfigs(c.EntryPoints[i].Extract, types); err != nil {
			return err
		}
	}
	for name, list := range c.Destinations {
		if err := NormalizeConfigs(list, types); err != nil {
			return fmt.Errorf("目标 %s: %w", name, err)
		}
	}
	return NormalizeConfigs(c.Components, types)
}

// Validate 验证站点配置,返回全部配置错误
func (c *SiteConfig) Validate() error {
	var errs []error
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.EntryPoints) == 0 {
		errs = append(errs, &ConfigError{Scope: "entryPoints", Reason: "至少需要一个入口点"})
	}
	for i, entry := range c.EntryPoints {
		if err := c.ValidateEntryPoint(entry); err != nil {
			errs = append(errs, fmt.Errorf("entryPoints[%d]: %w", i, err))
		}
	}
	for pattern := range c.Destinations {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, &ConfigError{Scope: "destinations." + pattern, Reason: "通配符无效", Cause: err})
		}
	}
	if len(errs) == 0 {
		if err := c.Normalize(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateEntryPoint 验证单个入口点,递归入口点展开时同样使用
func (c *SiteConfig) ValidateEntryPoint(entry EntryPoint) error {
	if entry.URL == "" {
		return &ConfigError{Scope: "url", Reason: "入口点缺少URL"}
	}
	if err := ValidateURL(entry.URL); err != nil {
		return &ConfigError{Scope: "url", Reason: "入口点URL无效", Cause: err}
	}
	if len(entry.Follow) == 0 && len(entry.Extract) == 0 {
		return &ConfigError{Scope: entry.URL, Reason: "入口点缺少 follow 或 extract 规则"}
	}
	if len(entry.Extract) > 0 && entry.To == "" {
		return &ConfigError{Scope: entry.URL, Reason: "extract 规则缺少目标 to"}
	}
	for i, rule := range entry.Follow {
		scope := fmt.Sprintf("%s follow[%d]", entry.URL, i)
		if rule.Selector == "" {
			return &ConfigError{Scope: scope, Reason: "缺少 selector"}
		}
		if rule.To == "" {
			return &ConfigError{Scope: scope, Reason: "缺少目标 to"}
		}
		if !rule.Recurses() {
			if _, ok := c.ResolveDestination(rule.To); !ok {
				return &ConfigError{Scope: scope, Reason: fmt.Sprintf("未定义的目标 %q", rule.To)}
			}
		}
	}
	return nil
}

// ResolveDestination 按名称查找目标的提取配置
// 先精确匹配,再按通配符匹配,较长的模式优先
func (c *SiteConfig) ResolveDestination(name string) ([]ExtractionConfig, bool) {
	if list, ok := c.Destinations[name]; ok {
		return list, true
	}

	patterns := make([]string, 0, len(c.Destinations))
	for pattern := range c.Destinations {
		if strings.ContainsAny(pattern, "*?[{") {
			patterns = append(patterns, pattern)
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			continue
		}
		if g.Match(name) {
			return c.Destinations[pattern], true
		}
	}
	return nil, false
}

// ContainerConfigs 返回容器类型对应的组件配置列表
// 默认类型使用保留的 components 键,其余类型优先查找同名目标
func (c *SiteConfig) ContainerConfigs(containerType string) []ExtractionConfig {
	if containerType != DefaultContainerType {
		if list, ok := c.Destinations[containerType]; ok {
			return list
		}
	}
	return c.Components
}
