package models

import "context"

// DOM 提取引擎所需的DOM查询能力
// 所有选择器都是完整作用域后的CSS选择器
type DOM interface {
	// Exists 选择器是否至少匹配一个元素
	Exists(ctx context.Context, selector string) (bool, error)

	// Count 返回匹配元素数
	Count(ctx context.Context, selector string) (int, error)

	// QueryText 按文档顺序返回每个匹配元素的文本
	QueryText(ctx context.Context, selector string) ([]string, error)

	// QueryMarkup 返回每个匹配元素的内部HTML
	QueryMarkup(ctx context.Context, selector string) ([]string, error)

	// QueryAttribute 返回每个具有该属性的匹配元素的属性值
	QueryAttribute(ctx context.Context, selector, name string) ([]string, error)

	// Evaluate 以匹配元素列表为第一个参数执行脚本函数
	Evaluate(ctx context.Context, selector, js string, args ...interface{}) (interface{}, error)

	// AddMarkerClass 为所有匹配元素添加类名
	AddMarkerClass(ctx context.Context, selector, class string) error

	// TagEach 为第 i 个匹配元素添加 classes[i]
	TagEach(ctx context.Context, selector string, classes []string) error

	// Position 第一个匹配元素在文档中的序号,无匹配时返回 -1
	Position(ctx context.Context, selector string) (int, error)
}

// Page 一个可导航的页面句柄
type Page interface {
	DOM

	// URL 当前已加载的地址
	URL() string

	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// PageFactory 创建页面句柄,并在抓取结束时释放底层会话
type PageFactory interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Storage 页面缓存与实体的持久化
type Storage interface {
	PersistPageMarkup(ctx context.Context, url, html string) error
	PersistScreenshot(ctx context.Context, url string, png []byte) error
	PersistEntity(ctx context.Context, entity Entity, entityType, bundle, url string) error
	HasPageMarkup(ctx context.Context, url string) bool
	HasEntity(ctx context.Context, entityType, bundle, url string) bool
	Close() error
}

// EnqueueFilter 入队前的否决钩子
type EnqueueFilter interface {
	AllowEnqueue(ctx context.Context, url string, rule CrawlRule) bool
}

// EnqueueFilterFunc 函数形式的 EnqueueFilter
type EnqueueFilterFunc func(ctx context.Context, url string, rule CrawlRule) bool

// AllowEnqueue 实现 EnqueueFilter
func (f EnqueueFilterFunc) AllowEnqueue(ctx context.Context, url string, rule CrawlRule) bool {
	return f(ctx, url, rule)
}

// EntityAlterer 提取完成后修改实体的钩子
type EntityAlterer interface {
	AlterEntity(ctx context.Context, entity Entity, destination, url string) (Entity, error)
}

// EntityAltererFunc 函数形式的 EntityAlterer
type EntityAltererFunc func(ctx context.Context, entity Entity, destination, url string) (Entity, error)

// AlterEntity 实现 EntityAlterer
func (f EntityAltererFunc) AlterEntity(ctx context.Context, entity Entity, destination, url string) (Entity, error) {
	return f(ctx, entity, destination, url)
}

// CustomExtractor custom:<name> 提取类型的回调
type CustomExtractor interface {
	Extract(ctx context.Context, dom DOM, selector string, cfg ExtractionConfig) (interface{}, error)
}

// CustomExtractorFunc 函数形式的 CustomExtractor
type CustomExtractorFunc func(ctx context.Context, dom DOM, selector string, cfg ExtractionConfig) (interface{}, error)

// Extract 实现 CustomExtractor
func (f CustomExtractorFunc) Extract(ctx context.Context, dom DOM, selector string, cfg ExtractionConfig) (interface{}, error) {
	return f(ctx, dom, selector, cfg)
}

// Hooks 抓取过程中的扩展点
type Hooks struct {
	EnqueueFilter EnqueueFilter
	EntityAlterer EntityAlterer
	Extractors    map[string]CustomExtractor

	// Storage 替换默认存储,为空时按输出配置打开文件或SQLite存储
	// 由调用方负责关闭
	Storage Storage
}
