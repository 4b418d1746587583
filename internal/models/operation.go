package models

// OperationKind 操作类型
type OperationKind string

const (
	OpCrawl   OperationKind = "crawl"   // 按规则发现链接
	OpExtract OperationKind = "extract" // 提取实体
)

// Operation 挂在某个URL下等待执行的操作
type Operation struct {
	Kind OperationKind

	// Rule 仅 crawl 操作使用
	Rule CrawlRule

	// Configs 和 Destination 仅 extract 操作使用
	Configs     []ExtractionConfig
	Destination string

	// Cache 提取前先缓存页面源码
	Cache bool

	// Entry 产生该操作的入口点
	Entry *EntryPoint
}

// NewCrawlOperation 创建链接跟随操作
func NewCrawlOperation(rule CrawlRule, entry *EntryPoint) Operation {
	return Operation{Kind: OpCrawl, Rule: rule, Cache: rule.Cache, Entry: entry}
}

// NewExtractOperation 创建提取操作
func NewExtractOperation(destination string, configs []ExtractionConfig, cache bool, entry *EntryPoint) Operation {
	return Operation{
		Kind:        OpExtract,
		Configs:     configs,
		Destination: destination,
		Cache:       cache,
		Entry:       entry,
	}
}

// Entity 一个页面导出的结构化数据
type Entity map[string]interface{}

// IsEmpty 实体是否没有任何字段
func (e Entity) IsEmpty() bool {
	return len(e) == 0
}
