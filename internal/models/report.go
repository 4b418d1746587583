package models

import (
	"encoding/json"
	"time"
)

// SkipReason 链接被跳过的原因
type SkipReason string

const (
	SkipAlreadyCrawled SkipReason = "already crawled"
	SkipLimitExceeded  SkipReason = "limit exceeded"
	SkipVetoed         SkipReason = "vetoed"
	SkipRobots         SkipReason = "robots"
)

// RunStats 抓取统计
type RunStats struct {
	PagesVisited    int                `json:"pages_visited"`    // 已导航的页面数
	PagesFailed     int                `json:"pages_failed"`     // 失败的页面数
	PagesCached     int                `json:"pages_cached"`     // 缓存的页面源码数
	EntitiesSaved   int                `json:"entities_saved"`   // 写出的实体数
	EntitiesSkipped int                `json:"entities_skipped"` // 因已存在而跳过的实体数
	LinksEnqueued   int                `json:"links_enqueued"`   // 入队的链接数
	LinksSkipped    map[SkipReason]int `json:"links_skipped"`    // 按原因统计的跳过链接数
	Duration        float64            `json:"duration"`         // 总耗时(秒)
}

// FailedPage 失败页面信息
type FailedPage struct {
	URL       string `json:"url"`
	Operation string `json:"operation"`
	ErrorMsg  string `json:"error_msg"`
}

// RunReport 抓取报告
type RunReport struct {
	RunID      string    `json:"run_id"`
	ConfigFile string    `json:"config_file"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`

	Stats       RunStats     `json:"stats"`
	FailedPages []FailedPage `json:"failed_pages"`

	// 设置快照
	Settings Settings `json:"settings"`

	// Aborted 运行因致命错误或取消而提前结束
	Aborted  bool   `json:"aborted"`
	AbortMsg string `json:"abort_msg,omitempty"`
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
