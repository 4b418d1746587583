package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/schollz/progressbar/v3"
)

// RunReportFile 运行报告文件名
const RunReportFile = "run_report.json"

// Reporter 报告生成器
type Reporter struct {
	reportsDir string
}

// NewReporter 创建报告生成器,报告写入 {outputDir}/reports
func NewReporter(outputDir string) *Reporter {
	return &Reporter{reportsDir: filepath.Join(outputDir, "reports")}
}

// Dir 报告目录
func (r *Reporter) Dir() string {
	return r.reportsDir
}

// GenerateReport 写出运行报告,返回报告路径
func (r *Reporter) GenerateReport(report *models.RunReport) (string, error) {
	if err := os.MkdirAll(r.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	path := filepath.Join(r.reportsDir, RunReportFile)
	if err := r.saveJSONReport(path, report); err != nil {
		return "", err
	}
	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// PrintSummary 输出统计摘要
func PrintSummary(w io.Writer, report *models.RunReport) {
	s := report.Stats
	fmt.Fprintln(w, "\n==================================================")
	fmt.Fprintln(w, "📊 抓取统计")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "✅ 访问页面数: %d\n", s.PagesVisited)
	fmt.Fprintf(w, "✅ 写出实体数: %d\n", s.EntitiesSaved)
	fmt.Fprintf(w, "✅ 缓存页面数: %d\n", s.PagesCached)
	fmt.Fprintf(w, "✅ 入队链接数: %d\n", s.LinksEnqueued)
	fmt.Fprintf(w, "⏭️  已存在跳过的实体: %d\n", s.EntitiesSkipped)

	reasons := make([]string, 0, len(s.LinksSkipped))
	for reason := range s.LinksSkipped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "⏭️  跳过链接 (%s): %d\n", reason, s.LinksSkipped[models.SkipReason(reason)])
	}

	fmt.Fprintf(w, "❌ 失败页面: %d\n", s.PagesFailed)
	fmt.Fprintf(w, "⏱️  总耗时: %.2f秒\n", s.Duration)
	if report.Aborted {
		fmt.Fprintf(w, "⚠️  抓取提前终止: %s\n", report.AbortMsg)
	}
	fmt.Fprintln(w, "==================================================")
}

// NewProgressBar 创建进度条, max 为 -1 时显示为不确定进度
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
