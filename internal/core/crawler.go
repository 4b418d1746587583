package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/CompCrawl/internal/browser"
	"github.com/RecoveryAshes/CompCrawl/internal/crawlers"
	"github.com/RecoveryAshes/CompCrawl/internal/extractor"
	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/storage"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
)

// Crawler 一次抓取运行的协调器
// 负责组装页面驱动、页面池、提取引擎、存储和抓取循环,并在结束后写出报告
type Crawler struct {
	config   *Config
	site     *models.SiteConfig
	siteFile string

	// HTTP头部提供者
	headerProvider models.HeaderProvider

	hooks    models.Hooks
	progress bool

	// newFactory 创建页面驱动,测试中替换
	newFactory func(opts browser.Options) (models.PageFactory, error)
}

// NewCrawler 创建协调器,站点配置应已通过 Validate
func NewCrawler(config *Config, site *models.SiteConfig, siteFile string, headerProvider models.HeaderProvider) *Crawler {
	return &Crawler{
		config:         config,
		site:           site,
		siteFile:       siteFile,
		headerProvider: headerProvider,
		newFactory:     browser.New,
	}
}

// WithHooks 注册扩展钩子
func (c *Crawler) WithHooks(hooks models.Hooks) *Crawler {
	c.hooks = hooks
	return c
}

// WithProgress 在终端显示进度条
func (c *Crawler) WithProgress(enabled bool) *Crawler {
	c.progress = enabled
	return c
}

// Crawl 执行抓取
// 执行流程:
//  1. 合并并验证HTTP头部
//  2. 按资源上限确定页面数,启动页面驱动
//  3. 打开存储,运行抓取循环直到队列清空、出现致命错误或ctx取消
//  4. 生成运行报告
//
// 报告总是返回;运行提前终止时同时返回错误
func (c *Crawler) Crawl(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:      models.NewRunID(),
		ConfigFile: c.siteFile,
		StartTime:  time.Now(),
		Settings:   c.site.Settings,
	}

	utils.Infof("🚀 开始抓取任务 (run=%s)", report.RunID)
	utils.Infof("站点配置: %s", c.siteFile)
	utils.Infof("页面驱动: %s", c.site.Settings.Browser)
	utils.Infof("输出目录: %s (%s)", c.config.Output.Dir, backendName(c.config.Output.Backend))

	stats, runErr := c.run(ctx)

	report.EndTime = time.Now()
	if stats != nil {
		report.Stats = stats.Snapshot()
		report.FailedPages = stats.FailedPages()
	}
	report.Stats.Duration = report.EndTime.Sub(report.StartTime).Seconds()
	if runErr != nil {
		report.Aborted = true
		report.AbortMsg = runErr.Error()
	}

	reporter := utils.NewReporter(c.config.Output.Dir)
	if _, err := reporter.GenerateReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	if runErr != nil {
		utils.Errorf("抓取提前终止: %v", runErr)
		return report, runErr
	}
	utils.Infof("✅ 抓取任务完成: 页面 %d, 实体 %d, 耗时 %.2f秒",
		report.Stats.PagesVisited, report.Stats.EntitiesSaved, report.Stats.Duration)
	return report, nil
}

// run 组装依赖并运行抓取循环
func (c *Crawler) run(ctx context.Context) (stats *crawlers.Stats, err error) {
	settings := c.site.Settings

	headers, err := c.headerProvider.GetHeaders()
	if err != nil {
		return nil, fmt.Errorf("HTTP头部无效: %w", err)
	}
	utils.Debugf("请求头部: %s", utils.NewHeaderRedactor().RedactToString(headers))

	pages := settings.MaxParallelPages
	if c.config.Resource.CapPages {
		pages = crawlers.NewResourceMonitor(c.config.Resource.monitorConfig()).CapPages(pages)
	}

	factory, err := c.newFactory(browser.OptionsFromSettings(settings, headers))
	if err != nil {
		return nil, fmt.Errorf("启动页面驱动失败: %w", err)
	}
	pool := crawlers.NewPagePool(factory, pages)
	defer func() {
		if closeErr := pool.Close(); closeErr != nil {
			utils.Warnf("关闭页面池失败: %v", closeErr)
		}
	}()

	store := c.hooks.Storage
	if store == nil {
		var opened models.Storage
		if opened, err = storage.Open(ctx, c.config.Output); err != nil {
			return nil, fmt.Errorf("打开存储失败: %w", err)
		}
		defer func() {
			if closeErr := opened.Close(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("关闭存储失败: %w", closeErr))
			}
		}()
		store = opened
	} else {
		utils.Info("使用自定义存储")
	}

	var robots *crawlers.RobotsChecker
	if settings.RespectRobotsTxt {
		robots = crawlers.NewRobotsChecker(headers, settings.PageTimeout)
	}

	stats = crawlers.NewStats()
	if c.progress {
		bar := utils.NewProgressBar(-1, "抓取页面")
		stats.OnPageDone(func() { _ = bar.Add(1) })
		defer func() { _ = bar.Finish() }()
	}

	scheduler := crawlers.NewScheduler(crawlers.SchedulerOptions{
		Site:      c.site,
		Pool:      pool,
		Extractor: extractor.New(extractor.OptionsFromSite(c.site, c.hooks.Extractors)),
		Storage:   store,
		Hooks:     c.hooks,
		Robots:    robots,
		Stats:     stats,
	})
	return stats, scheduler.Run(ctx)
}

func backendName(backend string) string {
	if backend == "" {
		return "file"
	}
	return backend
}
