package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/CompCrawl/internal/core"
	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	siteFile   string
	logLevel   string

	// HTTP头部参数
	headers []string

	// 抓取参数
	maxPages  int
	driver    string
	outputDir string
	progress  bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "compcrawl",
	Short: "声明式组件抓取工具",
	Long: `CompCrawl - 按声明式配置抓取网站并提取结构化组件

站点配置描述入口点、链接跟随规则和字段映射,抓取结果按目标写为JSON实体:
  • 链接跟随: 按选择器发现链接,支持分页递归和数量限制
  • 组件提取: 嵌套组件、同类元素区分、数组分组和 fallback
  • 页面驱动: rod (无头Chromium) 或 static (Colly + goquery)
  • 存储后端: 文件 (默认) 或 SQLite

示例:
  compcrawl run --site configs/site.example.yaml
  compcrawl run --site site.yaml --browser static --max-pages 8 -H "Authorization: Bearer token"
  compcrawl validate --site site.yaml

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		config.MergeCLIFlags(overrides())

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		appConfig = config
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "按站点配置执行抓取",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags(siteFile, maxPages, driver); err != nil {
			return err
		}

		site, err := loadSite()
		if err != nil {
			return err
		}

		headerManager, err := core.NewHeaderManager(site.Settings.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		// Ctrl+C / SIGTERM 取消抓取,进行中的页面结束后退出
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		crawler := core.NewCrawler(appConfig, site, siteFile, headerManager).WithProgress(progress)
		report, err := crawler.Crawl(ctx)
		if report != nil {
			utils.PrintSummary(os.Stdout, report)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				utils.Warnf("收到中断信号,抓取已停止")
				return nil
			}
			return fmt.Errorf("抓取失败: %w", err)
		}
		utils.Info("✨ 抓取任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CompCrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func overrides() core.Overrides {
	return core.Overrides{
		MaxPages: maxPages,
		Browser:  driver,
		Output:   outputDir,
		LogLevel: logLevel,
	}
}

// loadSite 加载站点配置,合并命令行参数后验证
func loadSite() (*models.SiteConfig, error) {
	site, err := core.LoadSiteConfig(siteFile)
	if err != nil {
		return nil, err
	}
	appConfig.ApplyTo(site, overrides())
	if err := site.Validate(); err != nil {
		return nil, err
	}
	return site, nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "应用配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&siteFile, "site", "s", "", "站点配置文件路径 (YAML或JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "并发页面数,覆盖 settings.maxParallelPages")
	rootCmd.PersistentFlags().StringVar(&driver, "browser", "", "页面驱动 (rod|static),覆盖配置")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "输出目录,覆盖 output.dir")

	runCmd.Flags().BoolVar(&progress, "progress", false, "显示进度条")

	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
