package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/CompCrawl/internal/core"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "验证站点配置和HTTP头部,不执行抓取",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags(siteFile, maxPages, driver); err != nil {
			return err
		}

		utils.Info("🔍 验证站点配置...")
		site, err := loadSite()
		if err != nil {
			for _, line := range flattenErrors(err) {
				utils.Errorf("  %s", line)
			}
			return fmt.Errorf("配置验证失败: %w", err)
		}

		headerManager, err := core.NewHeaderManager(site.Settings.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := headerManager.Validate(); err != nil {
			return fmt.Errorf("头部验证失败: %w", err)
		}

		utils.Info("✅ 配置验证通过!")
		utils.Infof("入口点 %d 个, 目标 %d 个, 页面驱动 %s", len(site.EntryPoints), len(site.Destinations), site.Settings.Browser)
		safeHeaders := headerManager.GetSafeHeaders()
		utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
		for name, value := range safeHeaders {
			utils.Infof("  %s: %s", name, value)
		}
		return nil
	},
}

// ValidateFlags 验证命令行标志
func ValidateFlags(siteFile string, maxPages int, driver string) error {
	if siteFile == "" {
		return fmt.Errorf("缺少站点配置,请使用 --site 指定")
	}
	if maxPages < 0 || maxPages > 64 {
		return fmt.Errorf("并发页面数必须在1-64之间,当前值: %d", maxPages)
	}
	switch driver {
	case "", "rod", "static":
	default:
		return fmt.Errorf("无效的页面驱动: %s (有效值: rod, static)", driver)
	}
	return nil
}

// flattenErrors 展开 errors.Join 聚合的错误,每个配置错误一行
func flattenErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, flattenErrors(e)...)
		}
		return lines
	}
	return strings.Split(err.Error(), "\n")
}
