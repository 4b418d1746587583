package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  CompCrawl 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// rod 驱动需要本地 Chromium,缺失时首次运行会自动下载
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ Chromium已安装: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到Chromium - rod驱动首次运行时将自动下载")
		fmt.Println("   也可以使用 --browser static 以静态模式抓取")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("✅ 可用内存: %.1f GB / %.1f GB\n", float64(vm.Available)/(1<<30), float64(vm.Total)/(1<<30))
		if vm.Available < 1<<30 {
			fmt.Println("⚠️  可用内存不足1GB,并发页面数将被限制为1")
		}
	} else {
		fmt.Printf("⚠️  获取内存信息失败: %v\n", err)
	}

	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/compcrawl",
		"internal/browser",
		"internal/core",
		"internal/crawlers",
		"internal/extractor",
		"internal/models",
		"internal/storage",
		"internal/utils",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/compcrawl' 构建项目")
		fmt.Println("  2. 运行 './compcrawl validate --site configs/site.example.yaml' 检查站点配置")
		fmt.Println("  3. 运行 './compcrawl run --site configs/site.example.yaml' 开始抓取")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}
