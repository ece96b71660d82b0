package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  BIM Category URL Crawler 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 动态内容展开需要Chromium,找不到时rod会在首次启动时下载
	if path, found := launcher.LookPath(); found {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium - 首次展开动态内容时会自动下载")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		availMB := vm.Available / 1024 / 1024
		fmt.Printf("✅ 可用内存: %d MB\n", availMB)
		if availMB < 512 {
			fmt.Println("⚠️  可用内存不足512MB, 浏览器会话可能被资源监控拒绝")
		}
	} else {
		fmt.Printf("⚠️  无法读取内存信息: %v\n", err)
	}

	if os.Getenv("BIMCRAWLER_SCORER_API_KEY") != "" {
		fmt.Println("✅ 已设置 BIMCRAWLER_SCORER_API_KEY")
	} else {
		fmt.Println("⚠️  未设置 BIMCRAWLER_SCORER_API_KEY - 只能使用离线评分 (scorer.provider=static)")
	}

	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")
		fmt.Println("正在下载依赖...")
		if err := exec.Command("go", "mod", "download").Run(); err != nil {
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
	for _, dir := range []string{"cmd/bimcrawler", "internal/core", "internal/crawlers", "internal/exhaustion", "internal/scoring", "configs"} {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", strings.TrimSuffix(dir, "/"))
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
		fmt.Println("  1. go build -o bimcrawler ./cmd/bimcrawler")
		fmt.Println("  2. ./bimcrawler -u https://example.com/products")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}
