package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/config"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/core"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
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
	verbose    bool
	logLevel   string
	headers    []string

	// 探索参数
	targetURL        string
	urlFile          string
	taskFile         string
	maxPages         int
	delay            time.Duration
	lowThreshold     float64
	highThreshold    float64
	enableExhaustion bool
	respectRobots    bool
	headless         bool
	useBrowser       bool

	// 评分参数
	provider string
	model    string
	apiKey   string

	// 输出参数
	outputDir  string
	outputFile string
	database   string

	// 批量处理参数
	batchDelay      time.Duration
	continueOnError bool

	// headers 子命令
	initHeaders bool
)

// appConfig 在 PersistentPreRunE 中加载一次
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "bimcrawler",
	Short: "BIM产品分类URL爬虫",
	Long: `BIM Category URL Crawler - 从建材厂商网站中找出产品分类页面

从一个起始URL出发,按评分优先探索站内链接:
  • 评分器判断每个链接与目标产品分类的相关度
  • 分数最高的页面优先访问,低分链接直接跳过
  • 高分页面二次确认后记录为目标
  • 目标页面上的分页/加载更多/无限滚动会被展开

示例:
  # 离线评分
  bimcrawler -u https://example.com/products

  # 使用远程模型评分
  BIMCRAWLER_SCORER_API_KEY=sk-... bimcrawler -u https://example.com --provider openai
  BIMCRAWLER_SCORER_API_KEY=... bimcrawler -u https://example.com --provider anthropic

  # 批量处理
  bimcrawler -f urls.txt --batch-delay 5s
  bimcrawler --task tasks.yaml

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		cfg.MergeCLIFlags(cliOverrides(cmd))

		if err := utils.InitLogger(cfg.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = cfg
		return nil
	},
	RunE: runCrawl,
}

// cliOverrides 只收集用户显式指定的参数,未指定的保留配置文件的值
func cliOverrides(cmd *cobra.Command) core.CLIOverrides {
	flags := cmd.Flags()
	o := core.CLIOverrides{
		Provider:  provider,
		Model:     model,
		APIKey:    apiKey,
		OutputDir: outputDir,
		Database:  database,
		LogLevel:  logLevel,
	}
	if verbose && logLevel == "" {
		o.LogLevel = "debug"
	}
	if flags.Lookup("max-pages") == nil {
		return o
	}

	if flags.Changed("max-pages") {
		o.MaxPages = maxPages
	}
	if flags.Changed("delay") {
		o.Delay = &delay
	}
	if flags.Changed("low") {
		o.LowThreshold = &lowThreshold
	}
	if flags.Changed("high") {
		o.HighThreshold = &highThreshold
	}
	if flags.Changed("exhaustion") {
		o.EnableExhaustion = &enableExhaustion
	}
	if flags.Changed("robots") {
		o.RespectRobots = &respectRobots
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("browser") {
		o.Browser = &useBrowser
	}
	return o
}

func runCrawl(cmd *cobra.Command, args []string) error {
	if targetURL == "" && urlFile == "" && taskFile == "" {
		return cmd.Help()
	}

	startURL, err := NormalizeURL(targetURL)
	if err != nil {
		return fmt.Errorf("无效的目标URL: %w", err)
	}

	cfg := appConfig
	if err := ValidateFlags(startURL, urlFile, taskFile, cfg.Explore.MaxPages,
		cfg.Explore.LowThreshold, cfg.Explore.HighThreshold); err != nil {
		return err
	}

	// Ctrl+C 取消当前探索,已有结果仍然输出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headerManager, err := core.NewHeaderManager(cfg.Fetch.UserAgent, cfg.Fetch.Headers, cfg.Fetch.HeadersFile, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	crawler, err := core.NewCrawler(cfg, headerManager)
	if err != nil {
		return fmt.Errorf("创建爬取器失败: %w", err)
	}
	defer crawler.Close()

	// 批量处理模式
	if urlFile != "" || taskFile != "" {
		tasks, err := loadTasks()
		if err != nil {
			return err
		}
		summary := core.NewBatchCrawler(crawler, cfg.ExploreConfig(""), batchDelay, continueOnError).CrawlBatch(ctx, tasks)
		if summary.SuccessCount == 0 && summary.TotalTasks > 0 {
			return fmt.Errorf("批量探索全部失败 (%d个任务)", summary.TotalTasks)
		}
		utils.Info("✨ 批量探索完成!")
		return nil
	}

	// 单URL模式
	explore := cfg.ExploreConfig(startURL)
	explore.ShowProgress = !verbose

	report, err := crawler.Crawl(ctx, explore, outputFile)
	if err != nil {
		return fmt.Errorf("探索失败: %w", err)
	}
	if report.Stats.HaltReason == models.HaltCancelled {
		utils.Warn("⚠️  探索被中断, 结果不完整")
		return nil
	}

	utils.Info("✨ 探索完成!")
	return nil
}

// loadTasks 从URL列表或任务文件读取批量任务
func loadTasks() ([]models.BatchTask, error) {
	if taskFile != "" {
		tasks, err := utils.LoadTaskFile(taskFile)
		if err != nil {
			return nil, fmt.Errorf("读取任务文件失败: %w", err)
		}
		return tasks, nil
	}

	urls, err := utils.ReadURLsFromFile(urlFile)
	if err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}
	return core.TasksFromURLs(urls), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("BIM Category URL Crawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "验证并显示当前生效的HTTP头部",
	Long: `合并默认值、配置文件、头部文件和 -H 参数,校验后显示(敏感值脱敏)。

  bimcrawler headers --init   # 生成头部配置模板
  bimcrawler headers -H "Cookie: a=b"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig

		if initHeaders {
			loader := config.NewHeaderFileLoader(cfg.Fetch.HeadersFile)
			written, err := loader.WriteTemplate()
			if err != nil {
				return fmt.Errorf("生成头部模板失败: %w", err)
			}
			if written {
				utils.Infof("📝 已生成头部配置模板: %s", loader.Path())
			} else {
				utils.Infof("头部配置文件已存在: %s", loader.Path())
			}
		}

		utils.Info("🔍 验证HTTP头部配置...")
		headerManager, err := core.NewHeaderManager(cfg.Fetch.UserAgent, cfg.Fetch.Headers, cfg.Fetch.HeadersFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := headerManager.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		safeHeaders, err := headerManager.SafeHeaders()
		if err != nil {
			return err
		}
		utils.Info("✅ 配置验证通过!")
		utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
		names := make([]string, 0, len(safeHeaders))
		for name := range safeHeaders {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			utils.Infof("  %s: %s", name, safeHeaders[name])
		}
		return nil
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	// 探索参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "起始URL")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().StringVar(&taskFile, "task", "", "YAML任务文件,可逐个覆盖探索参数")
	rootCmd.Flags().IntVarP(&maxPages, "max-pages", "n", models.DefaultMaxPages, "页数预算")
	rootCmd.Flags().DurationVar(&delay, "delay", models.DefaultDelay, "页间延迟")
	rootCmd.Flags().Float64Var(&lowThreshold, "low", models.DefaultLowThreshold, "低于此分的链接跳过")
	rootCmd.Flags().Float64Var(&highThreshold, "high", models.DefaultHighThreshold, "高于此分的链接判定为目标")
	rootCmd.Flags().BoolVar(&enableExhaustion, "exhaustion", true, "展开目标页面的动态内容")
	rootCmd.Flags().BoolVar(&respectRobots, "robots", true, "遵守robots.txt")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&useBrowser, "browser", true, "允许启动浏览器")

	// 评分参数
	rootCmd.Flags().StringVar(&provider, "provider", "", "评分器 (static|openai|anthropic|google)")
	rootCmd.Flags().StringVar(&model, "model", "", "评分模型名")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "评分接口密钥 (建议使用 BIMCRAWLER_SCORER_API_KEY)")

	// 输出参数
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录")
	rootCmd.Flags().StringVar(&outputFile, "out", "", "目标列表输出路径 (单URL模式)")
	rootCmd.Flags().StringVar(&database, "db", "", "SQLite结果库路径")

	// 批量处理参数
	rootCmd.Flags().DurationVar(&batchDelay, "batch-delay", time.Second, "批量处理URL间延迟")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	headersCmd.Flags().BoolVar(&initHeaders, "init", false, "头部配置文件不存在时生成模板")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(headersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
