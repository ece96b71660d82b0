package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/crawlers"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/exhaustion"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/scoring"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/storage"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

// Crawler 组装抓取器、评分器、浏览器和输出,可连续执行多次探索
type Crawler struct {
	config         *Config
	headerProvider models.HeaderProvider
	scorer         RelevanceScorer
	sessions       *lazyBrowser
	reporter       *utils.Reporter
	store          *storage.ResultStore

	// 测试时替换静态抓取
	newFetcher func(explore models.ExploreConfig) Fetcher
}

// NewCrawler 创建主爬取器
func NewCrawler(config *Config, headerProvider models.HeaderProvider) (*Crawler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	scorer, err := newScorer(config)
	if err != nil {
		return nil, err
	}

	c := &Crawler{
		config:         config,
		headerProvider: headerProvider,
		scorer:         scorer,
		reporter:       utils.NewReporter(config.Output.BaseDir, config.Output.DomainSeparation, config.Output.SaveTree),
	}
	c.newFetcher = c.pageFetcher

	if config.Browser.Enabled {
		c.sessions = &lazyBrowser{cfg: config.BrowserConfig(), headers: headerProvider}
	}

	if config.Output.Database != "" {
		store, err := storage.Open(config.Output.Database)
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	return c, nil
}

// newScorer 按配置选择评分后端
func newScorer(config *Config) (*scoring.Scorer, error) {
	var client scoring.Client
	switch config.Scorer.Provider {
	case ProviderStatic:
		client = scoring.NewStaticClient()
		utils.Infof("🤖 评分后端: 离线启发式评分")
	default:
		remote, err := scoring.NewClient(config.Scorer.Provider, config.HTTPClientConfig())
		if err != nil {
			return nil, fmt.Errorf("创建评分客户端失败: %w", err)
		}
		client = remote
		utils.Infof("🤖 评分后端: %s (%s)", config.Scorer.Provider, modelOrDefault(config.Scorer.Model))
	}
	return scoring.NewScorer(client,
		scoring.WithRetryPolicy(config.RetryPolicy()),
		scoring.WithSystemPrompt(config.Scorer.SystemPrompt),
	), nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return "默认模型"
	}
	return model
}

func (c *Crawler) pageFetcher(explore models.ExploreConfig) Fetcher {
	robots := crawlers.NewRobotsPolicy(explore.RespectRobots, c.config.Fetch.UserAgent, c.config.Fetch.RobotsTTL, nil)
	return crawlers.NewPageFetcher(c.config.FetcherConfig(), c.headerProvider, robots)
}

// Crawl 执行一次探索并输出报告
// outputPath 非空时目标列表写到该路径
func (c *Crawler) Crawl(ctx context.Context, explore models.ExploreConfig, outputPath string) (*models.RunReport, error) {
	deps := ExplorerDeps{
		Fetcher:     c.newFetcher(explore),
		Scorer:      c.scorer,
		Exhaustion:  c.config.ExhaustionConfig(),
		PageTimeout: c.config.Explore.PageTimeout,
	}
	if c.sessions != nil && explore.EnableExhaustion {
		deps.Sessions = c.sessions
	}

	explorer, err := NewExplorer(explore, deps)
	if err != nil {
		return nil, err
	}

	report, err := explorer.Run(ctx)
	if err != nil {
		return nil, err
	}

	// 输出不受运行ctx取消的影响
	if _, err := c.reporter.GenerateReport(report, outputPath); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}
	if c.store != nil {
		c.saveToStore(report, explorer.Root())
	}

	c.printSummary(report)
	return report, nil
}

func (c *Crawler) saveToStore(report *models.RunReport, root *models.PageNode) {
	ctx := context.Background()
	known, err := c.store.KnownTargetURLs(ctx, report.Domain)
	if err != nil {
		utils.Warnf("读取历史目标失败: %v", err)
	}
	fresh := 0
	for _, rec := range report.Records() {
		if _, ok := known[rec.URL]; !ok {
			fresh++
		}
	}
	if err := c.store.SaveRun(ctx, report, root); err != nil {
		utils.Warnf("写入数据库失败: %v", err)
		return
	}
	utils.Infof("🆕 本次新发现 %d 个目标 (历史已知 %d 个)", fresh, len(known))
}

func (c *Crawler) printSummary(report *models.RunReport) {
	st := report.Stats
	utils.Info("==================================================")
	utils.Info("📊 探索统计")
	utils.Info("==================================================")
	utils.Infof("起始URL: %s", report.StartURL)
	utils.Infof("停止原因: %s", st.HaltReason)
	utils.Infof("✅ 处理页面: %d (失败 %d)", st.PagesProcessed, st.FailedPages)
	utils.Infof("🌳 树节点: %d, 队列剩余: %d", st.TotalNodes, st.FrontierSize)
	utils.Infof("🎯 目标: %d (去重后 %d)", st.TargetsFound, len(report.Records()))
	utils.Infof("🔄 动态候选: %d, 评分补0: %d", st.DynamicCandidates, st.ScorerFallbacks)
	utils.Infof("⏱️  耗时: %.2f秒", st.Duration)
	utils.Info("==================================================")
}

// Close 释放浏览器和数据库
func (c *Crawler) Close() {
	if c.sessions != nil {
		c.sessions.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			utils.Warnf("关闭数据库失败: %v", err)
		}
	}
}

// lazyBrowser 第一次需要展开内容时才启动浏览器
// 启动失败后不再重试,后续页面直接跳过展开
type lazyBrowser struct {
	cfg     crawlers.BrowserConfig
	headers models.HeaderProvider

	mu      sync.Mutex
	browser *crawlers.Browser
	err     error
}

// OpenSession 实现 SessionOpener
func (l *lazyBrowser) OpenSession(ctx context.Context, pageURL string) (exhaustion.PageSession, error) {
	l.mu.Lock()
	if l.browser == nil && l.err == nil {
		utils.Infof("🌐 启动浏览器 (headless=%v)", l.cfg.Headless)
		l.browser, l.err = crawlers.NewBrowser(l.cfg, l.headers)
		if l.err != nil {
			utils.Errorf("❌ 浏览器启动失败, 本次运行不再展开动态内容: %v", l.err)
		}
	}
	browser, err := l.browser, l.err
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return browser.OpenSession(ctx, pageURL)
}

// Close 关闭已启动的浏览器
func (l *lazyBrowser) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		l.browser.Close()
		l.browser = nil
	}
}
