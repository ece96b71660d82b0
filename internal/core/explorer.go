package core

import (
	"context"
	"fmt"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/crawlers"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/exhaustion"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/scoring"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// DefaultPageTimeout 单个页面内容展开的总超时
const DefaultPageTimeout = 3 * time.Minute

// Fetcher 静态页面获取
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*crawlers.FetchResult, error)
}

// SessionOpener 打开可交互的浏览器会话
type SessionOpener interface {
	OpenSession(ctx context.Context, pageURL string) (exhaustion.PageSession, error)
}

// RelevanceScorer 评分边界
type RelevanceScorer interface {
	ScoreBatch(ctx context.Context, candidates []models.Candidate, pageContext string) scoring.ScoreOutcome
	VerifyTarget(ctx context.Context, pageURL, pageContext string) (string, bool)
	DetectTriggers(ctx context.Context, elements []models.DynamicElement) []models.TriggerDescriptor
}

// ExplorerDeps 调度循环的外部依赖
type ExplorerDeps struct {
	Fetcher     Fetcher
	Sessions    SessionOpener // 为nil时不做内容展开
	Scorer      RelevanceScorer
	Exhaustion  exhaustion.Config
	PageTimeout time.Duration
}

// Explorer 最佳优先探索的调度循环,单goroutine运行
type Explorer struct {
	cfg         models.ExploreConfig
	fetcher     Fetcher
	sessions    SessionOpener
	scorer      RelevanceScorer
	pageTimeout time.Duration

	registry  *crawlers.Registry
	frontier  *crawlers.Frontier
	extractor *crawlers.CandidateExtractor
	engine    *exhaustion.Engine
	root      *models.PageNode

	state   models.RunState
	stats   models.RunStats
	results []models.TargetResult
}

// NewExplorer 创建调度循环
func NewExplorer(cfg models.ExploreConfig, deps ExplorerDeps) (*Explorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("探索配置无效: %w", err)
	}
	if deps.Fetcher == nil || deps.Scorer == nil {
		return nil, fmt.Errorf("缺少抓取器或评分器")
	}
	if deps.PageTimeout <= 0 {
		deps.PageTimeout = DefaultPageTimeout
	}

	rootURL, err := models.CanonicalURL(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("规范化起始URL失败: %w", err)
	}

	registry := crawlers.NewRegistry()
	extractor := crawlers.NewCandidateExtractor(cfg.Domain(), registry)

	return &Explorer{
		cfg:         cfg,
		fetcher:     deps.Fetcher,
		sessions:    deps.Sessions,
		scorer:      deps.Scorer,
		pageTimeout: deps.PageTimeout,
		registry:    registry,
		frontier:    crawlers.NewFrontier(),
		extractor:   extractor,
		engine:      exhaustion.NewEngine(deps.Exhaustion, extractor),
		root:        models.NewRootNode(rootURL),
		state:       models.StateIdle,
		results:     []models.TargetResult{},
	}, nil
}

// Run 执行探索直到预算用完、队列为空或ctx取消
// 取消时仍返回已经得到的部分结果
func (e *Explorer) Run(ctx context.Context) (*models.RunReport, error) {
	if e.state != models.StateIdle {
		return nil, fmt.Errorf("探索已经运行过, 当前状态: %s", e.state)
	}

	report := models.NewRunReport(e.cfg)
	start := time.Now()
	e.state = models.StateRunning

	e.registry.Seed(e.root.URL)
	e.frontier.Push(e.root)

	utils.Infof("🚀 开始探索: %s (预算 %d 页, 阈值 %.1f/%.1f)",
		e.cfg.StartURL, e.cfg.MaxPages, e.cfg.LowThreshold, e.cfg.HighThreshold)

	var bar *progressbar.ProgressBar
	if e.cfg.ShowProgress {
		bar = utils.NewProgressBar(e.cfg.MaxPages, "🔍 探索页面")
	}

	e.stats.HaltReason = e.loop(ctx, bar)
	e.state = models.StateHalted

	if bar != nil {
		_ = bar.Finish()
	}

	e.stats.TotalNodes = e.root.SubtreeSize()
	e.stats.FrontierSize = e.frontier.Size()
	e.stats.TargetsFound = len(e.results)
	e.stats.Duration = time.Since(start).Seconds()

	report.EndTime = time.Now()
	report.Results = append(report.Results, e.results...)
	report.Stats = e.stats
	report.Tree = e.root.RenderTree()

	utils.Infof("🏁 探索结束: %s, 处理 %d 页, 发现 %d 个目标, 用时 %.1fs",
		e.stats.HaltReason, e.stats.PagesProcessed, e.stats.TargetsFound, e.stats.Duration)
	return report, nil
}

func (e *Explorer) loop(ctx context.Context, bar *progressbar.ProgressBar) models.HaltReason {
	for {
		if ctx.Err() != nil {
			return models.HaltCancelled
		}

		node, ok := e.frontier.PopMax()
		if !ok {
			return models.HaltFrontierEmpty
		}
		if node.Explored {
			utils.Debugf("跳过已探索节点: %s", node.URL)
			continue
		}

		utils.Infof("📄 [%d/%d] %s (优先级 %.2f)",
			e.stats.PagesProcessed+1, e.cfg.MaxPages, node.URL, node.AncestorAverage())

		if err := e.processPage(ctx, node); err != nil {
			if ctx.Err() != nil {
				return models.HaltCancelled
			}
			e.stats.FailedPages++
			node.MarkExplored()
			utils.Errorf("❌ 页面处理失败 [%s]: %v", node.URL, err)
		}

		e.stats.PagesProcessed++
		if bar != nil {
			_ = bar.Add(1)
		}
		if e.stats.PagesProcessed >= e.cfg.MaxPages {
			return models.HaltBudgetExhausted
		}

		if err := sleepContext(ctx, e.cfg.Delay); err != nil {
			return models.HaltCancelled
		}
	}
}

// processPage 处理一个页面,panic转为错误返回
func (e *Explorer) processPage(ctx context.Context, node *models.PageNode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("处理页面时发生panic: %v", r)
		}
	}()

	var page *crawlers.FetchResult

	// 高分节点先确认是否就是目标页
	if node.Scored && node.DirectScore >= e.cfg.HighThreshold {
		node.MarkExplored()
		page, err = e.fetcher.Fetch(ctx, node.URL)
		if err != nil {
			return err
		}
		pageContext := scoring.PageContext(string(page.Body), node.URL)
		if label, ok := e.scorer.VerifyTarget(ctx, node.URL, pageContext); ok {
			if label == "" {
				label = node.TargetLabel
			}
			if label == "" {
				utils.Warnf("⚠️  已确认目标页但没有名称, 不记录: %s", node.URL)
				return nil
			}
			e.recordTarget(node, label, models.OriginVerified)
			return nil
		}
		utils.Infof("🔎 高分页面未确认为目标, 按普通页面处理: %s", node.URL)
	}

	node.MarkExplored()
	if page == nil {
		page, err = e.fetcher.Fetch(ctx, node.URL)
		if err != nil {
			return err
		}
	}

	pageURL := node.URL
	if page.FinalURL != "" {
		pageURL = page.FinalURL
	}
	html := string(page.Body)

	candidates := e.extractor.Extract(html, pageURL, 0)
	if len(candidates) == 0 {
		utils.Debugf("页面没有新的候选链接: %s", pageURL)
		return nil
	}
	utils.Debugf("提取到 %d 个候选链接: %s", len(candidates), pageURL)

	pageContext := scoring.PageContext(html, pageURL)
	targets := e.scoreAndClassify(ctx, node, candidates, pageContext, models.OriginStatic)

	if targets > 0 && e.cfg.EnableExhaustion && e.sessions != nil {
		e.exhaust(ctx, node, pageContext)
	}
	return nil
}

// scoreAndClassify 评分并按阈值分类,返回目标类候选的数量
func (e *Explorer) scoreAndClassify(ctx context.Context, parent *models.PageNode, candidates []models.Candidate, pageContext string, origin models.TargetOrigin) int {
	outcome := e.scorer.ScoreBatch(ctx, candidates, pageContext)
	if ctx.Err() != nil {
		// 评分中途取消的结果全是补0分,不写入树
		utils.Warnf("评分被取消, 丢弃 %d 个候选: %s", len(candidates), parent.URL)
		return 0
	}
	results := outcome.Resolve(candidates)

	targets := 0
	for i, res := range results {
		c := candidates[i]
		if res.Synthesized {
			e.stats.ScorerFallbacks++
		}

		child := parent.AddChild(c.URL, c.RelativePath)
		child.ApplyScore(res.Score, res.TargetLabel)

		switch models.Classify(res.Score, e.cfg.LowThreshold, e.cfg.HighThreshold) {
		case models.ClassSkip:
			child.MarkExplored()
			e.stats.SkippedCandidates++
		case models.ClassTarget:
			child.MarkExplored()
			targets++
			if res.TargetLabel == "" {
				utils.Warnf("⚠️  高分链接没有名称, 不记录: %s (%.1f)", c.URL, res.Score)
				continue
			}
			e.recordTarget(child, res.TargetLabel, origin)
		default:
			e.frontier.Push(child)
			e.stats.QueuedCandidates++
		}
	}
	return targets
}

// exhaust 在浏览器会话中展开动态内容,新候选作为第二批评分
func (e *Explorer) exhaust(ctx context.Context, node *models.PageNode, pageContext string) {
	exCtx, cancel := context.WithTimeout(ctx, e.pageTimeout)
	defer cancel()

	session, err := e.sessions.OpenSession(exCtx, node.URL)
	if err != nil {
		utils.Warnf("⚠️  无法打开浏览器会话, 跳过内容展开 [%s]: %v", node.URL, err)
		return
	}
	defer session.Close()

	html, err := session.HTML(exCtx)
	if err != nil {
		utils.Warnf("⚠️  读取渲染后页面失败 [%s]: %v", node.URL, err)
		return
	}

	elements := crawlers.ExtractDynamicElements(html)
	triggers := e.scorer.DetectTriggers(exCtx, elements)
	utils.Infof("🧩 %d 个可交互元素中识别出 %d 个触发器", len(elements), len(triggers))

	candidates := e.engine.Exhaust(exCtx, session, triggers)
	if len(candidates) == 0 {
		return
	}
	e.stats.DynamicCandidates += len(candidates)
	utils.Infof("🔄 内容展开发现 %d 个新链接", len(candidates))

	e.scoreAndClassify(ctx, node, candidates, pageContext, models.OriginDynamic)
}

func (e *Explorer) recordTarget(node *models.PageNode, label string, origin models.TargetOrigin) {
	source := ""
	if node.Parent != nil {
		source = node.Parent.URL
	}
	e.results = append(e.results, models.TargetResult{
		TargetLabel: label,
		URL:         node.URL,
		SourceURL:   source,
		Score:       node.DirectScore,
		FoundAt:     time.Now(),
		Origin:      origin,
	})
	utils.Infof("🎯 发现目标: %s -> %s", label, node.URL)
}

// State 当前状态
func (e *Explorer) State() models.RunState {
	return e.state
}

// Stats 当前统计
func (e *Explorer) Stats() models.RunStats {
	return e.stats
}

// Root 页面树根节点
func (e *Explorer) Root() *models.PageNode {
	return e.root
}

// Results 已记录的目标
func (e *Explorer) Results() []models.TargetResult {
	return e.results
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
