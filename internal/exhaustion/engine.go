package exhaustion

import (
	"context"
	"fmt"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

var (
	// DefaultItemSelectors 判断列表是否增长的条目选择器
	DefaultItemSelectors = []string{
		".product", ".product-item", ".product-card", "[data-product-id]",
		"article", "li.item", ".card", ".grid-item",
	}

	// DefaultLoadingSelectors 加载指示器选择器
	DefaultLoadingSelectors = []string{
		".loading", ".spinner", ".loader", "[aria-busy='true']", ".skeleton",
	}
)

// Config 展开引擎配置
type Config struct {
	PaginationCap      int           // 翻页最大次数 (默认:10)
	LoadMoreCap        int           // 加载更多最大次数 (默认:20)
	ScrollAttempts     int           // 每个容器最多滚动次数 (默认:10)
	ScrollNoChangeStop int           // 连续无变化次数达到后停止 (默认:3)
	WaitTimeout        time.Duration // 单次等待超时 (默认:3s)
	PollInterval       time.Duration // 等待轮询间隔 (默认:250ms)
	ItemSelectors      []string
	LoadingSelectors   []string
	InfiniteScroll     bool // 是否总是执行无限滚动
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PaginationCap:      10,
		LoadMoreCap:        20,
		ScrollAttempts:     10,
		ScrollNoChangeStop: 3,
		WaitTimeout:        3 * time.Second,
		PollInterval:       250 * time.Millisecond,
		ItemSelectors:      DefaultItemSelectors,
		LoadingSelectors:   DefaultLoadingSelectors,
		InfiniteScroll:     true,
	}
}

// handlerFunc 所有触发类型共用的处理函数签名
type handlerFunc func(ctx context.Context, session PageSession, trigger models.TriggerDescriptor, sc *harvestScope) ([]models.Candidate, error)

// Engine 动态内容展开引擎
type Engine struct {
	cfg       Config
	harvester Harvester
	waiter    *Waiter
	handlers  map[models.TriggerType]handlerFunc
}

// NewEngine 创建展开引擎
func NewEngine(cfg Config, harvester Harvester) *Engine {
	def := DefaultConfig()
	if cfg.PaginationCap <= 0 {
		cfg.PaginationCap = def.PaginationCap
	}
	if cfg.LoadMoreCap <= 0 {
		cfg.LoadMoreCap = def.LoadMoreCap
	}
	if cfg.ScrollAttempts <= 0 {
		cfg.ScrollAttempts = def.ScrollAttempts
	}
	if cfg.ScrollNoChangeStop <= 0 {
		cfg.ScrollNoChangeStop = def.ScrollNoChangeStop
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ItemSelectors == nil {
		cfg.ItemSelectors = def.ItemSelectors
	}
	if cfg.LoadingSelectors == nil {
		cfg.LoadingSelectors = def.LoadingSelectors
	}

	e := &Engine{
		cfg:       cfg,
		harvester: harvester,
		waiter: &Waiter{
			Interval:         cfg.PollInterval,
			Timeout:          cfg.WaitTimeout,
			ItemSelectors:    cfg.ItemSelectors,
			LoadingSelectors: cfg.LoadingSelectors,
		},
	}
	e.handlers = map[models.TriggerType]handlerFunc{
		models.TriggerPagination:     e.iterative(cfg.PaginationCap),
		models.TriggerLoadMore:       e.iterative(cfg.LoadMoreCap),
		models.TriggerTabs:           e.single,
		models.TriggerAccordions:     e.single,
		models.TriggerExpanders:      e.single,
		models.TriggerInfiniteScroll: e.infiniteScroll,
	}
	return e
}

// harvestScope 一次 Exhaust 调用内共享的收集状态
type harvestScope struct {
	harvester Harvester
	offset    int
	collected []models.Candidate
	scrolled  bool
}

// harvest 读取当前DOM并提取新候选链接,ID接着上一次继续编号
func (sc *harvestScope) harvest(ctx context.Context, session PageSession) ([]models.Candidate, error) {
	html, err := session.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取页面HTML失败: %w", err)
	}
	fresh := sc.harvester.Extract(html, session.URL(), sc.offset)
	sc.offset += len(fresh)
	sc.collected = append(sc.collected, fresh...)
	return fresh, nil
}

// Exhaust 依次执行每个触发器,最后对所有滚动容器执行无限滚动
// 单个触发器的错误或panic只记录日志,不影响其他触发器
func (e *Engine) Exhaust(ctx context.Context, session PageSession, triggers []models.TriggerDescriptor) []models.Candidate {
	sc := &harvestScope{harvester: e.harvester}

	for _, trigger := range triggers {
		if ctx.Err() != nil {
			break
		}
		handler, ok := e.handlers[trigger.Type]
		if !ok {
			utils.Debugf("跳过未知触发类型: %s (元素 %d)", trigger.Type, trigger.ElementID)
			continue
		}
		e.runIsolated(ctx, session, trigger, sc, handler)
	}

	if e.cfg.InfiniteScroll && !sc.scrolled && ctx.Err() == nil {
		scroll := models.TriggerDescriptor{ElementID: -1, Type: models.TriggerInfiniteScroll}
		e.runIsolated(ctx, session, scroll, sc, e.infiniteScroll)
	}

	utils.Infof("🔄 动态内容展开完成 [%s]: %d 个触发器, 新增 %d 个候选链接", session.URL(), len(triggers), len(sc.collected))
	return sc.collected
}

func (e *Engine) runIsolated(ctx context.Context, session PageSession, trigger models.TriggerDescriptor, sc *harvestScope, handler handlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("触发器处理发生panic [%s 元素 %d]: %v", trigger.Type, trigger.ElementID, r)
		}
	}()

	found, err := handler(ctx, session, trigger, sc)
	if err != nil {
		utils.Warnf("触发器处理失败 [%s 元素 %d]: %v (已收集 %d 个)", trigger.Type, trigger.ElementID, err, len(found))
		return
	}
	utils.Debugf("触发器 [%s 元素 %d] 收集到 %d 个候选链接", trigger.Type, trigger.ElementID, len(found))
}
