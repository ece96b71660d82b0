package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

// pooledPage 池中的标签页及其请求拦截器
type pooledPage struct {
	page          *rod.Page
	router        *rod.HijackRouter
	cleanFailures int
}

// PagePool 浏览器标签页池
// 标签页数量受 ResourceMonitor.CalculateMaxTabs 限制,用完归还时清理存储状态
type PagePool struct {
	browser      *rod.Browser
	monitor      *ResourceMonitor
	stealth      bool
	blockedTypes map[proto.NetworkResourceType]bool
	available    chan *pooledPage
	pages        map[*rod.Page]*pooledPage
	mu           sync.Mutex
	closed       bool
}

// NewPagePool 创建标签页池
func NewPagePool(browser *rod.Browser, monitor *ResourceMonitor, useStealth bool, blocked []proto.NetworkResourceType) *PagePool {
	blockedTypes := make(map[proto.NetworkResourceType]bool, len(blocked))
	for _, t := range blocked {
		blockedTypes[t] = true
	}
	return &PagePool{
		browser:      browser,
		monitor:      monitor,
		stealth:      useStealth,
		blockedTypes: blockedTypes,
		available:    make(chan *pooledPage, 32),
		pages:        make(map[*rod.Page]*pooledPage),
	}
}

// Acquire 取一个空闲标签页,没有空闲且未达上限时新建
func (pp *PagePool) Acquire(ctx context.Context) (*rod.Page, error) {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, fmt.Errorf("标签页池已关闭")
	}
	current := len(pp.pages)
	pp.mu.Unlock()

	select {
	case pooled := <-pp.available:
		return pooled.page, nil
	default:
	}

	if current >= pp.monitor.CalculateMaxTabs() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case pooled := <-pp.available:
			return pooled.page, nil
		}
	}

	return pp.create()
}

func (pp *PagePool) create() (*rod.Page, error) {
	var page *rod.Page
	var err error
	if pp.stealth {
		page, err = stealth.Page(pp.browser)
	} else {
		page, err = pp.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		log.Error().Err(err).Msg("创建标签页失败,浏览器可能已崩溃")
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	pooled := &pooledPage{page: page}
	if len(pp.blockedTypes) > 0 {
		pooled.router = pp.blockResources(page)
	}

	pp.mu.Lock()
	pp.pages[page] = pooled
	size := len(pp.pages)
	pp.mu.Unlock()

	log.Debug().Msgf("创建新标签页,当前标签页数: %d", size)
	return page, nil
}

// blockResources 拦截图片/字体/媒体等与链接无关的请求
func (pp *PagePool) blockResources(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if pp.blockedTypes[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// Release 归还标签页,清理失败两次则销毁
func (pp *PagePool) Release(page *rod.Page) {
	if page == nil {
		return
	}
	pp.mu.Lock()
	pooled, ok := pp.pages[page]
	closed := pp.closed
	pp.mu.Unlock()
	if !ok || closed {
		_ = page.Close()
		return
	}

	if err := cleanPage(page); err != nil {
		pooled.cleanFailures++
		log.Warn().Err(err).Msgf("清理标签页状态失败 (第%d次)", pooled.cleanFailures)
		if pooled.cleanFailures >= 2 {
			pp.destroy(pooled)
			return
		}
	} else {
		pooled.cleanFailures = 0
	}

	select {
	case pp.available <- pooled:
	default:
		pp.destroy(pooled)
	}
}

// cleanPage 清空存储并回到空白页
func cleanPage(page *rod.Page) error {
	_, err := page.Eval(`() => {
		try { localStorage.clear(); } catch (e) {}
		try { sessionStorage.clear(); } catch (e) {}
		return true;
	}`)
	if err != nil {
		return fmt.Errorf("清理存储失败: %w", err)
	}
	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("返回空白页失败: %w", err)
	}
	return nil
}

func (pp *PagePool) destroy(pooled *pooledPage) {
	pp.mu.Lock()
	delete(pp.pages, pooled.page)
	size := len(pp.pages)
	pp.mu.Unlock()

	if pooled.router != nil {
		_ = pooled.router.Stop()
	}
	if err := pooled.page.Close(); err != nil {
		log.Warn().Err(err).Msg("关闭标签页失败")
	}
	log.Debug().Msgf("销毁标签页,当前标签页数: %d", size)
}

// Size 当前标签页数
func (pp *PagePool) Size() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// Close 关闭所有标签页
func (pp *PagePool) Close() {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return
	}
	pp.closed = true
	all := make([]*pooledPage, 0, len(pp.pages))
	for _, p := range pp.pages {
		all = append(all, p)
	}
	pp.mu.Unlock()

	for _, p := range all {
		pp.destroy(p)
	}
	log.Debug().Msg("标签页池已关闭")
}
