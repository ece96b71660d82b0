package exhaustion

import (
	"context"
	"strings"
	"time"
)

// WaitStrategy 等待内容变化时命中的策略
type WaitStrategy string

const (
	WaitSelectorAppeared   WaitStrategy = "selector-appeared"    // 条目选择器数量增加
	WaitLoadingGone        WaitStrategy = "loading-gone"         // 加载指示器消失
	WaitLinkCountIncreased WaitStrategy = "link-count-increased" // 链接数增加
	WaitTimeout            WaitStrategy = "timeout"              // 超时,照常继续
)

// Waiter 轮询等待页面内容变化
type Waiter struct {
	Interval         time.Duration
	Timeout          time.Duration
	ItemSelectors    []string
	LoadingSelectors []string
}

// LoadingCount 当前可见的加载指示器数量
func (w *Waiter) LoadingCount(ctx context.Context, session PageSession) int {
	if len(w.LoadingSelectors) == 0 {
		return 0
	}
	n, err := session.Count(ctx, strings.Join(w.LoadingSelectors, ", "))
	if err != nil {
		return 0
	}
	return n
}

// WaitForChange 轮询直到某个策略成立或超时
// loadingBefore 为触发前可见的加载指示器数量; 触发后才出现的指示器
// 在轮询中看到过一次, 消失时同样算作 loading-gone
// 轮询中的读取错误(例如页面正在跳转)不终止等待
func (w *Waiter) WaitForChange(ctx context.Context, session PageSession, before Snapshot, loadingBefore int) (WaitStrategy, Snapshot) {
	interval := w.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	timer := time.NewTimer(w.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := before
	seenLoading := loadingBefore > 0
	for {
		select {
		case <-ctx.Done():
			return WaitTimeout, last
		case <-timer.C:
			if snap, err := session.Snapshot(ctx, w.ItemSelectors); err == nil {
				last = snap
			}
			return WaitTimeout, last
		case <-ticker.C:
		}

		snap, err := session.Snapshot(ctx, w.ItemSelectors)
		if err != nil {
			continue
		}
		last = snap

		if snap.ItemTotal() > before.ItemTotal() {
			return WaitSelectorAppeared, snap
		}
		if loading := w.LoadingCount(ctx, session); loading > 0 {
			seenLoading = true
		} else if seenLoading {
			return WaitLoadingGone, snap
		}
		if snap.Links > before.Links {
			return WaitLinkCountIncreased, snap
		}
	}
}
