package exhaustion

import (
	"context"
	"fmt"
	"sort"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

// infiniteScroll 对页面上每个可滚动容器执行滚动加载,文档级容器优先
func (e *Engine) infiniteScroll(ctx context.Context, session PageSession, _ models.TriggerDescriptor, sc *harvestScope) ([]models.Candidate, error) {
	if sc.scrolled {
		return nil, nil
	}
	sc.scrolled = true

	containers, err := session.ScrollContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("查找滚动容器失败: %w", err)
	}
	sort.SliceStable(containers, func(i, j int) bool {
		return containers[i].Document && !containers[j].Document
	})

	var found []models.Candidate
	for _, c := range containers {
		if ctx.Err() != nil {
			return found, ctx.Err()
		}
		fresh, err := e.scrollContainer(ctx, session, c, sc)
		found = append(found, fresh...)
		if err != nil {
			utils.Warnf("滚动容器 %s 失败: %v", c.Label, err)
		}
	}
	return found, nil
}

// scrollContainer 单个容器: 最多 ScrollAttempts 次,
// 连续 ScrollNoChangeStop 次无变化或到达边界且无变化时停止
func (e *Engine) scrollContainer(ctx context.Context, session PageSession, c ScrollContainer, sc *harvestScope) (found []models.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("滚动容器发生panic: %v", r)
		}
	}()

	noChange := 0
	for attempt := 1; attempt <= e.cfg.ScrollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		before, err := session.Snapshot(ctx, e.cfg.ItemSelectors)
		if err != nil {
			return found, fmt.Errorf("获取页面快照失败: %w", err)
		}
		loading := e.waiter.LoadingCount(ctx, session)

		atBound, err := session.ScrollToBottom(ctx, c.ID)
		if err != nil {
			return found, fmt.Errorf("滚动失败: %w", err)
		}

		strategy, after := e.waiter.WaitForChange(ctx, session, before, loading)
		if !after.Changed(before) {
			noChange++
			if atBound || noChange >= e.cfg.ScrollNoChangeStop {
				utils.Debugf("容器 %s 第 %d 次滚动无变化 (到达边界=%v),停止", c.Label, attempt, atBound)
				break
			}
			continue
		}

		noChange = 0
		fresh, err := sc.harvest(ctx, session)
		if err != nil {
			return found, err
		}
		found = append(found, fresh...)
		utils.Debugf("容器 %s 第 %d 次滚动: 策略=%s, 新链接 %d 个", c.Label, attempt, strategy, len(fresh))
	}
	return found, nil
}
