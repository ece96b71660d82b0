package exhaustion

import (
	"context"
	"fmt"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

// iterative 翻页/加载更多: 反复点击直到找不到触发器、没有新链接或达到上限
// 每一轮都重新定位触发器
func (e *Engine) iterative(limit int) handlerFunc {
	return func(ctx context.Context, session PageSession, trigger models.TriggerDescriptor, sc *harvestScope) ([]models.Candidate, error) {
		var found []models.Candidate
		for round := 1; round <= limit; round++ {
			if err := ctx.Err(); err != nil {
				return found, err
			}

			fresh, clicked, err := e.clickAndHarvest(ctx, session, trigger, sc)
			if err != nil {
				return found, err
			}
			if !clicked {
				utils.Debugf("第 %d 轮未找到可见的 %s 触发器,停止", round, trigger.Type)
				break
			}
			found = append(found, fresh...)
			if len(fresh) == 0 {
				utils.Debugf("%s 第 %d 轮没有新链接,停止", trigger.Type, round)
				break
			}
		}
		return found, nil
	}
}

// single 标签页/折叠面板/展开器: 只点击一次
func (e *Engine) single(ctx context.Context, session PageSession, trigger models.TriggerDescriptor, sc *harvestScope) ([]models.Candidate, error) {
	fresh, clicked, err := e.clickAndHarvest(ctx, session, trigger, sc)
	if err != nil {
		return fresh, err
	}
	if !clicked {
		return nil, fmt.Errorf("%w: 元素 %d", models.ErrTriggerNotFound, trigger.ElementID)
	}
	return fresh, nil
}

// clickAndHarvest 点击 → 等待内容变化 → 收集
func (e *Engine) clickAndHarvest(ctx context.Context, session PageSession, trigger models.TriggerDescriptor, sc *harvestScope) ([]models.Candidate, bool, error) {
	before, err := session.Snapshot(ctx, e.cfg.ItemSelectors)
	if err != nil {
		return nil, false, fmt.Errorf("获取页面快照失败: %w", err)
	}
	loading := e.waiter.LoadingCount(ctx, session)

	clicked, err := session.Click(ctx, trigger)
	if err != nil {
		return nil, false, fmt.Errorf("点击触发器失败: %w", err)
	}
	if !clicked {
		return nil, false, nil
	}

	strategy, _ := e.waiter.WaitForChange(ctx, session, before, loading)
	fresh, err := sc.harvest(ctx, session)
	if err != nil {
		return nil, true, err
	}
	utils.Debugf("点击 %s (元素 %d) 后等待策略=%s, 新链接 %d 个", trigger.Type, trigger.ElementID, strategy, len(fresh))
	return fresh, true, nil
}
