// Package exhaustion 展开页面中由客户端动态加载的内容
// (分页、加载更多、标签页、折叠面板、无限滚动),并收集新出现的候选链接
package exhaustion

import (
	"context"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// DocumentContainerID 文档级滚动容器的ID,总是第一个
const DocumentContainerID = 0

// Snapshot 某一时刻页面内容的计数
type Snapshot struct {
	Links  int            `json:"links"`  // a[href] 数量
	Items  map[string]int `json:"items"`  // 选择器 -> 匹配数量
	Height int            `json:"height"` // 滚动高度
}

// ItemTotal 所有条目选择器的匹配总数
func (s Snapshot) ItemTotal() int {
	total := 0
	for _, n := range s.Items {
		total += n
	}
	return total
}

// Changed 与之前的快照相比内容是否有变化
func (s Snapshot) Changed(before Snapshot) bool {
	return s.Links != before.Links || s.ItemTotal() != before.ItemTotal() || s.Height != before.Height
}

// ScrollContainer 可滚动的容器
type ScrollContainer struct {
	ID       int    `json:"id"`
	Label    string `json:"label"` // 日志中显示的描述
	Document bool   `json:"document"`
}

// PageSession 一个已加载页面的交互会话
type PageSession interface {
	// URL 当前页面地址(翻页后可能变化)
	URL() string
	// HTML 当前DOM序列化结果
	HTML(ctx context.Context) (string, error)
	// Click 定位并点击触发元素,元素不存在或不可见时返回false
	Click(ctx context.Context, trigger models.TriggerDescriptor) (bool, error)
	// Count 可见的匹配元素数量
	Count(ctx context.Context, selector string) (int, error)
	Snapshot(ctx context.Context, itemSelectors []string) (Snapshot, error)
	// ScrollContainers 文档容器在前
	ScrollContainers(ctx context.Context) ([]ScrollContainer, error)
	// ScrollToBottom 滚动到底部,返回滚动后是否已到边界
	ScrollToBottom(ctx context.Context, containerID int) (bool, error)
	// Close 释放底层页面
	Close() error
}

// Harvester 从HTML提取候选链接(已按登记表去重)
type Harvester interface {
	Extract(htmlContent, pageURL string, offset int) []models.Candidate
}
