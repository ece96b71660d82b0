package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxLabelLength 候选链接标签/描述的最大字符数
	MaxLabelLength = 200
	// MaxRawContextLength 原始标签上下文的最大字符数
	MaxRawContextLength = 300
	// MaxElementTextLength 动态元素文本的最大字符数
	MaxElementTextLength = 100
)

// Candidate 一次提取得到的候选链接(临时对象)
// ID只在单批次内唯一,用于和评分结果对应
type Candidate struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	RelativePath string `json:"relative_path"`
	Label        string `json:"title"`
	Description  string `json:"description"`
	LinkText     string `json:"link_text,omitempty"`
	RawContext   string `json:"link_tag,omitempty"` // 原始标签markup,供动态元素定位
}

// ScoredResult 评分器返回的单条结果
type ScoredResult struct {
	ID          int     `json:"id"`
	Score       float64 `json:"score"`
	TargetLabel string  `json:"targetLabel,omitempty"`
	Synthesized bool    `json:"-"` // 评分缺失时由调度器补的0分
}

// DynamicElement 可能触发客户端加载的交互元素
type DynamicElement struct {
	ID              int    `json:"id"`
	Tag             string `json:"tag"`
	TextContent     string `json:"text"`
	ClassNames      string `json:"class,omitempty"`
	DomID           string `json:"dom_id,omitempty"`
	Href            string `json:"href,omitempty"`
	HasClickHandler bool   `json:"has_click_handler"`
	ParentTag       string `json:"parent_tag,omitempty"`
	AriaLabel       string `json:"aria_label,omitempty"`
}

// TriggerType 动态加载触发类型
type TriggerType int

const (
	TriggerUnknown TriggerType = iota
	TriggerPagination
	TriggerLoadMore
	TriggerTabs
	TriggerAccordions
	TriggerExpanders
	TriggerInfiniteScroll
)

// String 返回评分器协议中使用的名称
func (t TriggerType) String() string {
	switch t {
	case TriggerPagination:
		return "Pagination"
	case TriggerLoadMore:
		return "LoadMore"
	case TriggerTabs:
		return "Tabs"
	case TriggerAccordions:
		return "Accordions"
	case TriggerExpanders:
		return "Expanders"
	case TriggerInfiniteScroll:
		return "InfiniteScroll"
	default:
		return "Unknown"
	}
}

// Iterative 是否为迭代型触发(重复点击直到没有新内容)
func (t TriggerType) Iterative() bool {
	return t == TriggerPagination || t == TriggerLoadMore
}

// ParseTriggerType 解析评分器返回的触发类型,兼容 "Load More"/"load-more" 等写法
func ParseTriggerType(s string) (TriggerType, error) {
	key := strings.ToLower(s)
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch key {
	case "pagination":
		return TriggerPagination, nil
	case "loadmore":
		return TriggerLoadMore, nil
	case "tabs", "tab":
		return TriggerTabs, nil
	case "accordions", "accordion":
		return TriggerAccordions, nil
	case "expanders", "expander":
		return TriggerExpanders, nil
	case "infinitescroll":
		return TriggerInfiniteScroll, nil
	}
	return TriggerUnknown, fmt.Errorf("未知的触发类型: %q", s)
}

// TriggerDescriptor 检测出的一个动态加载触发器
type TriggerDescriptor struct {
	ElementID int            `json:"id"`
	Type      TriggerType    `json:"-"`
	Element   DynamicElement `json:"element"`
}

// Classification 候选链接的分类结果
type Classification string

const (
	ClassSkip    Classification = "skip"
	ClassTarget  Classification = "target"
	ClassExplore Classification = "explore"
)

// Classify 按阈值分类: score<low跳过, score>high为目标, 其余继续探索
func Classify(score, low, high float64) Classification {
	switch {
	case score < low:
		return ClassSkip
	case score > high:
		return ClassTarget
	default:
		return ClassExplore
	}
}

// Truncate 按字符数截断字符串
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
