package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// RunState 调度循环状态
type RunState string

const (
	StateIdle    RunState = "idle"    // 未开始
	StateRunning RunState = "running" // 运行中
	StateHalted  RunState = "halted"  // 已停止
)

// HaltReason 停止原因
type HaltReason string

const (
	HaltNone            HaltReason = ""
	HaltBudgetExhausted HaltReason = "budget-exhausted" // 页数预算用完
	HaltFrontierEmpty   HaltReason = "frontier-empty"   // 队列为空
	HaltCancelled       HaltReason = "cancelled"        // 调用方取消
)

// TargetOrigin 目标页的发现途径
type TargetOrigin string

const (
	OriginStatic   TargetOrigin = "static"   // 静态链接评分
	OriginDynamic  TargetOrigin = "dynamic"  // 动态内容展开后评分
	OriginVerified TargetOrigin = "verified" // 高分节点二次确认
)

const (
	DefaultMaxPages      = 50
	DefaultDelay         = 1 * time.Second
	DefaultLowThreshold  = 1.0
	DefaultHighThreshold = 9.0
)

// ExploreConfig 单次探索配置
type ExploreConfig struct {
	StartURL         string        `json:"start_url" yaml:"url"`
	MaxPages         int           `json:"max_pages" yaml:"max_pages"`           // 页数预算 (默认:50)
	Delay            time.Duration `json:"delay" yaml:"delay"`                   // 页间礼貌延迟 (默认:1s)
	LowThreshold     float64       `json:"low_threshold" yaml:"low_threshold"`   // 低于此分跳过 (默认:1.0)
	HighThreshold    float64       `json:"high_threshold" yaml:"high_threshold"` // 高于此分判定为目标 (默认:9.0)
	EnableExhaustion bool          `json:"enable_exhaustion" yaml:"enable_exhaustion"`
	RespectRobots    bool          `json:"respect_robots" yaml:"respect_robots"`
	ShowProgress     bool          `json:"-" yaml:"-"`
}

// DefaultExploreConfig 返回默认配置
func DefaultExploreConfig(startURL string) ExploreConfig {
	return ExploreConfig{
		StartURL:         startURL,
		MaxPages:         DefaultMaxPages,
		Delay:            DefaultDelay,
		LowThreshold:     DefaultLowThreshold,
		HighThreshold:    DefaultHighThreshold,
		EnableExhaustion: true,
	}
}

// Validate 验证配置
func (c *ExploreConfig) Validate() error {
	if err := ValidateURL(c.StartURL); err != nil {
		return err
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("最大页数必须大于0")
	}
	if c.Delay < 0 {
		return fmt.Errorf("页间延迟不能为负数")
	}
	if c.LowThreshold < 0 || c.HighThreshold > 10 {
		return fmt.Errorf("阈值必须在0-10之间")
	}
	if c.LowThreshold >= c.HighThreshold {
		return fmt.Errorf("低阈值(%.1f)必须小于高阈值(%.1f)", c.LowThreshold, c.HighThreshold)
	}
	return nil
}

// Domain 返回起始URL的主机名
func (c *ExploreConfig) Domain() string {
	parsed, err := url.Parse(c.StartURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// TargetResult 一条目标页记录
type TargetResult struct {
	TargetLabel string       `json:"targetLabel"`
	URL         string       `json:"url"`
	SourceURL   string       `json:"source_url,omitempty"` // 发现该链接的页面
	Score       float64      `json:"score"`
	FoundAt     time.Time    `json:"found_at"`
	Origin      TargetOrigin `json:"origin"`
}

// RunStats 运行统计
type RunStats struct {
	PagesProcessed    int        `json:"pages_processed"`    // 计入预算的页数
	TotalNodes        int        `json:"total_nodes"`        // 树中节点数
	FrontierSize      int        `json:"frontier_size"`      // 停止时队列剩余
	TargetsFound      int        `json:"targets_found"`      // 记录的目标数
	SkippedCandidates int        `json:"skipped_candidates"` // 低分跳过
	QueuedCandidates  int        `json:"queued_candidates"`  // 入队
	DynamicCandidates int        `json:"dynamic_candidates"` // 动态展开得到的候选
	FailedPages       int        `json:"failed_pages"`       // 处理失败的页
	ScorerFallbacks   int        `json:"scorer_fallbacks"`   // 补0分的候选数
	HaltReason        HaltReason `json:"halt_reason"`
	Duration          float64    `json:"duration"` // 秒
}

// BatchTask 批量任务中的一条
type BatchTask struct {
	URL      string `yaml:"url" json:"url"`
	MaxPages int    `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
	Delay    string `yaml:"delay,omitempty" json:"delay,omitempty"` // 例如 "2s"
	Output   string `yaml:"output,omitempty" json:"output,omitempty"`
}

// Apply 把任务中的覆盖项写入探索配置
func (t BatchTask) Apply(base ExploreConfig) (ExploreConfig, error) {
	cfg := base
	cfg.StartURL = t.URL
	if t.MaxPages > 0 {
		cfg.MaxPages = t.MaxPages
	}
	if t.Delay != "" {
		d, err := time.ParseDuration(t.Delay)
		if err != nil {
			return cfg, fmt.Errorf("任务 %s 的延迟格式错误: %w", t.URL, err)
		}
		cfg.Delay = d
	}
	return cfg, cfg.Validate()
}

// ToJSON 序列化为JSON
func (s *RunStats) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
