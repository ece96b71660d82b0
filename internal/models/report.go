package models

import (
	"encoding/json"
	"sort"
	"time"
)

// RunReport 一次探索的完整报告
type RunReport struct {
	// 任务信息
	RunID    string `json:"run_id"`
	StartURL string `json:"start_url"`
	Domain   string `json:"domain"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// 结果
	Results []TargetResult `json:"results"`
	Stats   RunStats       `json:"stats"`

	// 配置快照
	Config ExploreConfig `json:"config"`

	// 页面树文本,写到单独的文件
	Tree string `json:"-"`
}

// NewRunReport 创建报告
func NewRunReport(cfg ExploreConfig) *RunReport {
	return &RunReport{
		RunID:     generateID(),
		StartURL:  cfg.StartURL,
		Domain:    cfg.Domain(),
		StartTime: time.Now(),
		Config:    cfg,
		Results:   []TargetResult{},
	}
}

// OutputRecord 对外输出的最小记录
type OutputRecord struct {
	TargetLabel string `json:"targetLabel"`
	URL         string `json:"url"`
}

// Records 返回去重后的 {targetLabel,url} 列表,同一URL只保留第一次
// 标签相同而URL不同的记录(例如同款产品的不同规格)都保留
func (r *RunReport) Records() []OutputRecord {
	deduped := DedupResults(r.Results)
	out := make([]OutputRecord, 0, len(deduped))
	for _, res := range deduped {
		out = append(out, OutputRecord{TargetLabel: res.TargetLabel, URL: res.URL})
	}
	return out
}

// DedupResults 按URL去重,保持发现顺序
func DedupResults(results []TargetResult) []TargetResult {
	seen := make(map[string]bool)
	out := make([]TargetResult, 0, len(results))
	for _, res := range results {
		if seen[res.URL] {
			continue
		}
		seen[res.URL] = true
		out = append(out, res)
	}
	return out
}

// SortedByScore 按分数降序返回结果副本
func (r *RunReport) SortedByScore() []TargetResult {
	out := append([]TargetResult(nil), r.Results...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Duration 返回耗时(秒)
func (r *RunReport) Duration() float64 {
	return r.EndTime.Sub(r.StartTime).Seconds()
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
