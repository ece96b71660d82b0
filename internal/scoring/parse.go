package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// ScoreItem 模型返回数组中的一项
type ScoreItem struct {
	ID          *int
	Score       float64
	HasScore    bool
	TargetLabel string

	badID     bool // id存在但不是整数
	notObject bool
}

// firstJSONValue 从文本中找出第一个能完整解析的 open...close 结构
func firstJSONValue(text string, open byte, v any) error {
	for i := 0; i < len(text); i++ {
		if text[i] != open {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: 响应中没有可解析的JSON", models.ErrInvalidResponse)
}

// parseScoreItems 解析第一个JSON数组,逐项宽松转换
func parseScoreItems(text string) ([]ScoreItem, error) {
	var raw []json.RawMessage
	if err := firstJSONValue(text, '[', &raw); err != nil {
		return nil, err
	}

	items := make([]ScoreItem, 0, len(raw))
	for _, r := range raw {
		var obj map[string]any
		if err := json.Unmarshal(r, &obj); err != nil || obj == nil {
			items = append(items, ScoreItem{notObject: true})
			continue
		}

		var item ScoreItem
		if s, ok := obj["score"].(float64); ok {
			item.Score = clampScore(s)
			item.HasScore = true
		}
		if rawID, present := obj["id"]; present {
			if f, ok := rawID.(float64); ok && f == math.Trunc(f) {
				id := int(f)
				item.ID = &id
			} else {
				item.badID = true
			}
		}
		item.TargetLabel = firstString(obj, "targetLabel", "productName")
		items = append(items, item)
	}
	return items, nil
}

// validateScoreItems 数量一致、每项是对象且有数值score、id为整数
func validateScoreItems(items []ScoreItem, expected int) error {
	if len(items) != expected {
		return fmt.Errorf("%w: 期望 %d 项, 实际 %d 项", models.ErrInvalidResponse, expected, len(items))
	}
	for i, item := range items {
		switch {
		case item.notObject:
			return fmt.Errorf("%w: 第 %d 项不是对象", models.ErrInvalidResponse, i)
		case !item.HasScore:
			return fmt.Errorf("%w: 第 %d 项缺少数值score", models.ErrInvalidResponse, i)
		case item.badID:
			return fmt.Errorf("%w: 第 %d 项id不是整数", models.ErrInvalidResponse, i)
		}
	}
	return nil
}

// Resolve 为每个候选确定评分: 先按id, 再按位置(该位置没有id时), 都没有则合成0分
// 返回结果与candidates一一对应
func Resolve(candidates []models.Candidate, items []ScoreItem) []models.ScoredResult {
	byID := make(map[int]ScoreItem, len(items))
	for _, item := range items {
		if item.ID == nil || !item.HasScore {
			continue
		}
		if _, dup := byID[*item.ID]; !dup {
			byID[*item.ID] = item
		}
	}

	results := make([]models.ScoredResult, len(candidates))
	for i, c := range candidates {
		if item, ok := byID[c.ID]; ok {
			results[i] = models.ScoredResult{ID: c.ID, Score: item.Score, TargetLabel: item.TargetLabel}
			continue
		}
		if i < len(items) && items[i].ID == nil && items[i].HasScore {
			results[i] = models.ScoredResult{ID: c.ID, Score: items[i].Score, TargetLabel: items[i].TargetLabel}
			continue
		}
		results[i] = models.ScoredResult{ID: c.ID, Score: 0, Synthesized: true}
	}
	return results
}

type verifyResponse struct {
	IsProductPage bool   `json:"isProductPage"`
	ProductName   string `json:"productName"`
}

func parseVerifyResponse(text string) (verifyResponse, error) {
	var resp verifyResponse
	if err := firstJSONValue(text, '{', &resp); err != nil {
		return resp, err
	}
	resp.ProductName = strings.TrimSpace(resp.ProductName)
	return resp, nil
}

type triggerItem struct {
	ID          *int   `json:"id"`
	TriggerType string `json:"triggerType"`
}

// parseTriggers 丢弃 id=-1、未知类型和未知id
func parseTriggers(text string, elements []models.DynamicElement) ([]models.TriggerDescriptor, error) {
	var raw []json.RawMessage
	if err := firstJSONValue(text, '[', &raw); err != nil {
		return nil, err
	}

	known := make(map[int]models.DynamicElement, len(elements))
	for _, el := range elements {
		known[el.ID] = el
	}

	seen := make(map[int]bool)
	var out []models.TriggerDescriptor
	for _, r := range raw {
		var item triggerItem
		if err := json.Unmarshal(r, &item); err != nil || item.ID == nil || *item.ID < 0 {
			continue
		}
		el, ok := known[*item.ID]
		if !ok || seen[*item.ID] {
			continue
		}
		tt, err := models.ParseTriggerType(item.TriggerType)
		if err != nil {
			continue
		}
		seen[*item.ID] = true
		out = append(out, models.TriggerDescriptor{ElementID: el.ID, Type: tt, Element: el})
	}
	return out, nil
}

func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 10:
		return 10
	}
	return s
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
