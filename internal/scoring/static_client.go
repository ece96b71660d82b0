package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// 离线评分使用的关键词
var (
	DefaultSkipPatterns = []string{
		"contact", "about", "legal", "privacy", "terms", "login",
		"register", "account", "cart", "checkout", "support",
	}
	DefaultPrioritizePatterns = []string{
		"products", "catalog", "categories", "specifications",
		"materials", "gallery", "portfolio",
	}
	DefaultDomainKeywords = []string{
		"doors", "windows", "roofing", "flooring", "siding", "tiles",
		"lumber", "hardware", "fixtures", "materials", "construction",
		"building", "architectural", "commercial", "residential",
	}
)

const (
	staticSkipScore    = 0.5
	staticNeutralScore = 3.0
	staticPrioScore    = 6.0
	staticTargetScore  = 9.5
)

var (
	productSegment = regexp.MustCompile(`^(product|products|item|items|sku|p)$`)
	urlLine        = regexp.MustCompile(`(?m)^URL:\s*(\S+)`)
	titleLine      = regexp.MustCompile(`(?m)^Title:\s*(.+)$`)
	tabHint        = regexp.MustCompile(`\btab(s|list|-[a-z]+)?\b`)
)

// StaticClient 不依赖模型的关键词评分器,没有配置评分接口时使用
type StaticClient struct {
	SkipPatterns       []string
	PrioritizePatterns []string
	DomainKeywords     []string
}

// NewStaticClient 使用默认关键词
func NewStaticClient() *StaticClient {
	return &StaticClient{
		SkipPatterns:       DefaultSkipPatterns,
		PrioritizePatterns: DefaultPrioritizePatterns,
		DomainKeywords:     DefaultDomainKeywords,
	}
}

// Complete 按请求类型生成与模型相同格式的JSON
func (c *StaticClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch prompt.Kind {
	case KindScore:
		return c.scoreLinks(prompt.Instruction)
	case KindVerify:
		return c.verifyPage(prompt.Instruction)
	case KindTriggers:
		return c.detectTriggers(prompt.Instruction)
	}
	return "", fmt.Errorf("%w: 未知的请求类型 %d", models.ErrInvalidResponse, prompt.Kind)
}

type staticScore struct {
	ID          int     `json:"id"`
	Score       float64 `json:"score"`
	TargetLabel string  `json:"targetLabel,omitempty"`
}

func (c *StaticClient) scoreLinks(instruction string) (string, error) {
	var links []promptLink
	if err := afterMarker(instruction, linksMarker, '[', &links); err != nil {
		return "", err
	}

	scores := make([]staticScore, 0, len(links))
	for _, l := range links {
		score, label := c.classifyLink(l)
		scores = append(scores, staticScore{ID: l.ID, Score: score, TargetLabel: label})
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// classifyLink 跳过关键词 0.5, 产品详情形态 9.5, 优先关键词 6, 其余 3
func (c *StaticClient) classifyLink(l promptLink) (float64, string) {
	path := strings.ToLower(l.RelativePath)
	text := strings.ToLower(l.Title + " " + l.Description)

	if containsAny(path, c.SkipPatterns) || containsAny(strings.ToLower(l.Title), c.SkipPatterns) {
		return staticSkipScore, ""
	}
	if isProductLeaf(l.RelativePath) {
		label := strings.TrimSpace(l.Title)
		if label == "" || strings.HasPrefix(label, "/") {
			label = labelFromPath(l.RelativePath)
		}
		return staticTargetScore, label
	}
	if containsAny(path, c.PrioritizePatterns) || containsAny(text, c.PrioritizePatterns) ||
		containsAny(path, c.DomainKeywords) || containsAny(text, c.DomainKeywords) {
		return staticPrioScore, ""
	}
	return staticNeutralScore, ""
}

func (c *StaticClient) verifyPage(instruction string) (string, error) {
	resp := verifyResponse{}
	if m := urlLine.FindStringSubmatch(instruction); m != nil {
		if u, err := url.Parse(m[1]); err == nil && isProductLeaf(u.Path) {
			resp.IsProductPage = true
			if t := titleLine.FindStringSubmatch(instruction); t != nil {
				resp.ProductName = strings.TrimSpace(t[1])
			} else {
				resp.ProductName = labelFromPath(u.Path)
			}
		}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *StaticClient) detectTriggers(instruction string) (string, error) {
	var elements []models.DynamicElement
	if err := afterMarker(instruction, elementsMarker, '[', &elements); err != nil {
		return "", err
	}

	type trigger struct {
		ID          int    `json:"id"`
		TriggerType string `json:"triggerType,omitempty"`
	}
	var out []trigger
	for _, el := range elements {
		if tt := guessTriggerType(el); tt != "" {
			out = append(out, trigger{ID: el.ID, TriggerType: tt})
		}
	}
	if len(out) == 0 {
		out = append(out, trigger{ID: -1})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func guessTriggerType(el models.DynamicElement) string {
	text := strings.ToLower(el.TextContent + " " + el.ClassNames + " " + el.AriaLabel)
	switch {
	case strings.Contains(text, "load more") || strings.Contains(text, "show more") || strings.Contains(text, "加载更多"):
		return "Load More"
	case strings.Contains(text, "next") || strings.Contains(text, "pagination") || strings.Contains(text, "下一页"):
		return "Pagination"
	case tabHint.MatchString(text):
		return "Tabs"
	case strings.Contains(text, "accordion"):
		return "Accordions"
	case el.Tag == "summary" || strings.Contains(text, "expand"):
		return "Expanders"
	}
	return ""
}

// isProductLeaf 产品段之后的末段带编号或至少三个词,例如 /products/oak-door-42
// /products/interior-doors 这种分类页不算
func isProductLeaf(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(strings.ToLower(path), "/"), "/")
	last := len(segments) - 1
	for _, seg := range segments[:last] {
		if !productSegment.MatchString(seg) {
			continue
		}
		leaf := strings.TrimSuffix(segments[last], ".html")
		if strings.ContainsAny(leaf, "0123456789") || len(strings.FieldsFunc(leaf, isWordSeparator)) >= 3 {
			return true
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	return r == '-' || r == '_' || r == '+'
}

func labelFromPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	path = strings.TrimSuffix(path, ".html")
	return strings.Join(strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(path)), " ")
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// afterMarker 解析标记之后的第一个JSON值
func afterMarker(text, marker string, open byte, v any) error {
	i := strings.Index(text, marker)
	if i < 0 {
		return fmt.Errorf("%w: 请求中缺少 %q", models.ErrInvalidResponse, marker)
	}
	return firstJSONValue(text[i+len(marker):], open, v)
}
