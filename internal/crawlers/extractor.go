package crawlers

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

const (
	// linkSelector 可能携带导航目标的元素
	linkSelector = "a[href], area[href], form[action], [data-href], [data-url], [onclick]"

	// dynamicSelector 可能触发客户端加载的交互元素
	dynamicSelector = "button, [role=button], [role=tab], summary, [aria-expanded], [aria-controls], a, [onclick]"

	// MaxDynamicElements 单页最多收集的交互元素数
	MaxDynamicElements = 200
)

var (
	// onclick="location.href='/x'" / window.location='/x'
	onclickLocation = regexp.MustCompile(`(?:window\.|document\.)?location(?:\.href)?\s*=\s*['"]([^'"]+)['"]`)

	// 分页/加载更多类锚点的提示词
	paginationHint = regexp.MustCompile(`(?i)\b(next|more|page|load|older|newer)\b|下一页|更多|^\s*\d{1,3}\s*$|^\s*[»›>]+\s*$`)

	skipPrefixes = []string{"#", "javascript:", "mailto:", "tel:"}
)

// CandidateExtractor 从HTML中提取同域且未登记过的候选链接
type CandidateExtractor struct {
	domain   string
	registry *Registry
}

// NewCandidateExtractor 创建候选链接提取器
func NewCandidateExtractor(domain string, registry *Registry) *CandidateExtractor {
	return &CandidateExtractor{
		domain:   domain,
		registry: registry,
	}
}

// Extract 提取候选链接,ID从offset开始递增
// 返回的每个URL都已通过 Registry.MarkIfNew 登记
func (e *CandidateExtractor) Extract(htmlContent, pageURL string, offset int) []models.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		log.Warn().Msgf("解析HTML失败 [%s]: %v", pageURL, err)
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		log.Warn().Msgf("解析页面URL失败 [%s]: %v", pageURL, err)
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	var candidates []models.Candidate
	nextID := offset

	doc.Find(linkSelector).Each(func(_ int, s *goquery.Selection) {
		raw := linkTarget(s)
		abs, canonical, ok := e.shouldFollow(raw, base)
		if !ok {
			return
		}

		text := collapseSpace(s.Text())
		title := strings.TrimSpace(s.AttrOr("title", ""))
		label := firstNonEmpty(text, title, s.AttrOr("aria-label", ""), s.Find("img[alt]").First().AttrOr("alt", ""))
		if label == "" {
			label = models.RelativePath(abs)
		}

		description := title
		if description == "" || description == label {
			description = surroundingContext(s, label)
		}

		outer, _ := goquery.OuterHtml(s)

		candidates = append(candidates, models.Candidate{
			ID:           nextID,
			URL:          canonical,
			RelativePath: models.RelativePath(abs),
			Label:        models.Truncate(label, models.MaxLabelLength),
			Description:  models.Truncate(description, models.MaxLabelLength),
			LinkText:     models.Truncate(text, models.MaxLabelLength),
			RawContext:   models.Truncate(outer, models.MaxRawContextLength),
		})
		nextID++
	})

	log.Debug().Msgf("从 %s 提取到 %d 个候选链接 (起始ID=%d)", pageURL, len(candidates), offset)
	return candidates
}

// shouldFollow 过滤并规范化链接,新链接会被登记
func (e *CandidateExtractor) shouldFollow(raw string, base *url.URL) (*url.URL, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", false
	}
	if isSkippable(raw) {
		return nil, "", false
	}

	abs, canonical, err := models.ResolveURL(base, raw)
	if err != nil {
		return nil, "", false
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, "", false
	}
	if !models.SameDomain(abs.Host, e.domain) {
		log.Debug().Msgf("跨域链接已过滤: %s (目标域: %s)", canonical, e.domain)
		return nil, "", false
	}
	if e.registry != nil && !e.registry.MarkIfNew(canonical) {
		return nil, "", false
	}
	return abs, canonical, true
}

// isSkippable 锚点、脚本、邮件、电话等非页面链接
func isSkippable(raw string) bool {
	lower := strings.ToLower(raw)
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// linkTarget 按元素类型取出链接目标
// href 为 "#" 或 javascript: 时继续看 data-href 和 onclick
func linkTarget(s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "a", "area":
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" && !isSkippable(href) {
			return href
		}
	case "form":
		method := strings.ToLower(strings.TrimSpace(s.AttrOr("method", "get")))
		if method == "get" || method == "" {
			return s.AttrOr("action", "")
		}
		return ""
	}
	if v := s.AttrOr("data-href", ""); v != "" {
		return v
	}
	if v := s.AttrOr("data-url", ""); v != "" {
		return v
	}
	if m := onclickLocation.FindStringSubmatch(s.AttrOr("onclick", "")); m != nil {
		return m[1]
	}
	return ""
}

// surroundingContext 取最近的列表项/卡片中的标题或段落作为描述
func surroundingContext(s *goquery.Selection, label string) string {
	container := s.Closest("li, article, section, td, figure, p")
	if container.Length() == 0 {
		return ""
	}
	for _, sel := range []string{"h1, h2, h3, h4, h5, h6", "p"} {
		text := collapseSpace(container.Find(sel).First().Text())
		if text != "" && text != label {
			return text
		}
	}
	text := collapseSpace(container.Text())
	if text == label {
		return ""
	}
	return text
}

// ExtractDynamicElements 收集可能触发动态加载的交互元素,ID从0开始
func ExtractDynamicElements(htmlContent string) []models.DynamicElement {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		log.Warn().Msgf("解析HTML失败: %v", err)
		return nil
	}

	var elements []models.DynamicElement
	doc.Find(dynamicSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(elements) >= MaxDynamicElements {
			return false
		}
		tag := goquery.NodeName(s)
		text := collapseSpace(s.Text())
		class := strings.TrimSpace(s.AttrOr("class", ""))
		_, hasClick := s.Attr("onclick")

		if tag == "a" && !isPaginationAnchor(s, text, class) && !hasClick {
			return true
		}
		if s.AttrOr("type", "") == "submit" || (tag == "button" && s.Closest("form").Length() > 0) {
			return true
		}

		elements = append(elements, models.DynamicElement{
			ID:              len(elements),
			Tag:             tag,
			TextContent:     models.Truncate(text, models.MaxElementTextLength),
			ClassNames:      class,
			DomID:           s.AttrOr("id", ""),
			Href:            s.AttrOr("href", ""),
			HasClickHandler: hasClick,
			ParentTag:       parentTag(s),
			AriaLabel:       s.AttrOr("aria-label", ""),
		})
		return true
	})
	return elements
}

func isPaginationAnchor(s *goquery.Selection, text, class string) bool {
	if strings.EqualFold(s.AttrOr("rel", ""), "next") {
		return true
	}
	if s.AttrOr("aria-expanded", "") != "" || s.AttrOr("aria-controls", "") != "" || s.AttrOr("role", "") != "" {
		return true
	}
	return paginationHint.MatchString(text) || paginationHint.MatchString(class)
}

// parentTag 直接父元素的标签名
func parentTag(s *goquery.Selection) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	for p := s.Nodes[0].Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p.Data
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
