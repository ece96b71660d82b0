package scoring

import (
	"net/url"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// MaxPageContextLength 页面上下文的字符上限
const MaxPageContextLength = 2000

// PageContext 提取页面标题、摘要和正文,作为评分与确认的上下文
// readability 失败时退回到 goquery 的 title 与 body 文本
func PageContext(htmlContent, pageURL string) string {
	if strings.TrimSpace(htmlContent) == "" {
		return ""
	}

	var title, excerpt, text string
	if u, err := url.Parse(pageURL); err == nil {
		parser := readability.NewParser()
		if article, err := parser.Parse(strings.NewReader(htmlContent), u); err == nil {
			title = article.Title
			excerpt = article.Excerpt
			text = textOf(article.Content)
		}
	}

	if title == "" || text == "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent)); err == nil {
			if title == "" {
				title = doc.Find("title").First().Text()
			}
			if excerpt == "" {
				excerpt = doc.Find(`meta[name="description"]`).AttrOr("content", "")
			}
			if text == "" {
				doc.Find("script, style, noscript").Remove()
				text = doc.Find("body").Text()
			}
		}
	}

	var b strings.Builder
	if t := strings.Join(strings.Fields(title), " "); t != "" {
		b.WriteString("Title: " + t + "\n")
	}
	if e := strings.Join(strings.Fields(excerpt), " "); e != "" {
		b.WriteString("Description: " + e + "\n")
	}
	b.WriteString(strings.Join(strings.Fields(text), " "))

	return models.Truncate(b.String(), MaxPageContextLength)
}

func textOf(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return doc.Text()
}
