package crawlers

import (
	"strings"
	"testing"
)

const catalogHTML = `<html><body>
<ul>
  <li><h3>Office Chair X</h3><a href="/products/chair-x">View</a></li>
  <li><a href="/products/desk" title="Standing Desk">Desk</a></li>
</ul>
<a href="#top">Top</a>
<a href="javascript:void(0)">JS</a>
<a href="mailto:sales@example.com">Mail</a>
<a href="tel:123456">Call</a>
<a href="https://other.com/x">Partner</a>
<a href="https://www.example.com/about#team">About</a>
<a href="/products/chair-x">Duplicate</a>
<form action="/search" method="get"></form>
<form action="/login" method="post"></form>
<div data-href="/catalog/lamps">Lamps</div>
<span onclick="location.href='/catalog/tables'">Tables</span>
</body></html>`

func TestCandidateExtractor_Extract(t *testing.T) {
	registry := NewRegistry()
	registry.Seed("https://example.com/index.html", "https://example.com/catalog/lamps")
	extractor := NewCandidateExtractor("example.com", registry)

	got := extractor.Extract(catalogHTML, "https://example.com/index.html", 5)

	wantURLs := []string{
		"https://example.com/products/chair-x",
		"https://example.com/products/desk",
		"https://www.example.com/about",
		"https://example.com/search",
		"https://example.com/catalog/tables",
	}
	if len(got) != len(wantURLs) {
		var urls []string
		for _, c := range got {
			urls = append(urls, c.URL)
		}
		t.Fatalf("提取数量 = %d, want %d: %v", len(got), len(wantURLs), urls)
	}

	for i, want := range wantURLs {
		if got[i].URL != want {
			t.Errorf("候选 %d URL = %s, want %s", i, got[i].URL, want)
		}
		if got[i].ID != 5+i {
			t.Errorf("候选 %d ID = %d, want %d", i, got[i].ID, 5+i)
		}
	}

	chair := got[0]
	if chair.Label != "View" || chair.Description != "Office Chair X" {
		t.Errorf("标签/描述 = %q/%q", chair.Label, chair.Description)
	}
	if chair.RelativePath != "/products/chair-x" {
		t.Errorf("RelativePath = %q", chair.RelativePath)
	}
	if !strings.Contains(chair.RawContext, `href="/products/chair-x"`) {
		t.Errorf("RawContext = %q", chair.RawContext)
	}

	if got[1].Description != "Standing Desk" {
		t.Errorf("title属性应作为描述, got %q", got[1].Description)
	}
	if got[3].Label != "/search" {
		t.Errorf("无文本时标签应为路径, got %q", got[3].Label)
	}

	// 所有返回的URL都已登记
	for _, c := range got {
		if !registry.Contains(c.URL) {
			t.Errorf("%s 未登记", c.URL)
		}
	}

	// 第二次提取时全部已登记
	if again := extractor.Extract(catalogHTML, "https://example.com/index.html", 0); len(again) != 0 {
		t.Errorf("重复提取数量 = %d, want 0", len(again))
	}
}

func TestCandidateExtractor_BaseHref(t *testing.T) {
	html := `<html><head><base href="https://example.com/shop/"></head>
<body><a href="item-1">Item</a></body></html>`

	got := NewCandidateExtractor("example.com", NewRegistry()).Extract(html, "https://example.com/", 0)
	if len(got) != 1 || got[0].URL != "https://example.com/shop/item-1" {
		t.Errorf("base href 未生效: %+v", got)
	}
}

func TestCandidateExtractor_LabelIsTruncated(t *testing.T) {
	html := `<a href="/long">` + strings.Repeat("x", 500) + `</a>`

	got := NewCandidateExtractor("example.com", NewRegistry()).Extract(html, "https://example.com/", 0)
	if len(got) != 1 {
		t.Fatalf("提取数量 = %d, want 1", len(got))
	}
	if n := len([]rune(got[0].Label)); n != 200 {
		t.Errorf("标签长度 = %d, want 200", n)
	}
	if n := len([]rune(got[0].RawContext)); n != 300 {
		t.Errorf("RawContext长度 = %d, want 300", n)
	}
}

func TestExtractDynamicElements(t *testing.T) {
	html := `<html><body>
<button id="load-more" class="btn">Load more</button>
<a href="/list?page=2" rel="next">Next</a>
<a href="/about">About us</a>
<div role="tab" aria-controls="panel1">Specs</div>
<details><summary>Details</summary><p>...</p></details>
<form><button type="submit">Go</button></form>
</body></html>`

	got := ExtractDynamicElements(html)
	if len(got) != 4 {
		t.Fatalf("元素数量 = %d, want 4: %+v", len(got), got)
	}

	tests := []struct {
		tag, text string
	}{
		{"button", "Load more"},
		{"a", "Next"},
		{"div", "Specs"},
		{"summary", "Details"},
	}
	for i, tt := range tests {
		if got[i].ID != i || got[i].Tag != tt.tag || got[i].TextContent != tt.text {
			t.Errorf("元素 %d = %+v, want %s/%s", i, got[i], tt.tag, tt.text)
		}
	}

	if got[0].DomID != "load-more" || got[0].ParentTag != "body" {
		t.Errorf("按钮属性 = %+v", got[0])
	}
	if got[1].Href != "/list?page=2" {
		t.Errorf("Href = %q", got[1].Href)
	}
	if got[3].ParentTag != "details" {
		t.Errorf("summary 父元素 = %q, want details", got[3].ParentTag)
	}
}
