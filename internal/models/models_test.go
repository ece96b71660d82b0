package models

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExploreConfig_Validate(t *testing.T) {
	valid := DefaultExploreConfig("https://example.com")

	tests := []struct {
		name    string
		mutate  func(c *ExploreConfig)
		wantErr bool
	}{
		{"默认配置有效", func(c *ExploreConfig) {}, false},
		{"预算为0", func(c *ExploreConfig) { c.MaxPages = 0 }, true},
		{"负延迟", func(c *ExploreConfig) { c.Delay = -time.Second }, true},
		{"低阈值不小于高阈值", func(c *ExploreConfig) { c.LowThreshold = 9 }, true},
		{"高阈值超过10", func(c *ExploreConfig) { c.HighThreshold = 11 }, true},
		{"起始URL无效", func(c *ExploreConfig) { c.StartURL = "ftp://x" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if got := valid.Domain(); got != "example.com" {
		t.Errorf("Domain() = %v, want example.com", got)
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"小写scheme和host并去掉默认端口", "HTTPS://Example.COM:443/Path?q=1#frag", "https://example.com/Path?q=1"},
		{"空路径补斜杠", "http://example.com", "http://example.com/"},
		{"保留非默认端口", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"去掉fragment", "https://example.com/a#b", "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanonicalURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameDomain(t *testing.T) {
	tests := []struct {
		host, domain string
		want         bool
	}{
		{"example.com", "example.com", true},
		{"www.example.com", "example.com", true},
		{"Example.com:8080", "www.example.com", true},
		{"shop.example.com", "example.com", false},
		{"evil.com", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host+"_"+tt.domain, func(t *testing.T) {
			if got := SameDomain(tt.host, tt.domain); got != tt.want {
				t.Errorf("SameDomain(%q, %q) = %v, want %v", tt.host, tt.domain, got, tt.want)
			}
		})
	}
}

func TestPageNode_AddChildIsIdempotent(t *testing.T) {
	root := NewRootNode("https://example.com/")
	a := root.AddChild("https://example.com/a", "/a")
	a.ApplyScore(5, "")

	again := root.AddChild("https://example.com/a", "/a")
	if again != a {
		t.Fatal("同一URL应返回同一节点")
	}
	if root.TotalChildren() != 1 {
		t.Errorf("TotalChildren() = %d, want 1", root.TotalChildren())
	}
	if a.Depth != 1 || a.Parent != root {
		t.Errorf("子节点深度或父节点错误: depth=%d", a.Depth)
	}

	// 重复评分覆盖而不是平均
	again.ApplyScore(7, "Chair")
	if a.DirectScore != 7 || a.TargetLabel != "Chair" {
		t.Errorf("ApplyScore 未覆盖: score=%v label=%q", a.DirectScore, a.TargetLabel)
	}
	again.ApplyScore(8, "")
	if a.TargetLabel != "Chair" {
		t.Error("空标签不应覆盖已有标签")
	}
}

func TestPageNode_AddChildKeysByURL(t *testing.T) {
	root := NewRootNode("https://example.com/")
	secure := root.AddChild("https://example.com/cat", "/cat")
	plain := root.AddChild("http://example.com/cat", "/cat")
	www := root.AddChild("https://www.example.com/cat", "/cat")

	if secure == plain || secure == www || plain == www {
		t.Fatal("相对路径相同的不同URL应是不同节点")
	}
	if root.TotalChildren() != 3 {
		t.Errorf("TotalChildren() = %d, want 3", root.TotalChildren())
	}

	plain.ApplyScore(0.2, "")
	if secure.Scored {
		t.Error("给一个节点评分不应影响同路径的其他节点")
	}
}

func TestPageNode_AncestorAverage(t *testing.T) {
	root := NewRootNode("https://example.com/")
	if got := root.AncestorAverage(); got != 0 {
		t.Errorf("未评分链的平均值 = %v, want 0", got)
	}

	a := root.AddChild("https://example.com/a", "/a")
	a.ApplyScore(6, "")
	b := a.AddChild("https://example.com/a/b", "/a/b")
	b.ApplyScore(8, "")

	// 根未评分,不计入
	if got := b.AncestorAverage(); math.Abs(got-7) > 1e-9 {
		t.Errorf("AncestorAverage() = %v, want 7", got)
	}

	lineage := b.Lineage()
	if len(lineage) != 3 || lineage[0] != root || lineage[2] != b {
		t.Errorf("Lineage() 顺序错误: %d 项", len(lineage))
	}
	if root.MaxDepth() != 2 {
		t.Errorf("MaxDepth() = %d, want 2", root.MaxDepth())
	}
}

func TestPageNode_MarkExplored(t *testing.T) {
	n := NewRootNode("https://example.com/")
	if !n.MarkExplored() {
		t.Error("第一次标记应返回true")
	}
	if n.MarkExplored() {
		t.Error("第二次标记应返回false")
	}
}

func TestPageNode_RenderTree(t *testing.T) {
	root := NewRootNode("https://example.com/")
	root.MarkExplored()
	a := root.AddChild("https://example.com/a", "/a")
	a.MarkExplored()
	a.ApplyScore(9.5, "Chair")
	root.AddChild("https://example.com/b", "/b")

	want := strings.Join([]string{
		"└── ✓ (root) [1/2 explored]",
		"    ├── ✓ /a [0/0 explored] 🎯 Chair",
		"    └── ○ /b [0/0 explored]",
	}, "\n")
	if got := root.RenderTree(); got != want {
		t.Errorf("RenderTree() =\n%s\nwant\n%s", got, want)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		want  Classification
	}{
		{0.5, ClassSkip},
		{1.0, ClassExplore},
		{5, ClassExplore},
		{9.0, ClassExplore},
		{9.1, ClassTarget},
	}
	for _, tt := range tests {
		if got := Classify(tt.score, DefaultLowThreshold, DefaultHighThreshold); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestParseTriggerType(t *testing.T) {
	tests := []struct {
		in      string
		want    TriggerType
		wantErr bool
	}{
		{"Pagination", TriggerPagination, false},
		{"Load More", TriggerLoadMore, false},
		{"load-more", TriggerLoadMore, false},
		{"LoadMore", TriggerLoadMore, false},
		{"tabs", TriggerTabs, false},
		{"Accordion", TriggerAccordions, false},
		{"Expanders", TriggerExpanders, false},
		{"infinite_scroll", TriggerInfiniteScroll, false},
		{"carousel", TriggerUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTriggerType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTriggerType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTriggerType() = %v, want %v", got, tt.want)
			}
		})
	}

	if !TriggerPagination.Iterative() || !TriggerLoadMore.Iterative() || TriggerTabs.Iterative() {
		t.Error("只有 Pagination 和 LoadMore 是迭代型")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("椅", 250)
	if got := Truncate(long, MaxLabelLength); len([]rune(got)) != MaxLabelLength {
		t.Errorf("截断后长度 = %d, want %d", len([]rune(got)), MaxLabelLength)
	}
	if got := Truncate("  short  ", 10); got != "short" {
		t.Errorf("Truncate() = %q, want %q", got, "short")
	}
}

func TestDedupResults(t *testing.T) {
	results := []TargetResult{
		{TargetLabel: "Office Chair", URL: "https://example.com/p/1"},
		{TargetLabel: "Desk", URL: "https://example.com/p/1"},
		{TargetLabel: "office  chair", URL: "https://example.com/p/2"},
		{TargetLabel: "Lamp", URL: "https://example.com/p/3"},
	}

	got := DedupResults(results)
	if len(got) != 3 {
		t.Fatalf("去重后数量 = %d, want 3", len(got))
	}
	if got[0].TargetLabel != "Office Chair" || got[1].URL != "https://example.com/p/2" || got[2].TargetLabel != "Lamp" {
		t.Errorf("去重顺序错误: %+v", got)
	}

	// 同名不同URL的变体都保留
	report := &RunReport{Results: results}
	records := report.Records()
	if len(records) != 3 || records[0].TargetLabel != "Office Chair" || records[1].TargetLabel != "office  chair" {
		t.Errorf("Records() = %+v", records)
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	headers, err := CliHeaders{"Cookie: a=b", "X-Token:  abc "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if headers.Get("Cookie") != "a=b" || headers.Get("X-Token") != "abc" {
		t.Errorf("Parse() = %v", headers)
	}

	if _, err := (CliHeaders{"NoColon"}).Parse(); err == nil {
		t.Error("缺少冒号应返回错误")
	}
	if _, err := (CliHeaders{": value"}).Parse(); err == nil {
		t.Error("空名称应返回错误")
	}
}

func TestBatchTask_Apply(t *testing.T) {
	base := DefaultExploreConfig("https://placeholder.com")

	cfg, err := BatchTask{URL: "https://shop.com", MaxPages: 5, Delay: "2s"}.Apply(base)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.StartURL != "https://shop.com" || cfg.MaxPages != 5 || cfg.Delay != 2*time.Second {
		t.Errorf("Apply() = %+v", cfg)
	}

	if _, err := (BatchTask{URL: "https://shop.com", Delay: "soon"}).Apply(base); err == nil {
		t.Error("无效延迟应返回错误")
	}
}
