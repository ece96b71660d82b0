package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// scriptedClient 依次返回预设响应,用完后重复最后一个
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
	prompts   []Prompt
}

func (c *scriptedClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if len(c.responses) == 0 {
		return "", models.ErrEmptyResponse
	}
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

func noDelay() Option {
	return WithRetryPolicy(RetryPolicy{MaxAttempts: 4})
}

func twoCandidates() []models.Candidate {
	return []models.Candidate{
		{ID: 0, URL: "https://s.test/a", RelativePath: "/a", Label: "A"},
		{ID: 1, URL: "https://s.test/b", RelativePath: "/b", Label: "B"},
	}
}

func TestScoreBatch(t *testing.T) {
	tests := []struct {
		name         string
		client       *scriptedClient
		wantValid    bool
		wantAttempts int
		wantScores   []float64
		wantLabels   []string
		wantSynth    []bool
	}{
		{
			name: "第一次即有效",
			client: &scriptedClient{responses: []string{
				`Sure! [{"id":0,"score":9.5,"targetLabel":"Widget"},{"id":1,"score":0.2}]`,
			}},
			wantValid:    true,
			wantAttempts: 1,
			wantScores:   []float64{9.5, 0.2},
			wantLabels:   []string{"Widget", ""},
			wantSynth:    []bool{false, false},
		},
		{
			name: "重试后有效",
			client: &scriptedClient{responses: []string{
				`not json at all`,
				`[{"id":0,"score":2}]`,
				`[{"id":1,"score":4},{"id":0,"score":6,"productName":"Door"}]`,
			}},
			wantValid:    true,
			wantAttempts: 3,
			wantScores:   []float64{6, 4},
			wantLabels:   []string{"Door", ""},
			wantSynth:    []bool{false, false},
		},
		{
			name: "重试用尽保留最后的短数组",
			client: &scriptedClient{responses: []string{
				`[{"id":0,"score":5.0}]`,
			}},
			wantValid:    false,
			wantAttempts: 4,
			wantScores:   []float64{5.0, 0},
			wantLabels:   []string{"", ""},
			wantSynth:    []bool{false, true},
		},
		{
			name: "缺少score的项合成0分",
			client: &scriptedClient{responses: []string{
				`[{"id":0,"score":7},{"id":1}]`,
			}},
			wantValid:    false,
			wantAttempts: 4,
			wantScores:   []float64{7, 0},
			wantLabels:   []string{"", ""},
			wantSynth:    []bool{false, true},
		},
		{
			name:         "全部失败时全部为0",
			client:       &scriptedClient{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom")}},
			wantValid:    false,
			wantAttempts: 4,
			wantScores:   []float64{0, 0},
			wantLabels:   []string{"", ""},
			wantSynth:    []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(tt.client, noDelay())
			candidates := twoCandidates()

			outcome := s.ScoreBatch(context.Background(), candidates, "")
			if outcome.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (err=%v)", outcome.Valid, tt.wantValid, outcome.Err)
			}
			if outcome.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", outcome.Attempts, tt.wantAttempts)
			}

			results := outcome.Resolve(candidates)
			if len(results) != len(candidates) {
				t.Fatalf("结果数量 = %d, want %d", len(results), len(candidates))
			}
			for i, r := range results {
				if r.ID != candidates[i].ID {
					t.Errorf("结果 %d ID = %d", i, r.ID)
				}
				if r.Score != tt.wantScores[i] {
					t.Errorf("结果 %d Score = %v, want %v", i, r.Score, tt.wantScores[i])
				}
				if r.TargetLabel != tt.wantLabels[i] {
					t.Errorf("结果 %d TargetLabel = %q, want %q", i, r.TargetLabel, tt.wantLabels[i])
				}
				if r.Synthesized != tt.wantSynth[i] {
					t.Errorf("结果 %d Synthesized = %v, want %v", i, r.Synthesized, tt.wantSynth[i])
				}
			}
		})
	}
}

func TestScoreBatch_RetriesBypassCache(t *testing.T) {
	client := &scriptedClient{responses: []string{`[]`, `[{"id":0,"score":1},{"id":1,"score":2}]`}}
	s := NewScorer(client, noDelay())

	s.ScoreBatch(context.Background(), twoCandidates(), "")

	if len(client.prompts) != 2 {
		t.Fatalf("调用次数 = %d, want 2", len(client.prompts))
	}
	if client.prompts[0].NoCache || !client.prompts[1].NoCache {
		t.Error("只有重试请求应跳过缓存")
	}
	if !strings.Contains(client.prompts[0].Instruction, `"relative_path": "/a"`) {
		t.Errorf("提示词缺少候选信息: %s", client.prompts[0].Instruction)
	}
}

func TestScoreBatch_EmptyBatchSkipsClient(t *testing.T) {
	client := &scriptedClient{}
	outcome := NewScorer(client, noDelay()).ScoreBatch(context.Background(), nil, "")
	if !outcome.Valid || client.calls != 0 {
		t.Errorf("空批次不应调用后端: valid=%v calls=%d", outcome.Valid, client.calls)
	}
}

func TestResolve(t *testing.T) {
	id := func(i int) *int { return &i }
	candidates := []models.Candidate{{ID: 0}, {ID: 1}, {ID: 2}}

	tests := []struct {
		name      string
		items     []ScoreItem
		want      []float64
		wantSynth []bool
	}{
		{
			name:      "按id匹配,顺序无关",
			items:     []ScoreItem{{ID: id(2), Score: 3, HasScore: true}, {ID: id(0), Score: 1, HasScore: true}, {ID: id(1), Score: 2, HasScore: true}},
			want:      []float64{1, 2, 3},
			wantSynth: []bool{false, false, false},
		},
		{
			name:      "没有id时按位置",
			items:     []ScoreItem{{Score: 4, HasScore: true}, {Score: 5, HasScore: true}},
			want:      []float64{4, 5, 0},
			wantSynth: []bool{false, false, true},
		},
		{
			name:      "位置上的项属于别的id时不使用",
			items:     []ScoreItem{{ID: id(1), Score: 8, HasScore: true}},
			want:      []float64{0, 8, 0},
			wantSynth: []bool{true, false, true},
		},
		{
			name:      "空响应",
			items:     nil,
			want:      []float64{0, 0, 0},
			wantSynth: []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(candidates, tt.items)
			for i := range candidates {
				if got[i].Score != tt.want[i] || got[i].Synthesized != tt.wantSynth[i] {
					t.Errorf("候选 %d = %+v, want score=%v synthesized=%v", i, got[i], tt.want[i], tt.wantSynth[i])
				}
			}
		})
	}
}

func TestParseScoreItems_ClampsAndValidates(t *testing.T) {
	items, err := parseScoreItems(`[{"id":0,"score":12},{"id":1.5,"score":-3},"x"]`)
	if err != nil {
		t.Fatalf("parseScoreItems() error = %v", err)
	}
	if items[0].Score != 10 || items[1].Score != 0 {
		t.Errorf("分数未截断到[0,10]: %+v", items)
	}
	if err := validateScoreItems(items, 3); !errors.Is(err, models.ErrInvalidResponse) {
		t.Errorf("非整数id和非对象项应校验失败, got %v", err)
	}
}

func TestVerifyTarget(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantLabel string
		wantOK    bool
	}{
		{"确认是目标页", "```json\n{\"isProductPage\": true, \"productName\": \" Oak Door \"}\n```", "Oak Door", true},
		{"不是目标页", `{"isProductPage": false}`, "", false},
		{"无法解析", `maybe`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(&scriptedClient{responses: []string{tt.response}}, noDelay())
			label, ok := s.VerifyTarget(context.Background(), "https://s.test/p/1", "Title: Oak Door")
			if label != tt.wantLabel || ok != tt.wantOK {
				t.Errorf("VerifyTarget() = %q, %v, want %q, %v", label, ok, tt.wantLabel, tt.wantOK)
			}
		})
	}
}

func TestDetectTriggers(t *testing.T) {
	elements := []models.DynamicElement{
		{ID: 0, Tag: "button", TextContent: "Load more"},
		{ID: 1, Tag: "a", TextContent: "2"},
		{ID: 2, Tag: "div", TextContent: "Specs"},
	}
	response := `[{"id":0,"triggerType":"Load More"},{"id":1,"triggerType":"pagination"},` +
		`{"id":2,"triggerType":"Carousel"},{"id":9,"triggerType":"Tabs"},{"id":-1},{"id":0,"triggerType":"Tabs"}]`

	s := NewScorer(&scriptedClient{responses: []string{response}}, noDelay())
	got := s.DetectTriggers(context.Background(), elements)

	if len(got) != 2 {
		t.Fatalf("触发器数量 = %d, want 2: %+v", len(got), got)
	}
	if got[0].ElementID != 0 || got[0].Type != models.TriggerLoadMore {
		t.Errorf("第一个触发器 = %+v", got[0])
	}
	if got[1].ElementID != 1 || got[1].Type != models.TriggerPagination || got[1].Element.TextContent != "2" {
		t.Errorf("第二个触发器 = %+v", got[1])
	}

	none := NewScorer(&scriptedClient{responses: []string{`[{"id": -1}]`}}, noDelay())
	if got := none.DetectTriggers(context.Background(), elements); len(got) != 0 {
		t.Errorf("id=-1 应返回空, got %+v", got)
	}
}
