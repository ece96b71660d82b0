package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

type fakeRunner struct {
	fail    map[string]bool
	seen    []models.ExploreConfig
	outputs []string
	cancel  context.CancelFunc // 第一次调用后取消
}

func (r *fakeRunner) Crawl(ctx context.Context, explore models.ExploreConfig, outputPath string) (*models.RunReport, error) {
	r.seen = append(r.seen, explore)
	r.outputs = append(r.outputs, outputPath)
	if r.cancel != nil {
		r.cancel()
	}
	if r.fail[explore.StartURL] {
		return nil, errors.New("boom")
	}
	report := models.NewRunReport(explore)
	report.Results = []models.TargetResult{{TargetLabel: "T", URL: explore.StartURL + "t"}}
	report.Stats.PagesProcessed = 3
	return report, nil
}

func TestBatchCrawler_CrawlBatch(t *testing.T) {
	base := testConfig(50)
	tasks := []models.BatchTask{
		{URL: "https://a.test/", MaxPages: 5, Delay: "10ms", Output: "out/a.json"},
		{URL: "https://b.test/"},
		{URL: "https://c.test/", Delay: "soon"},
		{URL: "https://d.test/"},
	}

	tests := []struct {
		name          string
		continueOnErr bool
		wantRuns      int
		wantSuccess   int
		wantFail      int
	}{
		{"遇错继续", true, 3, 2, 2},
		{"遇错中止", false, 2, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{fail: map[string]bool{"https://b.test/": true}}
			summary := NewBatchCrawler(runner, base, 0, tt.continueOnErr).CrawlBatch(context.Background(), tasks)

			if len(runner.seen) != tt.wantRuns {
				t.Errorf("执行次数 = %d, want %d", len(runner.seen), tt.wantRuns)
			}
			if summary.SuccessCount != tt.wantSuccess || summary.FailCount != tt.wantFail {
				t.Errorf("成功/失败 = %d/%d, want %d/%d", summary.SuccessCount, summary.FailCount, tt.wantSuccess, tt.wantFail)
			}

			first := runner.seen[0]
			if first.MaxPages != 5 || first.Delay != 10*time.Millisecond || runner.outputs[0] != "out/a.json" {
				t.Errorf("任务覆盖项未生效: %+v, output=%q", first, runner.outputs[0])
			}
			if runner.seen[1].MaxPages != 50 {
				t.Errorf("未覆盖的项应来自基础配置: %d", runner.seen[1].MaxPages)
			}
		})
	}
}

func TestBatchCrawler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{cancel: cancel}

	summary := NewBatchCrawler(runner, testConfig(5), time.Hour, true).
		CrawlBatch(ctx, TasksFromURLs([]string{"https://a.test/", "https://b.test/"}))

	if len(runner.seen) != 1 || !summary.Cancelled {
		t.Errorf("取消后不应继续: runs=%d cancelled=%v", len(runner.seen), summary.Cancelled)
	}
	if summary.TotalTargets != 1 || summary.TotalPages != 3 {
		t.Errorf("summary = %+v", summary)
	}
}
