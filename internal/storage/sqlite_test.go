package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

func openMemory(t *testing.T) *ResultStore {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun() (*models.RunReport, *models.PageNode) {
	root := models.NewRootNode("https://s.test/")
	cat := root.AddChild("https://s.test/doors", "/doors")
	cat.ApplyScore(7, "")
	cat.MarkExplored()
	leaf := cat.AddChild("https://s.test/doors/oak-42", "/doors/oak-42")
	leaf.ApplyScore(9.5, "Oak Door 42")
	leaf.MarkExplored()
	root.MarkExplored()

	report := models.NewRunReport(models.DefaultExploreConfig("https://s.test/"))
	report.EndTime = report.StartTime.Add(time.Minute)
	now := time.Now()
	report.Results = []models.TargetResult{
		{TargetLabel: "Oak Door 42", URL: leaf.URL, SourceURL: cat.URL, Score: 9.5, Origin: models.OriginStatic, FoundAt: now},
		{TargetLabel: "Oak Door 42", URL: leaf.URL, Score: 9.2, Origin: models.OriginDynamic, FoundAt: now.Add(time.Second)},
	}
	report.Stats = models.RunStats{PagesProcessed: 2, TotalNodes: 3, TargetsFound: 2, HaltReason: models.HaltFrontierEmpty}
	return report, root
}

func TestResultStore_SaveRun(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	report, root := sampleRun()

	if err := store.SaveRun(ctx, report, root); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	targets, err := store.Targets(ctx, report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 {
		t.Fatalf("按URL去重后应只有1个目标, got %+v", targets)
	}
	got := targets[0]
	if got.TargetLabel != "Oak Door 42" || got.SourceURL != "https://s.test/doors" || got.Origin != models.OriginStatic {
		t.Errorf("target = %+v", got)
	}

	n, err := store.NodeCount(ctx, report.RunID)
	if err != nil || n != 3 {
		t.Errorf("NodeCount() = %d, %v", n, err)
	}

	known, err := store.KnownTargetURLs(ctx, "s.test")
	if err != nil || known["https://s.test/doors/oak-42"] != "Oak Door 42" {
		t.Errorf("KnownTargetURLs() = %v, %v", known, err)
	}
	if other, _ := store.KnownTargetURLs(ctx, "other.test"); len(other) != 0 {
		t.Errorf("其他域名不应有结果: %v", other)
	}
}

func TestResultStore_DuplicateRunRollsBack(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	report, root := sampleRun()

	if err := store.SaveRun(ctx, report, root); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(ctx, report, nil); err == nil {
		t.Error("重复的run_id应返回错误")
	}
	if n, _ := store.NodeCount(ctx, report.RunID); n != 3 {
		t.Errorf("失败的事务不应影响已有数据, nodes = %d", n)
	}
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	report, _ := sampleRun()
	if err := store.SaveRun(context.Background(), report, nil); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	targets, err := reopened.Targets(context.Background(), report.RunID)
	if err != nil || len(targets) != 1 {
		t.Errorf("重新打开后 Targets() = %d, %v", len(targets), err)
	}
}
