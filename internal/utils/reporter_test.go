package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

func sampleReport() *models.RunReport {
	report := models.NewRunReport(models.DefaultExploreConfig("https://s.test/"))
	report.Results = []models.TargetResult{
		{TargetLabel: "Widget", URL: "https://s.test/a"},
		{TargetLabel: "Widget (dynamic)", URL: "https://s.test/a"},
		{TargetLabel: "Gadget", URL: "https://s.test/b"},
	}
	report.Tree = "└── ✓ (root) [2/2 explored]"
	return report
}

func TestReporter_GenerateReport(t *testing.T) {
	out := t.TempDir()
	reporter := NewReporter(out, true, true)

	dir, err := reporter.GenerateReport(sampleReport(), "")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if dir != filepath.Join(out, "s.test", "reports") {
		t.Errorf("报告目录 = %s", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, RecordsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var records []models.OutputRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].TargetLabel != "Widget" || records[1].URL != "https://s.test/b" {
		t.Errorf("records = %+v", records)
	}
	if !strings.Contains(string(data), `"targetLabel"`) {
		t.Errorf("输出字段名应为 targetLabel: %s", data)
	}

	tree, err := os.ReadFile(filepath.Join(dir, TreeFileName))
	if err != nil || !strings.Contains(string(tree), "(root)") {
		t.Errorf("页面树 = %q, err = %v", tree, err)
	}

	full, err := os.ReadFile(filepath.Join(dir, ReportFileName))
	if err != nil {
		t.Fatal(err)
	}
	var back models.RunReport
	if err := back.FromJSON(full); err != nil || len(back.Results) != 3 {
		t.Errorf("完整报告应保留所有结果: %v, %d", err, len(back.Results))
	}
}

func TestReporter_OverridePathAndFlatLayout(t *testing.T) {
	out := t.TempDir()
	reporter := NewReporter(out, false, false)
	override := filepath.Join(out, "custom", "doors.json")

	dir, err := reporter.GenerateReport(sampleReport(), override)
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(out, "reports") {
		t.Errorf("报告目录 = %s", dir)
	}
	if _, err := os.Stat(override); err != nil {
		t.Errorf("目标列表应写到指定路径: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, TreeFileName)); !os.IsNotExist(err) {
		t.Error("save_tree=false 时不应写页面树")
	}
}
