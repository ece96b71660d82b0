package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/schollz/progressbar/v3"
)

// 报告文件名
const (
	ReportFileName  = "run_report.json"
	RecordsFileName = "targets.json"
	TreeFileName    = "page_tree.txt"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir        string
	domainSeparation bool
	saveTree         bool
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, domainSeparation, saveTree bool) *Reporter {
	return &Reporter{
		outputDir:        outputDir,
		domainSeparation: domainSeparation,
		saveTree:         saveTree,
	}
}

// ReportDir 报告目录: <output>/<domain>/reports 或 <output>/reports
func (r *Reporter) ReportDir(domain string) string {
	if r.domainSeparation && domain != "" {
		return filepath.Join(r.outputDir, domain, "reports")
	}
	return filepath.Join(r.outputDir, "reports")
}

// GenerateReport 写出完整报告、去重后的目标列表和页面树,返回报告目录
// overridePath 非空时目标列表写到该路径
func (r *Reporter) GenerateReport(report *models.RunReport, overridePath string) (string, error) {
	dir := r.ReportDir(report.Domain)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	if err := r.saveJSONReport(filepath.Join(dir, ReportFileName), report); err != nil {
		return "", err
	}

	recordsPath := filepath.Join(dir, RecordsFileName)
	if overridePath != "" {
		if err := os.MkdirAll(filepath.Dir(overridePath), 0755); err != nil {
			return "", fmt.Errorf("创建输出目录失败: %w", err)
		}
		recordsPath = overridePath
	}
	if err := r.saveJSONReport(recordsPath, report.Records()); err != nil {
		return "", err
	}

	if r.saveTree && report.Tree != "" {
		treePath := filepath.Join(dir, TreeFileName)
		if err := os.WriteFile(treePath, []byte(report.Tree+"\n"), 0644); err != nil {
			return "", fmt.Errorf("写入页面树失败: %w", err)
		}
		Debugf("保存页面树: %s", treePath)
	}

	Infof("✅ 报告已生成: %s", dir)
	return dir, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
