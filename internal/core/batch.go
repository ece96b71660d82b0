package core

import (
	"context"
	"fmt"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

// Runner 执行单次探索
type Runner interface {
	Crawl(ctx context.Context, explore models.ExploreConfig, outputPath string) (*models.RunReport, error)
}

// BatchCrawler 批量爬取器,按顺序逐个执行任务
type BatchCrawler struct {
	runner        Runner
	base          models.ExploreConfig
	batchDelay    time.Duration
	continueOnErr bool
}

// BatchResult 单个任务的结果
type BatchResult struct {
	URL         string
	Success     bool
	Error       error
	Stats       models.RunStats
	Records     int
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	TotalTasks    int
	SuccessCount  int
	FailCount     int
	TotalTargets  int
	TotalPages    int
	TotalDuration float64
	Cancelled     bool
	Results       []BatchResult
}

// NewBatchCrawler 创建批量爬取器,base 提供任务未覆盖的探索参数
func NewBatchCrawler(runner Runner, base models.ExploreConfig, batchDelay time.Duration, continueOnErr bool) *BatchCrawler {
	return &BatchCrawler{
		runner:        runner,
		base:          base,
		batchDelay:    batchDelay,
		continueOnErr: continueOnErr,
	}
}

// TasksFromURLs 把URL列表转成任务
func TasksFromURLs(urls []string) []models.BatchTask {
	tasks := make([]models.BatchTask, 0, len(urls))
	for _, u := range urls {
		tasks = append(tasks, models.BatchTask{URL: u})
	}
	return tasks
}

// CrawlBatch 批量执行任务,ctx取消后停止后续任务
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, tasks []models.BatchTask) *BatchSummary {
	utils.Infof("🚀 开始批量探索: %d个任务", len(tasks))

	summary := &BatchSummary{
		TotalTasks: len(tasks),
		Results:    make([]BatchResult, 0, len(tasks)),
	}
	startTime := time.Now()

	for i, task := range tasks {
		if ctx.Err() != nil {
			summary.Cancelled = true
			utils.Warnf("批量探索已取消, 剩余 %d 个任务未执行", len(tasks)-i)
			break
		}

		utils.Infof("==================== [%d/%d] ====================", i+1, len(tasks))
		utils.Infof("目标URL: %s", task.URL)

		result := bc.crawlTask(ctx, task)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalTargets += result.Records
			summary.TotalPages += result.Stats.PagesProcessed
		} else {
			summary.FailCount++
			utils.Errorf("❌ 探索失败: %v", result.Error)
			if !bc.continueOnErr {
				utils.Warn("批量探索中止 (--continue-on-error=false)")
				break
			}
		}

		// 最后一个任务不需要延迟
		if i < len(tasks)-1 && bc.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个任务...", bc.batchDelay.Seconds())
			if err := sleepContext(ctx, bc.batchDelay); err != nil {
				summary.Cancelled = true
				break
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bc.printSummary(summary)
	return summary
}

// crawlTask 执行单个任务,配置错误也记为失败
func (bc *BatchCrawler) crawlTask(ctx context.Context, task models.BatchTask) BatchResult {
	result := BatchResult{URL: task.URL, ProcessedAt: time.Now()}
	startTime := time.Now()

	explore, err := task.Apply(bc.base)
	if err != nil {
		result.Error = fmt.Errorf("任务配置无效: %w", err)
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	report, err := bc.runner.Crawl(ctx, explore, task.Output)
	if err != nil {
		result.Error = fmt.Errorf("探索失败: %w", err)
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	result.Success = true
	result.Stats = report.Stats
	result.Records = len(report.Records())
	result.Duration = time.Since(startTime).Seconds()
	return result
}

// printSummary 打印批量摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量探索摘要")
	utils.Info("==================================================")
	utils.Infof("总任务数: %d", summary.TotalTasks)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("🎯 目标总数: %d", summary.TotalTargets)
	utils.Infof("📄 处理页面: %d", summary.TotalPages)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的任务:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
