package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"gopkg.in/yaml.v3"
)

// ReadURLsFromFile 从文件中读取URL列表,跳过空行、注释和无效URL
func ReadURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	urls := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := models.ValidateURL(line); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			continue
		}
		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL")
	}

	Infof("从文件加载了 %d 个URL", len(urls))
	return urls, nil
}

// taskFile 批量任务文件
//
//	tasks:
//	  - url: https://example.com/catalog
//	    max_pages: 20
//	    delay: 2s
type taskFile struct {
	Tasks []models.BatchTask `yaml:"tasks"`
}

// LoadTaskFile 读取YAML任务文件,缺少url的任务直接报错
func LoadTaskFile(path string) ([]models.BatchTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取任务文件失败: %w", err)
	}

	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("任务文件中没有任务: %s", path)
	}
	for i, task := range file.Tasks {
		if err := models.ValidateURL(task.URL); err != nil {
			return nil, fmt.Errorf("任务 %d 的URL无效: %w", i+1, err)
		}
	}

	Infof("从任务文件加载了 %d 个任务", len(file.Tasks))
	return file.Tasks, nil
}
