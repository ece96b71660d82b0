package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func initTestLogger(t *testing.T, level string) (string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	console := &bytes.Buffer{}
	config := DefaultLogConfig()
	config.Level = level
	config.LogDir = dir
	config.Compress = false
	config.Console = console
	config.NoColor = true
	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	return dir, console
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	return string(content)
}

func TestInitLogger_SplitsErrorLog(t *testing.T) {
	dir, _ := initTestLogger(t, "info")

	Infof("📄 处理页面 %s", "https://s.test/")
	Warn("⚠️  高分链接没有名称")
	Debugf("这条不应出现")
	Errorf("❌ 页面处理失败: %s", "timeout")

	main := readLog(t, filepath.Join(dir, MainLogName))
	for _, want := range []string{"处理页面", "高分链接没有名称", "页面处理失败"} {
		if !strings.Contains(main, want) {
			t.Errorf("主日志缺少 %q", want)
		}
	}
	if strings.Contains(main, "这条不应出现") {
		t.Error("info级别不应写入debug日志")
	}

	errLog := readLog(t, filepath.Join(dir, ErrorLogName))
	if !strings.Contains(errLog, "页面处理失败") {
		t.Error("错误日志缺少error级别消息")
	}
	if strings.Contains(errLog, "处理页面") || strings.Contains(errLog, "高分链接") {
		t.Errorf("错误日志不应包含低级别消息: %s", errLog)
	}
}

func TestInitLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	dir, _ := initTestLogger(t, "loud")

	Info("信息")
	Debugf("调试 %d", 1)

	main := readLog(t, filepath.Join(dir, MainLogName))
	if !strings.Contains(main, "信息") || strings.Contains(main, "调试") {
		t.Errorf("未知级别应按info处理: %s", main)
	}
}

func TestInitLogger_ConsoleWriter(t *testing.T) {
	_, console := initTestLogger(t, "debug")

	Debugf("🔍 候选 %d 个", 3)
	Warnf("⚠️  评分回退 %s", "https://s.test/a")

	out := console.String()
	for _, want := range []string{"候选 3 个", "评分回退 https://s.test/a"} {
		if !strings.Contains(out, want) {
			t.Errorf("控制台缺少 %q: %s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("NoColor 时不应输出颜色码")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()
	if config.Level != "info" || config.LogDir != "logs" {
		t.Errorf("DefaultLogConfig() = %+v", config)
	}
	if config.MaxSize != 10 || config.MaxBackups != 3 || config.MaxAge != 28 || !config.Compress {
		t.Errorf("轮转默认值错误: %+v", config)
	}
}
