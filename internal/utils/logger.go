package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志目录下的文件名
const (
	MainLogName  = "bim_crawler.log"
	ErrorLogName = "bim_crawler_error.log"
)

// Logger 全局日志器, crawlers 包直接用 zerolog/log, 其余包走下面的快捷方法
var Logger = zerolog.Nop()

// LogConfig 对应配置文件的 logging 段
type LogConfig struct {
	Level      string
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool

	Console io.Writer // nil 时为 stdout
	NoColor bool
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// InitLogger 控制台 + 主日志 + 只收 error 的错误日志, 未知级别按 info
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := config.Console
	if console == nil {
		console = os.Stdout
	}

	out := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339, NoColor: config.NoColor},
		config.rotating(MainLogName),
		levelGate{w: config.rotating(ErrorLogName), min: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().Str("level", level.String()).Str("log_dir", config.LogDir).Msg("📝 日志已就绪")
	return nil
}

// levelGate 只放行 min 及以上的记录, MultiLevelWriter 会调用 WriteLevel
type levelGate struct {
	w   io.Writer
	min zerolog.Level
}

func (g levelGate) Write(p []byte) (int, error) { return len(p), nil }

func (g levelGate) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < g.min {
		return len(p), nil
	}
	return g.w.Write(p)
}

// Info 信息日志
func Info(msg string) { Logger.Info().Msg(msg) }

// Warn 警告日志
func Warn(msg string) { Logger.Warn().Msg(msg) }

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) { Logger.Info().Msgf(format, args...) }

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) { Logger.Warn().Msgf(format, args...) }

// Errorf 格式化错误日志, 同时进入错误日志文件
func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) { Logger.Debug().Msgf(format, args...) }
