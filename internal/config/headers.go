package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultHeadersFile 默认头部文件路径
	DefaultHeadersFile = "configs/headers.yaml"

	// MaxHeadersFileSize 头部文件最大大小 (1MB)
	MaxHeadersFileSize = 1 * 1024 * 1024
)

//go:embed headers_template.yaml
var headersTemplate string

// headersFile 头部文件结构
type headersFile struct {
	Headers map[string]string `mapstructure:"headers"`
}

// HeaderFileLoader 加载可选的HTTP头部文件
// 文件不存在时视为没有配置,不报错
type HeaderFileLoader struct {
	path string
}

// NewHeaderFileLoader 创建头部文件加载器,path为空时使用默认路径
func NewHeaderFileLoader(path string) *HeaderFileLoader {
	if path == "" {
		path = DefaultHeadersFile
	}
	return &HeaderFileLoader{path: path}
}

// Path 返回文件路径
func (l *HeaderFileLoader) Path() string {
	return l.path
}

// WriteTemplate 文件不存在时写入模板,返回是否新建了文件
func (l *HeaderFileLoader) WriteTemplate() (bool, error) {
	if _, err := os.Stat(l.path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("无法读取头部文件信息 [%s]: %w", l.path, err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}
	if err := os.WriteFile(l.path, []byte(headersTemplate), 0644); err != nil {
		return false, fmt.Errorf("无法生成头部文件 [%s]: %w", l.path, err)
	}
	return true, nil
}

// Load 读取头部文件
func (l *HeaderFileLoader) Load() (map[string]string, error) {
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		utils.Debugf("头部文件不存在, 跳过: %s", l.path)
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, &models.ConfigError{FilePath: l.path, Cause: err}
	}
	if info.Size() > MaxHeadersFileSize {
		return nil, &models.ConfigError{
			FilePath: l.path,
			Cause:    fmt.Errorf("头部文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxHeadersFileSize),
		}
	}

	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 文件被其他进程锁定时降级为空配置
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("头部文件被锁定 [%s], 忽略", l.path)
			return map[string]string{}, nil
		}
		return nil, &models.ConfigError{FilePath: l.path, Cause: err}
	}

	var file headersFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, &models.ConfigError{FilePath: l.path, Cause: fmt.Errorf("配置绑定失败: %w", err)}
	}
	if file.Headers == nil {
		file.Headers = map[string]string{}
	}
	return file.Headers, nil
}
