package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

func TestHeaderFileLoader_Load(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string // 为空表示不创建文件
		want    map[string]string
		wantErr bool
	}{
		{"文件不存在", "", map[string]string{}, false},
		{"正常文件", "headers:\n  X-Token: abc\n", map[string]string{"x-token": "abc"}, false},
		{"没有headers键", "other: 1\n", map[string]string{}, false},
		{"YAML格式错误", "headers: [broken", nil, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.Repeat("h", i+1)+".yaml")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}

			got, err := NewHeaderFileLoader(path).Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var cfgErr *models.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("应返回ConfigError, got %T", err)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Load() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Load()[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestHeaderFileLoader_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	big := "headers:\n  X-Pad: \"" + strings.Repeat("a", MaxHeadersFileSize) + "\"\n"
	if err := os.WriteFile(path, []byte(big), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewHeaderFileLoader(path).Load(); err == nil || !strings.Contains(err.Error(), "过大") {
		t.Errorf("Load() error = %v, want 文件过大", err)
	}
}

func TestHeaderFileLoader_WriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "headers.yaml")
	loader := NewHeaderFileLoader(path)

	created, err := loader.WriteTemplate()
	if err != nil || !created {
		t.Fatalf("WriteTemplate() = %v, %v", created, err)
	}
	created, err = loader.WriteTemplate()
	if err != nil || created {
		t.Errorf("第二次WriteTemplate()不应覆盖: %v, %v", created, err)
	}

	headers, err := loader.Load()
	if err != nil {
		t.Fatalf("模板应能被加载: %v", err)
	}
	if headers["accept-language"] == "" {
		t.Errorf("模板头部 = %v", headers)
	}

	if NewHeaderFileLoader("").Path() != DefaultHeadersFile {
		t.Error("空路径应使用默认路径")
	}
}
