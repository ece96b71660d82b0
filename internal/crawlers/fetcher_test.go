package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/andybalholm/brotli"
)

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h).Clone(), nil
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>token=" + r.Header.Get("X-Token") + "</body></html>"))
	})
	mux.HandleFunc("/brotli", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("<html>compressed</html>"))
		bw.Close()
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/private/catalog", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>secret</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPageFetcher_Fetch(t *testing.T) {
	srv := newTestSite(t)
	headers := staticHeaders{"X-Token": {"abc"}}
	fetcher := NewPageFetcher(FetcherConfig{Timeout: 5 * time.Second}, headers, nil)

	tests := []struct {
		name     string
		path     string
		wantBody string
		wantErr  error
	}{
		{"应用自定义头部", "/page", "token=abc", nil},
		{"解码brotli响应", "/brotli", "<html>compressed</html>", nil},
		{"404返回获取失败", "/missing", "", models.ErrFetchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fetcher.Fetch(context.Background(), srv.URL+tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if result.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d", result.StatusCode)
			}
			if !strings.Contains(string(result.Body), tt.wantBody) {
				t.Errorf("Body = %q, want contains %q", result.Body, tt.wantBody)
			}
		})
	}
}

func TestPageFetcher_RespectsRobots(t *testing.T) {
	srv := newTestSite(t)
	robots := NewRobotsPolicy(true, DefaultUserAgent, time.Minute, srv.Client())
	fetcher := NewPageFetcher(FetcherConfig{Timeout: 5 * time.Second}, nil, robots)

	_, err := fetcher.Fetch(context.Background(), srv.URL+"/private/catalog")
	if !errors.Is(err, models.ErrRobotsDisallowed) {
		t.Errorf("Fetch() error = %v, want ErrRobotsDisallowed", err)
	}

	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/page"); err != nil {
		t.Errorf("允许的页面获取失败: %v", err)
	}
}

func TestRobotsPolicy_Allowed(t *testing.T) {
	srv := newTestSite(t)
	ctx := context.Background()
	mustParse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	t.Run("启用时遵守Disallow", func(t *testing.T) {
		p := NewRobotsPolicy(true, "bimcrawler", time.Minute, srv.Client())
		if p.Allowed(ctx, mustParse(srv.URL+"/private/x")) {
			t.Error("/private 应被禁止")
		}
		if !p.Allowed(ctx, mustParse(srv.URL+"/products")) {
			t.Error("/products 应被允许")
		}
	})

	t.Run("禁用时一律放行", func(t *testing.T) {
		p := NewRobotsPolicy(false, "bimcrawler", time.Minute, srv.Client())
		if !p.Allowed(ctx, mustParse(srv.URL+"/private/x")) {
			t.Error("禁用时应放行")
		}
	})

	t.Run("nil策略放行", func(t *testing.T) {
		var p *RobotsPolicy
		if !p.Allowed(ctx, mustParse(srv.URL+"/private/x")) {
			t.Error("nil策略应放行")
		}
	})

	t.Run("获取失败时放行", func(t *testing.T) {
		p := NewRobotsPolicy(true, "bimcrawler", time.Minute, nil)
		if !p.Allowed(ctx, mustParse("http://127.0.0.1:1/private")) {
			t.Error("robots.txt 获取失败应放行")
		}
	})
}

func TestDecompressResponse(t *testing.T) {
	var buf bytes.Buffer
	fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	fw.Write([]byte("deflated body"))
	fw.Close()

	got, err := decompressResponse("Deflate", buf.Bytes())
	if err != nil || string(got) != "deflated body" {
		t.Errorf("deflate = %q, %v", got, err)
	}

	plain := []byte("plain")
	got, err = decompressResponse("identity", plain)
	if err != nil || string(got) != "plain" {
		t.Errorf("identity = %q, %v", got, err)
	}

	if _, err := decompressResponse("br", []byte("not brotli")); err == nil {
		t.Error("无效的brotli数据应返回错误")
	}
}
