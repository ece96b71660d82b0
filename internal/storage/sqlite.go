// Package storage 把探索结果持久化到sqlite
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	start_url       TEXT NOT NULL,
	domain          TEXT NOT NULL,
	started_at      TIMESTAMP NOT NULL,
	ended_at        TIMESTAMP NOT NULL,
	pages_processed INTEGER NOT NULL,
	total_nodes     INTEGER NOT NULL,
	targets_found   INTEGER NOT NULL,
	failed_pages    INTEGER NOT NULL,
	halt_reason     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS targets (
	run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	url          TEXT NOT NULL,
	target_label TEXT NOT NULL,
	source_url   TEXT,
	score        REAL NOT NULL,
	origin       TEXT NOT NULL,
	found_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS nodes (
	run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	url          TEXT NOT NULL,
	parent_url   TEXT,
	depth        INTEGER NOT NULL,
	direct_score REAL,
	explored     INTEGER NOT NULL,
	target_label TEXT,
	PRIMARY KEY (run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_targets_url ON targets(url);
`

// ResultStore sqlite结果库
type ResultStore struct {
	db   *sql.DB
	path string
}

// Open 打开或创建结果库,path 为 ":memory:" 时使用内存库
func Open(path string) (*ResultStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 单连接: 内存库每个连接都是独立的库,文件库也只有一个写入者
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("设置 %s 失败: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化数据库表失败: %w", err)
	}

	utils.Debugf("结果库已打开: %s", path)
	return &ResultStore{db: db, path: path}, nil
}

// Close 关闭数据库
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// SaveRun 在一个事务里写入运行记录、目标和页面树
func (s *ResultStore) SaveRun(ctx context.Context, report *models.RunReport, root *models.PageNode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	st := report.Stats
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, start_url, domain, started_at, ended_at, pages_processed, total_nodes, targets_found, failed_pages, halt_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StartURL, report.Domain, report.StartTime.UTC(), report.EndTime.UTC(),
		st.PagesProcessed, st.TotalNodes, st.TargetsFound, st.FailedPages, string(st.HaltReason),
	); err != nil {
		return fmt.Errorf("写入运行记录失败: %w", err)
	}

	for _, res := range models.DedupResults(report.Results) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO targets (run_id, url, target_label, source_url, score, origin, found_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, res.URL, res.TargetLabel, res.SourceURL, res.Score, string(res.Origin), res.FoundAt.UTC(),
		); err != nil {
			return fmt.Errorf("写入目标失败 [%s]: %w", res.URL, err)
		}
	}

	if root != nil {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO nodes (run_id, url, parent_url, depth, direct_score, explored, target_label)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("准备节点写入失败: %w", err)
		}
		defer stmt.Close()

		if err := walk(root, func(n *models.PageNode) error {
			var parent, label sql.NullString
			var score sql.NullFloat64
			if n.Parent != nil {
				parent = sql.NullString{String: n.Parent.URL, Valid: true}
			}
			if n.Scored {
				score = sql.NullFloat64{Float64: n.DirectScore, Valid: true}
			}
			if n.TargetLabel != "" {
				label = sql.NullString{String: n.TargetLabel, Valid: true}
			}
			_, err := stmt.ExecContext(ctx, report.RunID, n.URL, parent, n.Depth, score, n.Explored, label)
			return err
		}); err != nil {
			return fmt.Errorf("写入页面树失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	utils.Infof("💾 结果已写入数据库: %s (run %s)", s.path, report.RunID)
	return nil
}

// walk 按URL顺序前序遍历
func walk(n *models.PageNode, fn func(*models.PageNode) error) error {
	if err := fn(n); err != nil {
		return err
	}
	keys := make([]string, 0, len(n.Children))
	for k := range n.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := walk(n.Children[k], fn); err != nil {
			return err
		}
	}
	return nil
}

// StoredTarget 库中的一条目标
type StoredTarget struct {
	RunID       string
	URL         string
	TargetLabel string
	SourceURL   string
	Score       float64
	Origin      models.TargetOrigin
	FoundAt     time.Time
}

// Targets 某次运行的目标,按发现时间排序
func (s *ResultStore) Targets(ctx context.Context, runID string) ([]StoredTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, url, target_label, COALESCE(source_url, ''), score, origin, found_at
		FROM targets WHERE run_id = ? ORDER BY found_at, url`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询目标失败: %w", err)
	}
	defer rows.Close()

	var out []StoredTarget
	for rows.Next() {
		var t StoredTarget
		var origin string
		if err := rows.Scan(&t.RunID, &t.URL, &t.TargetLabel, &t.SourceURL, &t.Score, &origin, &t.FoundAt); err != nil {
			return nil, fmt.Errorf("读取目标失败: %w", err)
		}
		t.Origin = models.TargetOrigin(origin)
		out = append(out, t)
	}
	return out, rows.Err()
}

// KnownTargetURLs 某个域名下历次运行发现过的目标URL
func (s *ResultStore) KnownTargetURLs(ctx context.Context, domain string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.url, t.target_label FROM targets t
		JOIN runs r ON r.run_id = t.run_id
		WHERE r.domain = ?`, domain)
	if err != nil {
		return nil, fmt.Errorf("查询历史目标失败: %w", err)
	}
	defer rows.Close()

	known := make(map[string]string)
	for rows.Next() {
		var url, label string
		if err := rows.Scan(&url, &label); err != nil {
			return nil, err
		}
		known[url] = label
	}
	return known, rows.Err()
}

// NodeCount 某次运行保存的节点数
func (s *ResultStore) NodeCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
