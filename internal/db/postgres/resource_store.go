package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"docschat/internal/domain/resource"
)

// ResourceStore PostgreSQL 文档库实现。
type ResourceStore struct {
	db *sql.DB
}

// NewResourceStore 创建 PostgreSQL 文档库。
func NewResourceStore(db *sql.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// ApplyDatabaseName 将可选的 DATABASE_NAME 覆盖到 DSN 的 dbname 上。
// 仅支持 URL 形式的 DSN；键值对形式原样返回。
func ApplyDatabaseName(dsn, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	u.Path = "/" + name
	return u.String()
}

// EnsureResourcesTable 确保 resources 表存在（幂等 DDL）。
func (s *ResourceStore) EnsureResourcesTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS resources (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title      TEXT NOT NULL,
		url        TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		tags       TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_resources_tags ON resources USING GIN(tags);
	CREATE INDEX IF NOT EXISTS idx_resources_created ON resources(created_at);
	`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Create 写入单条资源，返回分配的 ID。资源入库后不可变。
func (s *ResourceStore) Create(ctx context.Context, r *resource.Resource) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (id, title, url, content, tags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Title, r.URL, r.Content, pq.Array(tags), r.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert resource: %w", err)
	}
	return r.ID, nil
}

// List 按过滤条件查询。tag 过滤语义为"tags 数组包含该值"。
// 按 created_at 排序保证单次查询内顺序稳定。
func (s *ResourceStore) List(ctx context.Context, filter resource.ListFilter) ([]resource.Resource, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id::text, title, url, content, tags, created_at FROM resources`
	var args []interface{}
	if filter.Tag != "" {
		query += ` WHERE $1 = ANY(tags)`
		args = append(args, filter.Tag)
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []resource.Resource
	for rows.Next() {
		var r resource.Resource
		var tags pq.StringArray
		if err := rows.Scan(&r.ID, &r.Title, &r.URL, &r.Content, &tags, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		r.Tags = []string(tags)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

// Ping 连接探活。
func (s *ResourceStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Collections 列出 public schema 下的表名（诊断接口用，最多 10 个）。
func (s *ResourceStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tablename FROM pg_catalog.pg_tables
		 WHERE schemaname = 'public' ORDER BY tablename LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
