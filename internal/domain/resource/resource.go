package resource

import (
	"context"
	"time"
)

// Resource 已入库的文档资源。创建后不可变，无更新路径。
type Resource struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"` // 来源 URL，纯文本粘贴时为空
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter 查询过滤条件。
type ListFilter struct {
	Tag   string // 非空时按"tags 包含该值"过滤
	Limit int
}

// Store 文档库端口：单条写入 + 过滤查询，外加诊断探针。
// 同一次查询内的顺序稳定，跨查询不保证。
type Store interface {
	Create(ctx context.Context, r *Resource) (string, error)
	List(ctx context.Context, filter ListFilter) ([]Resource, error)
	Ping(ctx context.Context) error
	Collections(ctx context.Context) ([]string, error)
}
