package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"
)

// 抓取失败分类：网络层失败与非 2xx 响应对调用方可区分。
var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrFetch           = errors.New("fetch failed")
	ErrBadStatus       = errors.New("unexpected upstream status")
	ErrUnsupportedType = errors.New("unsupported content type")
)

// Extracted 抓取并抽取后的资源内容，可直接入库。
type Extracted struct {
	Title   string
	Content string
}

// FetcherConfig 抓取器配置。
type FetcherConfig struct {
	Timeout  time.Duration // 整次抓取的超时上限
	MaxBytes int64         // 响应体读取上限
}

// Fetcher 资源抓取器：限时拉取 URL，按 Content-Type 路由到对应解析器。
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	parsers  *ParserRegistry
}

// NewFetcher 创建抓取器。
func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	maxBytes := int64(8 << 20)
	if cfg.MaxBytes > 0 {
		maxBytes = cfg.MaxBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		parsers:  NewParserRegistry(),
	}
}

// ValidateURL 校验为绝对 http(s) URL。
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// Fetch 限时抓取 URL 并抽取纯文本。标题来源优先级：文档元信息 > URL 本身；
// 调用方自带标题时由调用方覆盖。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Extracted, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", "docschat/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	parser, err := f.parsers.Get(contentType, rawURL)
	if err != nil {
		return nil, err
	}

	result, err := parser.Parse(body, rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s content: %w", contentType, err)
	}

	title := result.Title
	if title == "" {
		title = rawURL
	}

	return &Extracted{
		Title:   title,
		Content: normalizeWhitespace(result.Content),
	}, nil
}
