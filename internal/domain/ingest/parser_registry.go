package ingest

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
)

// ParserRegistry 内容解析器注册表。按 MIME 类型查找，URL 扩展名兜底。
type ParserRegistry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // key = MIME 类型或 ".ext"
}

// NewParserRegistry 创建注册表并注册内置解析器。
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{
		parsers: make(map[string]Parser),
	}

	r.Register(&HTMLParser{})
	r.Register(&MarkdownParser{})
	r.Register(&PlainTextParser{})
	r.Register(&PDFParser{})
	r.Register(&DOCXParser{})

	return r
}

// Register 注册解析器。
func (r *ParserRegistry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range p.SupportedTypes() {
		r.parsers[strings.ToLower(t)] = p
	}
}

// Get 根据 Content-Type 获取解析器，未命中时回退到 URL 扩展名。
func (r *ParserRegistry) Get(contentType, rawURL string) (Parser, error) {
	if p := r.lookup(contentType, rawURL); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedType, contentType, r.SupportedTypes())
}

func (r *ParserRegistry) lookup(contentType, rawURL string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if p, ok := r.parsers[ct]; ok {
		return p
	}

	// text/* 一律按纯文本处理
	if strings.HasPrefix(ct, "text/") {
		if p, ok := r.parsers["text/plain"]; ok {
			return p
		}
	}

	if ext := urlExt(rawURL); ext != "" {
		if p, ok := r.parsers[ext]; ok {
			return p
		}
	}
	return nil
}

// SupportedTypes 返回所有已注册的类型标识。
func (r *ParserRegistry) SupportedTypes() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
