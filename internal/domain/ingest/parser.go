package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	applog "docschat/internal/platform/log"
)

// ParseResult 内容解析结果。Title 为空时由上层回退到 URL。
type ParseResult struct {
	Title   string
	Content string
}

// Parser 内容解析器接口。
type Parser interface {
	// Parse 解析原始字节，返回纯文本内容
	Parse(data []byte, source string) (*ParseResult, error)
	// SupportedTypes 支持的 MIME 类型与扩展名
	SupportedTypes() []string
}

// ── Markdown Parser ──────────────────────────────────────────

// MarkdownParser 去除 Markdown 格式标记。
type MarkdownParser struct{}

var (
	reMarkdownHeader = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMarkdownBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reMarkdownItalic = regexp.MustCompile(`\*(.+?)\*`)
	reMarkdownCode   = regexp.MustCompile("```[\\s\\S]*?```")
	reMarkdownInline = regexp.MustCompile("`([^`]+)`")
	reMarkdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reMarkdownImage  = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reMarkdownHTML   = regexp.MustCompile(`<[^>]+>`)
)

func (p *MarkdownParser) SupportedTypes() []string {
	return []string{"text/markdown", ".md", ".markdown"}
}

func (p *MarkdownParser) Parse(data []byte, source string) (*ParseResult, error) {
	text := string(data)

	// 标题取第一个 # 一级标题
	title := ""
	for _, line := range strings.SplitN(text, "\n", 10) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			title = strings.TrimPrefix(line, "# ")
			break
		}
	}

	// 去除代码块标记但保留代码内容
	text = reMarkdownCode.ReplaceAllStringFunc(text, func(s string) string {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(s, "```")
		return strings.TrimSpace(s)
	})

	text = reMarkdownImage.ReplaceAllString(text, "$1")
	text = reMarkdownLink.ReplaceAllString(text, "$1")
	text = reMarkdownBold.ReplaceAllString(text, "$1")
	text = reMarkdownItalic.ReplaceAllString(text, "$1")
	text = reMarkdownInline.ReplaceAllString(text, "$1")
	text = reMarkdownHeader.ReplaceAllString(text, "")
	text = reMarkdownHTML.ReplaceAllString(text, "")

	return &ParseResult{Title: title, Content: strings.TrimSpace(text)}, nil
}

// ── Plain Text Parser ────────────────────────────────────────

// PlainTextParser 纯文本解析，首行充当候选标题。
type PlainTextParser struct{}

func (p *PlainTextParser) SupportedTypes() []string {
	return []string{"text/plain", "text/csv", ".txt", ".text", ".csv", ".log"}
}

func (p *PlainTextParser) Parse(data []byte, source string) (*ParseResult, error) {
	text := strings.TrimSpace(string(data))
	return &ParseResult{Title: firstLineTitle(text), Content: text}, nil
}

// firstLineTitle 取首行前 120 字符作为兜底标题。
func firstLineTitle(text string) string {
	line := strings.SplitN(strings.TrimSpace(text), "\n", 2)[0]
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > 120 {
		line = string(runes[:120])
	}
	return line
}

// ── PDF Parser ───────────────────────────────────────────────

// PDFParser 提取 PDF 文本。
type PDFParser struct{}

func (p *PDFParser) SupportedTypes() []string {
	return []string{"application/pdf", ".pdf"}
}

func (p *PDFParser) Parse(data []byte, source string) (*ParseResult, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages := r.NumPage()
	var sb strings.Builder

	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[Ingest/PDF] Failed to extract page text", "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}

	return &ParseResult{
		Title:   fileNameTitle(source),
		Content: strings.TrimSpace(sb.String()),
	}, nil
}

// ── DOCX Parser ──────────────────────────────────────────────

// DOCXParser 提取 Word 文档文本。
type DOCXParser struct{}

func (p *DOCXParser) SupportedTypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".docx",
	}
}

func (p *DOCXParser) Parse(data []byte, source string) (*ParseResult, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	// docx 返回 XML，逐行取非空文本
	var sb strings.Builder
	content := r.Editable().GetContent()
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return &ParseResult{
		Title:   fileNameTitle(source),
		Content: strings.TrimSpace(sb.String()),
	}, nil
}

// fileNameTitle 从 URL 路径提取文件名作为候选标题。
func fileNameTitle(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
