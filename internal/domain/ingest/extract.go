package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// HTMLParser 网页抽取：剔除 script/style/noscript，取纯文本和 <title>。
type HTMLParser struct{}

func (p *HTMLParser) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml", ".html", ".htm"}
}

func (p *HTMLParser) Parse(data []byte, source string) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript").Remove()

	// 文本节点之间以空格分隔，避免相邻节点文字粘连
	var sb strings.Builder
	for _, node := range doc.Selection.Nodes {
		collectText(node, &sb)
	}

	return &ParseResult{
		Title:   title,
		Content: normalizeWhitespace(sb.String()),
	}, nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// normalizeWhitespace 所有连续空白折叠为单个空格。
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
