package qa

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"docschat/internal/domain/resource"
)

// Config 检索引擎配置。
type Config struct {
	DefaultTopK     int // 未指定 top_k 时的取值
	SnippetMaxChars int // 单篇摘録上限（字符数）
}

// DefaultConfig 默认配置。
func DefaultConfig() *Config {
	return &Config{
		DefaultTopK:     3,
		SnippetMaxChars: 600,
	}
}

// Engine 检索引擎：词频打分 + 稳定排序 + 句子摘録。
// 纯内存单遍算法，不做 I/O，不持有请求间状态。
type Engine struct {
	config *Config
}

// NewEngine 创建检索引擎。
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 3
	}
	if config.SnippetMaxChars <= 0 {
		config.SnippetMaxChars = 600
	}
	return &Engine{config: config}
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Tokenize 切分为小写字母数字 token（其余字符一律视作分隔符）。
// 问题与文档正文使用同一套切分规则。
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, strings.ToLower(m))
	}
	return tokens
}

// Answer 对候选文档集回答问题。确定性：相同输入必得相同输出。
// topK <= 0 时取默认值；候选为空或全部零分时返回固定文案而非错误。
func (e *Engine) Answer(question string, docs []resource.Resource, topK int) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = e.config.DefaultTopK
	}

	if len(docs) == 0 {
		return &Result{Answer: MsgNoResources, Sources: []Source{}}, nil
	}

	qTokens := Tokenize(question)

	// 打分：对每个 token 化非空的文档，累加问题 token 在文档中的词频。
	// 问题中重复出现的 token 重复计权（query 出现向量 · 文档词频向量的点积）。
	type scoredDoc struct {
		score int
		doc   resource.Resource
	}
	scored := make([]scoredDoc, 0, len(docs))
	for _, d := range docs {
		tokens := Tokenize(d.Content)
		if len(tokens) == 0 {
			continue // 空文档既不打分也不计零分
		}
		counts := make(map[string]int, len(tokens))
		for _, t := range tokens {
			counts[t]++
		}
		score := 0
		for _, t := range qTokens {
			score += counts[t]
		}
		if score > 0 {
			scored = append(scored, scoredDoc{score: score, doc: d})
		}
	}

	if len(scored) == 0 {
		return &Result{Answer: MsgNoMatches, Sources: []Source{}}, nil
	}

	// 稳定排序：同分文档保持文档库返回顺序。
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	top := scored[:topK]

	snippets := make([]string, 0, len(top))
	sources := make([]Source, 0, len(top))
	for _, s := range top {
		snippets = append(snippets, e.extractSnippet(s.doc.Content, qTokens))
		sources = append(sources, Source{
			ID:    s.doc.ID,
			Title: s.doc.Title,
			URL:   s.doc.URL,
		})
	}

	answer := "Here's what I found based on your resources: \n\n" +
		strings.Join(snippets, " \n\n") +
		"\n\nIf you'd like, you can add more sources for better answers."

	return &Result{Answer: answer, Sources: sources}, nil
}

// extractSnippet 从正文中抽取含问题 token 的句子，拼成不超过上限的摘録。
// 匹配是裸子串包含（"cat" 能命中 "category"）——兼容性要求，不做 token 边界判断。
func (e *Engine) extractSnippet(content string, qTokens []string) string {
	maxChars := e.config.SnippetMaxChars
	sentences := splitSentences(content)

	var selected []string
	total := 0
	for _, s := range sentences {
		low := strings.ToLower(s)
		for _, t := range qTokens {
			if strings.Contains(low, t) {
				trimmed := strings.TrimSpace(s)
				selected = append(selected, trimmed)
				total += utf8.RuneCountInString(trimmed)
				break
			}
		}
		if total > maxChars {
			break
		}
	}

	if len(selected) > 0 {
		return truncateRunes(strings.Join(selected, " "), maxChars)
	}
	return truncateRunes(content, maxChars)
}

// splitSentences 句子边界启发式：`.` `!` `?` 后跟空白即断句，空白被吞掉。
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			out = append(out, string(runes[start:i+1]))
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
