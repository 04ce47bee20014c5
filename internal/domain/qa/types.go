package qa

import (
	"context"
	"errors"
)

// ErrEmptyQuestion 问题为空（或仅空白字符），属于调用方输入错误。
var ErrEmptyQuestion = errors.New("empty question")

// 固定应答文案。空结果不是错误，返回正常应答。
const (
	MsgNoResources = "I don't have any resources yet. Please add a website or docs first."
	MsgNoMatches   = "I couldn't find information about that in the provided resources."
)

// Source 答案的引用来源。
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result 问答结果：拼接好的答案 + 按相关性排序的来源。
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// AnswerCacheStore 答案缓存端口（可选，API 层按需挂载）。
// 引擎本身无状态、无副作用，缓存只存在于引擎之外。
type AnswerCacheStore interface {
	Get(ctx context.Context, question string, topK int) (*Result, bool)
	Set(ctx context.Context, question string, topK int, result *Result)
	InvalidateAll(ctx context.Context)
}
