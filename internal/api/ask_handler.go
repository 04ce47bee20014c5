package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"docschat/internal/domain/qa"
	"docschat/internal/domain/resource"
	applog "docschat/internal/platform/log"
)

// AskHandler 问答 API：取候选集 -> 检索引擎 -> 拼装应答。
type AskHandler struct {
	store          resource.Store // 可能为 nil（降级模式）
	engine         *qa.Engine
	cache          qa.AnswerCacheStore // 可选
	candidateLimit int
}

// NewAskHandler 创建问答处理器。
func NewAskHandler(store resource.Store, engine *qa.Engine, candidateLimit int) *AskHandler {
	if candidateLimit <= 0 {
		candidateLimit = 100
	}
	return &AskHandler{
		store:          store,
		engine:         engine,
		candidateLimit: candidateLimit,
	}
}

// SetAnswerCache 挂载答案缓存（可选）。引擎本身始终无缓存。
func (h *AskHandler) SetAnswerCache(c qa.AnswerCacheStore) {
	h.cache = c
}

// RegisterRoutes 注册问答路由。
func (h *AskHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ask", h.Ask)
}

// AskRequest 问答请求。
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// AskResponse 问答响应。来源 URL 缺失时序列化为 null。
type AskResponse struct {
	Answer  string       `json:"answer"`
	Sources []SourceView `json:"sources"`
}

type SourceView struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	URL   *string `json:"url"`
}

// Ask 回答问题。输入校验先于任何库访问：空问题时不触发查询。
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "Empty question")
		return
	}
	if utf8.RuneCountInString(question) < 3 {
		writeError(w, http.StatusBadRequest, "question must be at least 3 characters")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	topK := req.TopK

	if h.cache != nil {
		if cached, ok := h.cache.Get(r.Context(), question, topK); ok {
			writeJSON(w, http.StatusOK, toAskResponse(cached))
			return
		}
	}

	docs, err := h.store.List(r.Context(), resource.ListFilter{Limit: h.candidateLimit})
	if err != nil {
		applog.Error("[QA] Candidate query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	result, err := h.engine.Answer(question, docs, topK)
	if err != nil {
		// 引擎只会因空问题报错，上面已拦截；保险起见仍按调用方错误返回
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applog.Info("[QA] Answered",
		"question", question,
		"candidates", len(docs),
		"sources", len(result.Sources),
	)

	if h.cache != nil {
		cacheResult := result
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			h.cache.Set(cacheCtx, question, topK, cacheResult)
		}()
	}

	writeJSON(w, http.StatusOK, toAskResponse(result))
}

func toAskResponse(result *qa.Result) AskResponse {
	sources := make([]SourceView, 0, len(result.Sources))
	for _, s := range result.Sources {
		var url *string
		if s.URL != "" {
			u := s.URL
			url = &u
		}
		sources = append(sources, SourceView{ID: s.ID, Title: s.Title, URL: url})
	}
	return AskResponse{Answer: result.Answer, Sources: sources}
}
