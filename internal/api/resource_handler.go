package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"docschat/internal/domain/ingest"
	"docschat/internal/domain/qa"
	"docschat/internal/domain/resource"
	applog "docschat/internal/platform/log"
)

// ResourceHandler 资源入库与列表 API。
type ResourceHandler struct {
	store        resource.Store // 可能为 nil（降级模式）
	fetcher      *ingest.Fetcher
	cache        qa.AnswerCacheStore // 可选，入库成功后整体失效
	defaultLimit int
}

// NewResourceHandler 创建资源处理器。抓取超时由 Fetcher 自身约束。
func NewResourceHandler(store resource.Store, fetcher *ingest.Fetcher, defaultLimit int) *ResourceHandler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &ResourceHandler{
		store:        store,
		fetcher:      fetcher,
		defaultLimit: defaultLimit,
	}
}

// SetAnswerCache 挂载答案缓存（可选）。
func (h *ResourceHandler) SetAnswerCache(c qa.AnswerCacheStore) {
	h.cache = c
}

// RegisterRoutes 注册资源路由。
func (h *ResourceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ingest", h.Ingest)
	r.Post("/api/ingest/text", h.IngestText)
	r.Get("/api/resources", h.List)
}

// IngestRequest 入库请求。
type IngestRequest struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// IngestTextRequest 纯文本入库请求。
type IngestTextRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// IngestResponse 入库响应。
type IngestResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	Length int    `json:"length"`
}

// ResourceView 列表传输形态：id/时间一律字符串化，正文以长度代出。
type ResourceView struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	URL       *string  `json:"url"`
	Tags      []string `json:"tags"`
	Length    int      `json:"length"`
	CreatedAt string   `json:"created_at"`
}

// Ingest 抓取 URL 并入库。抓取失败是调用方错误（400），库失败是服务端错误。
func (h *ResourceHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	extracted, err := h.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		applog.Warn("[Ingest] Fetch failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadRequest, "Failed to fetch URL: "+err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = extracted.Title
	}

	h.create(w, r, &resource.Resource{
		Title:   title,
		URL:     req.URL,
		Content: extracted.Content,
		Tags:    req.Tags,
	})
}

// IngestText 直接入库粘贴文本，不经过抓取。
func (h *ResourceHandler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req IngestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	h.create(w, r, &resource.Resource{
		Title:   title,
		URL:     req.URL,
		Content: strings.TrimSpace(req.Content),
		Tags:    req.Tags,
	})
}

func (h *ResourceHandler) create(w http.ResponseWriter, r *http.Request, res *resource.Resource) {
	id, err := h.store.Create(r.Context(), res)
	if err != nil {
		applog.Error("[Ingest] Store failed", "title", res.Title, "error", err)
		writeError(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	// 候选集变化，旧答案作废
	if h.cache != nil {
		h.cache.InvalidateAll(r.Context())
	}

	applog.Info("[Ingest] Resource stored", "id", id, "title", res.Title, "length", utf8.RuneCountInString(res.Content))
	writeJSON(w, http.StatusOK, IngestResponse{
		Status: "ok",
		ID:     id,
		Title:  res.Title,
		Length: utf8.RuneCountInString(res.Content),
	})
}

// List 列出资源，可按 tag 过滤，limit 默认 20、上限 100。
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	limit := h.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	items, err := h.store.List(r.Context(), resource.ListFilter{
		Tag:   r.URL.Query().Get("tag"),
		Limit: limit,
	})
	if err != nil {
		applog.Error("[Resources] List failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	views := make([]ResourceView, 0, len(items))
	for _, item := range items {
		views = append(views, toView(item))
	}
	writeJSON(w, http.StatusOK, views)
}

func toView(r resource.Resource) ResourceView {
	var url *string
	if r.URL != "" {
		u := r.URL
		url = &u
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return ResourceView{
		ID:        r.ID,
		Title:     r.Title,
		URL:       url,
		Tags:      tags,
		Length:    utf8.RuneCountInString(r.Content),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
