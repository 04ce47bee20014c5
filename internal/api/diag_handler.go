package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"docschat/internal/domain/resource"
)

// DiagHandler 诊断探针。/test 永不失败，一律 200 + 状态描述。
type DiagHandler struct {
	store     resource.Store // 可能为 nil
	hasDBURL  bool
	hasDBName bool
}

// NewDiagHandler 创建诊断处理器。
func NewDiagHandler(store resource.Store, hasDBURL, hasDBName bool) *DiagHandler {
	return &DiagHandler{
		store:     store,
		hasDBURL:  hasDBURL,
		hasDBName: hasDBName,
	}
}

// RegisterRoutes 注册诊断路由。
func (h *DiagHandler) RegisterRoutes(r chi.Router) {
	r.Get("/test", h.Test)
}

// DiagResponse 诊断响应。
type DiagResponse struct {
	Backend          string   `json:"backend"`
	Database         string   `json:"database"`
	DatabaseURL      string   `json:"database_url"`
	DatabaseName     string   `json:"database_name"`
	ConnectionStatus string   `json:"connection_status"`
	Collections      []string `json:"collections"`
}

// Test 探测文档库连通性与配置存在性。
func (h *DiagHandler) Test(w http.ResponseWriter, r *http.Request) {
	resp := DiagResponse{
		Backend:          "✅ Running",
		Database:         "❌ Not Available",
		ConnectionStatus: "Not Connected",
		Collections:      []string{},
	}

	if h.store != nil {
		resp.Database = "✅ Available"
		resp.ConnectionStatus = "Connected"

		collections, err := h.store.Collections(r.Context())
		if err != nil {
			resp.Database = "⚠️  Connected but Error: " + truncateError(err.Error(), 50)
		} else {
			if len(collections) > 10 {
				collections = collections[:10]
			}
			if collections != nil {
				resp.Collections = collections
			}
			resp.Database = "✅ Connected & Working"
		}
	}

	resp.DatabaseURL = setFlag(h.hasDBURL)
	resp.DatabaseName = setFlag(h.hasDBName)

	writeJSON(w, http.StatusOK, resp)
}

func setFlag(present bool) string {
	if present {
		return "✅ Set"
	}
	return "❌ Not Set"
}

func truncateError(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
