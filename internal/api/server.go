package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docschat/internal/domain/ingest"
	"docschat/internal/domain/qa"
	"docschat/internal/domain/resource"
	applog "docschat/internal/platform/log"
)

// ServerConfig 服务配置。
type ServerConfig struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	CandidateLimit   int  // /ask 单次取候选的上限
	ListDefaultLimit int  // /resources 默认 limit
	HasDatabaseURL   bool // 诊断接口上报用
	HasDatabaseName  bool
}

// DefaultServerConfig 默认配置。
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:             "0.0.0.0",
		Port:             8000,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     60 * time.Second,
		CandidateLimit:   100,
		ListDefaultLimit: 20,
	}
}

// Server HTTP 服务器。store 为 nil 时以降级模式提供服务。
type Server struct {
	config  *ServerConfig
	store   resource.Store
	fetcher *ingest.Fetcher
	engine  *qa.Engine
	cache   qa.AnswerCacheStore
	httpSrv *http.Server
}

// NewServer 创建服务器。
func NewServer(config *ServerConfig, store resource.Store, fetcher *ingest.Fetcher, engine *qa.Engine) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if engine == nil {
		engine = qa.NewEngine(nil)
	}
	return &Server{
		config:  config,
		store:   store,
		fetcher: fetcher,
		engine:  engine,
	}
}

// SetAnswerCache 设置答案缓存（可选，仅在 Redis 配置时启用）。
func (s *Server) SetAnswerCache(c qa.AnswerCacheStore) {
	s.cache = c
}

// Start 启动服务器。
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Docs chatbot API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机。
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）。
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "AI Docs Chatbot Backend is running"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	resourceHandler := NewResourceHandler(s.store, s.fetcher, s.config.ListDefaultLimit)
	askHandler := NewAskHandler(s.store, s.engine, s.config.CandidateLimit)
	if s.cache != nil {
		resourceHandler.SetAnswerCache(s.cache)
		askHandler.SetAnswerCache(s.cache)
	}
	diagHandler := NewDiagHandler(s.store, s.config.HasDatabaseURL, s.config.HasDatabaseName)

	resourceHandler.RegisterRoutes(r)
	askHandler.RegisterRoutes(r)
	diagHandler.RegisterRoutes(r)

	return r
}

// corsMiddleware CORS 中间件（全放开，与对外契约一致）。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
