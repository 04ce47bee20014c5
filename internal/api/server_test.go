package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docschat/internal/domain/ingest"
	"docschat/internal/domain/qa"
	"docschat/internal/domain/resource"
)

// fakeStore 内存文档库，记录调用次数用于断言。
type fakeStore struct {
	resources      []resource.Resource
	createCalls    int
	listCalls      int
	createErr      error
	listErr        error
	collections    []string
	collectionsErr error
}

func (f *fakeStore) Create(ctx context.Context, r *resource.Resource) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	if r.ID == "" {
		r.ID = "fake-id"
	}
	r.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.resources = append(f.resources, *r)
	return r.ID, nil
}

func (f *fakeStore) List(ctx context.Context, filter resource.ListFilter) ([]resource.Resource, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []resource.Resource
	for _, r := range f.resources {
		if filter.Tag != "" && !containsTag(r.Tags, filter.Tag) {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Collections(ctx context.Context) ([]string, error) {
	return f.collections, f.collectionsErr
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func newTestServer(store resource.Store) *Server {
	return NewServer(nil, store, ingest.NewFetcher(ingest.FetcherConfig{Timeout: 2 * time.Second}), qa.NewEngine(nil))
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// TestRootAndHealth 存活探针
func TestRootAndHealth(t *testing.T) {
	handler := newTestServer(&fakeStore{}).Handler()

	rr := doRequest(t, handler, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rr.Code)
	}
	var root map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &root); err != nil {
		t.Fatalf("decode root: %v", err)
	}
	if root["message"] != "AI Docs Chatbot Backend is running" {
		t.Errorf("root message = %q", root["message"])
	}

	rr = doRequest(t, handler, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health status = %d", rr.Code)
	}
}

// TestAskEmptyQuestion 空问题 400，且不触发库查询
func TestAskEmptyQuestion(t *testing.T) {
	store := &fakeStore{resources: []resource.Resource{{ID: "1", Title: "T", Content: "text"}}}
	handler := newTestServer(store).Handler()

	for _, body := range []string{`{"question":""}`, `{"question":"   "}`} {
		rr := doRequest(t, handler, http.MethodPost, "/api/ask", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 for body %s", rr.Code, body)
		}
	}
	if store.listCalls != 0 {
		t.Errorf("store queried %d times despite invalid question", store.listCalls)
	}
}

// TestAskNoStore 降级模式下问答返回服务端错误
func TestAskNoStore(t *testing.T) {
	handler := newTestServer(nil).Handler()
	rr := doRequest(t, handler, http.MethodPost, "/api/ask", `{"question":"what is rust"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

// TestAskStoreError 库查询失败 → 500
func TestAskStoreError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection lost")}
	handler := newTestServer(store).Handler()
	rr := doRequest(t, handler, http.MethodPost, "/api/ask", `{"question":"what is rust"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

// TestAskEndToEnd 端到端：Rust Book 文档 + "what is rust"
func TestAskEndToEnd(t *testing.T) {
	store := &fakeStore{resources: []resource.Resource{{
		ID:      "doc-1",
		Title:   "Rust Book",
		Content: "Rust is a systems programming language. It guarantees memory safety.",
	}}}
	handler := newTestServer(store).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ask", `{"question":"what is rust"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp AskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !strings.Contains(resp.Answer, "Rust is a systems programming language.") {
		t.Errorf("answer missing snippet: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("sources = %v", resp.Sources)
	}
	src := resp.Sources[0]
	if src.ID != "doc-1" || src.Title != "Rust Book" {
		t.Errorf("unexpected source: %+v", src)
	}
	if src.URL != nil {
		t.Errorf("url = %v, want null", *src.URL)
	}
}

// TestAskNoResources 空库返回固定文案
func TestAskNoResources(t *testing.T) {
	handler := newTestServer(&fakeStore{}).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ask", `{"question":"anything here"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp AskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != qa.MsgNoResources {
		t.Errorf("answer = %q, want %q", resp.Answer, qa.MsgNoResources)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %v, want empty", resp.Sources)
	}
}

// TestIngestSuccess 抓取 HTML 入库
func TestIngestSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Guide</title></head><body><p>Some   useful content.</p></body></html>`))
	}))
	defer upstream.Close()

	store := &fakeStore{}
	handler := newTestServer(store).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ingest", `{"url":"`+upstream.URL+`","tags":["docs"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.ID == "" || resp.Title != "Guide" || resp.Length == 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	if store.createCalls != 1 {
		t.Fatalf("createCalls = %d", store.createCalls)
	}
	stored := store.resources[0]
	if strings.Contains(stored.Content, "  ") {
		t.Errorf("stored content not normalized: %q", stored.Content)
	}
	if !containsTag(stored.Tags, "docs") {
		t.Errorf("tags not stored: %v", stored.Tags)
	}
}

// TestIngestFetchFailure 上游失败是调用方错误，不落库
func TestIngestFetchFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	store := &fakeStore{}
	handler := newTestServer(store).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ingest", `{"url":"`+upstream.URL+`"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Failed to fetch URL") {
		t.Errorf("body missing cause: %s", rr.Body.String())
	}
	if store.createCalls != 0 {
		t.Errorf("document created despite fetch failure")
	}
}

// TestIngestTimeout 抓取超时同样是调用方错误，不落库
func TestIngestTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer upstream.Close()

	store := &fakeStore{}
	server := NewServer(nil, store,
		ingest.NewFetcher(ingest.FetcherConfig{Timeout: 50 * time.Millisecond}),
		qa.NewEngine(nil))
	handler := server.Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ingest", `{"url":"`+upstream.URL+`"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if store.createCalls != 0 {
		t.Errorf("document created despite timeout")
	}
}

// TestIngestStoreError 库写入失败 → 500
func TestIngestStoreError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("content"))
	}))
	defer upstream.Close()

	store := &fakeStore{createErr: errors.New("insert failed")}
	handler := newTestServer(store).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ingest", `{"url":"`+upstream.URL+`"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

// TestIngestText 纯文本入库与校验
func TestIngestText(t *testing.T) {
	store := &fakeStore{}
	handler := newTestServer(store).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/ingest/text", `{"title":"Note","content":"pasted text"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"content":"text"}`},
		{"missing content", `{"title":"Note"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, handler, http.MethodPost, "/api/ingest/text", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

// TestListResources 传输形态：id/时间字符串化、正文以长度代出
func TestListResources(t *testing.T) {
	store := &fakeStore{resources: []resource.Resource{
		{
			ID:        "id-1",
			Title:     "Tagged",
			URL:       "https://example.com",
			Content:   "hello world",
			Tags:      []string{"docs"},
			CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:        "id-2",
			Title:     "Untagged",
			Content:   "other",
			CreatedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
		},
	}}
	handler := newTestServer(store).Handler()

	rr := doRequest(t, handler, http.MethodGet, "/api/resources", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var views []ResourceView
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d views", len(views))
	}
	if views[0].ID != "id-1" || views[0].CreatedAt != "2024-05-01T12:00:00Z" {
		t.Errorf("view not normalized: %+v", views[0])
	}
	if views[0].Length != len("hello world") {
		t.Errorf("length = %d", views[0].Length)
	}
	if views[1].URL != nil {
		t.Errorf("missing url should be null, got %v", *views[1].URL)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/resources?tag=docs", "")
	var filtered []ResourceView
	if err := json.Unmarshal(rr.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "id-1" {
		t.Errorf("tag filter failed: %+v", filtered)
	}
}

// TestDiagnostics /test 永不失败
func TestDiagnostics(t *testing.T) {
	t.Run("degraded", func(t *testing.T) {
		handler := newTestServer(nil).Handler()
		rr := doRequest(t, handler, http.MethodGet, "/test", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		var resp DiagResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Backend != "✅ Running" {
			t.Errorf("backend = %q", resp.Backend)
		}
		if resp.Database != "❌ Not Available" || resp.ConnectionStatus != "Not Connected" {
			t.Errorf("diag = %+v", resp)
		}
		if resp.DatabaseURL != "❌ Not Set" {
			t.Errorf("database_url = %q", resp.DatabaseURL)
		}
	})

	t.Run("connected", func(t *testing.T) {
		cfg := DefaultServerConfig()
		cfg.HasDatabaseURL = true
		cfg.HasDatabaseName = true
		store := &fakeStore{collections: []string{"resources"}}
		server := NewServer(cfg, store, ingest.NewFetcher(ingest.FetcherConfig{}), qa.NewEngine(nil))

		rr := doRequest(t, server.Handler(), http.MethodGet, "/test", "")
		var resp DiagResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Database != "✅ Connected & Working" {
			t.Errorf("database = %q", resp.Database)
		}
		if len(resp.Collections) != 1 || resp.Collections[0] != "resources" {
			t.Errorf("collections = %v", resp.Collections)
		}
		if resp.DatabaseURL != "✅ Set" || resp.DatabaseName != "✅ Set" {
			t.Errorf("env flags = %q / %q", resp.DatabaseURL, resp.DatabaseName)
		}
	})

	t.Run("connected but erroring", func(t *testing.T) {
		store := &fakeStore{collectionsErr: errors.New("permission denied on schema probe which is rather long")}
		server := NewServer(nil, store, ingest.NewFetcher(ingest.FetcherConfig{}), qa.NewEngine(nil))

		rr := doRequest(t, server.Handler(), http.MethodGet, "/test", "")
		var resp DiagResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !strings.HasPrefix(resp.Database, "⚠️  Connected but Error: ") {
			t.Errorf("database = %q", resp.Database)
		}
	})
}

// TestListNoStore 降级模式下列表返回服务端错误
func TestListNoStore(t *testing.T) {
	handler := newTestServer(nil).Handler()
	rr := doRequest(t, handler, http.MethodGet, "/api/resources", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}
