package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"docschat/internal/api"
	"docschat/internal/db/postgres"
	redisdb "docschat/internal/db/redis"
	"docschat/internal/domain/ingest"
	"docschat/internal/domain/qa"
	"docschat/internal/domain/resource"
	"docschat/internal/platform/config"
	applog "docschat/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	store := initStore(cfg)

	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Timeout:  time.Duration(cfg.Ingest.TimeoutSeconds) * time.Second,
		MaxBytes: cfg.Ingest.MaxBytes,
	})

	engine := qa.NewEngine(&qa.Config{
		DefaultTopK:     cfg.QA.DefaultTopK,
		SnippetMaxChars: cfg.QA.SnippetMaxChars,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.CandidateLimit = cfg.QA.CandidateLimit
	serverConfig.ListDefaultLimit = cfg.QA.ListDefaultLimit
	serverConfig.HasDatabaseURL = cfg.HasDatabase()
	serverConfig.HasDatabaseName = cfg.Database.Name != ""
	server := api.NewServer(serverConfig, store, fetcher, engine)

	if cache := initAnswerCache(cfg); cache != nil {
		server.SetAnswerCache(cache)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}

// initStore 连接文档库。未配置或握手失败时返回 nil：服务降级运行，不崩溃。
func initStore(cfg *config.AppConfig) resource.Store {
	if !cfg.HasDatabase() {
		applog.Info("ℹ️  No DATABASE_URL set, running without document store")
		return nil
	}

	dsn := postgres.ApplyDatabaseName(cfg.Database.URL, cfg.Database.Name)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		applog.Warnf("⚠️  Failed to open database: %v (running degraded)", err)
		return nil
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.PingTimeoutSeconds)*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		applog.Warnf("⚠️  Database ping failed: %v (running degraded)", err)
		db.Close()
		return nil
	}
	applog.Info("✅ Connected to PostgreSQL")

	store := postgres.NewResourceStore(db)
	if err := store.EnsureResourcesTable(pingCtx); err != nil {
		applog.Warnf("⚠️  Failed to ensure resources table: %v", err)
	} else {
		applog.Info("✅ Resources table ready")
	}
	return store
}

// initAnswerCache 连接答案缓存。任何失败只关闭缓存，不影响主流程。
func initAnswerCache(cfg *config.AppConfig) qa.AnswerCacheStore {
	if !cfg.HasAnswerCache() {
		return nil
	}

	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Warnf("⚠️  Redis URL invalid, answer cache disabled: %v", err)
		return nil
	}

	redisClient := goredis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		applog.Warnf("⚠️  Redis ping failed, answer cache disabled: %v", err)
		return nil
	}

	applog.Infof("✅ Answer cache initialized (TTL: %ds)", cfg.Redis.AnswerCacheTTLSeconds)
	return redisdb.NewAnswerCache(redisClient, cfg.Redis.AnswerCacheTTLSeconds)
}
