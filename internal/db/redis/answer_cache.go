package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docschat/internal/domain/qa"
	applog "docschat/internal/platform/log"
)

// AnswerCache 问答结果 Redis 缓存。未配置时整个组件不创建，引擎照常工作。
type AnswerCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewAnswerCache 创建答案缓存。
func NewAnswerCache(rdb *redis.Client, ttlSeconds int) *AnswerCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &AnswerCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "qa:cache:",
	}
}

// Get 从缓存获取问答结果。任何失败都按未命中处理。
func (c *AnswerCache) Get(ctx context.Context, question string, topK int) (*qa.Result, bool) {
	key := c.cacheKey(question, topK)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var result qa.Result
	if err := json.Unmarshal(data, &result); err != nil {
		applog.Warn("[QA/Cache] Failed to unmarshal cached result", "error", err)
		return nil, false
	}

	applog.Debug("[QA/Cache] Hit", "key", key)
	return &result, true
}

// Set 写入问答结果到缓存。
func (c *AnswerCache) Set(ctx context.Context, question string, topK int, result *qa.Result) {
	key := c.cacheKey(question, topK)
	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[QA/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除全部答案缓存。每次成功入库后调用：候选集变了，旧答案全部失效。
func (c *AnswerCache) InvalidateAll(ctx context.Context) {
	pattern := c.prefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
		applog.Info("[QA/Cache] All cache invalidated", "keys_deleted", len(keys))
	}
}

// cacheKey 生成缓存 key = hash(question|top_k)。
func (c *AnswerCache) cacheKey(question string, topK int) string {
	raw := fmt.Sprintf("%s|%d", question, topK)
	hash := sha256.Sum256([]byte(raw))
	return c.prefix + fmt.Sprintf("%x", hash[:12])
}
