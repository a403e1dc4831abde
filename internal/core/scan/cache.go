package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safebite-api/internal/infrastructure/config"
	"safebite-api/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// cleanupInterval 記憶體快取的過期清理間隔
const cleanupInterval = 5 * time.Minute

// NegativeCache 「查無此條碼」快取
// 只記錄目錄明確回報不存在的條碼，商品本身以資料庫為快取、永不進這裡。
// 所有實作都是 fail-open：快取故障時照常走外部目錄
type NegativeCache interface {
	IsMissing(ctx context.Context, barcode string) bool
	MarkMissing(ctx context.Context, barcode string)
}

// NewNegativeCache 依配置選擇實作
// 有 Redis 位址就用 Redis，否則退回行程內記憶體快取；停用時回傳 no-op
func NewNegativeCache(cfg *config.LookupCacheConfig) NegativeCache {
	if !cfg.Enabled {
		common.LogInfo("查無結果快取已停用")
		return noopCache{}
	}
	if cfg.RedisAddr != "" {
		return newRedisCache(cfg)
	}
	return newMemoryCache(cfg)
}

// noopCache 停用時的空實作
type noopCache struct{}

func (noopCache) IsMissing(ctx context.Context, barcode string) bool { return false }
func (noopCache) MarkMissing(ctx context.Context, barcode string)    {}

// memoryCache 行程內 TTL 快取
type memoryCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	store map[string]time.Time
}

func newMemoryCache(cfg *config.LookupCacheConfig) *memoryCache {
	m := &memoryCache{
		ttl:   cfg.TTL,
		store: make(map[string]time.Time),
	}

	// 啟動清理過期條目的協程
	go m.startCleanup()

	common.LogInfo("查無結果快取已初始化（記憶體）",
		zap.Duration("存活時間", cfg.TTL),
	)
	return m
}

func (m *memoryCache) IsMissing(ctx context.Context, barcode string) bool {
	m.mu.RLock()
	expiresAt, ok := m.store[barcode]
	m.mu.RUnlock()

	if !ok || time.Now().After(expiresAt) {
		common.LogCacheMiss("negative_lookup", barcode)
		return false
	}
	common.LogCacheHit("negative_lookup", barcode)
	return true
}

func (m *memoryCache) MarkMissing(ctx context.Context, barcode string) {
	m.mu.Lock()
	m.store[barcode] = time.Now().Add(m.ttl)
	m.mu.Unlock()
}

func (m *memoryCache) startCleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		m.mu.Lock()
		for key, expiresAt := range m.store {
			if now.After(expiresAt) {
				delete(m.store, key)
			}
		}
		m.mu.Unlock()
	}
}

// redisCache 跨實例共享的 Redis 實作
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(cfg *config.LookupCacheConfig) *redisCache {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	// 測試連接；連不上也不阻止啟動，之後的操作 fail-open
	if err := client.Ping(context.Background()).Err(); err != nil {
		common.LogWarn("Redis 連接失敗，查無結果快取將 fail-open",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err),
		)
	}

	common.LogInfo("查無結果快取已初始化（Redis）",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("存活時間", cfg.TTL),
	)
	return &redisCache{client: client, ttl: cfg.TTL}
}

func (r *redisCache) key(barcode string) string {
	return fmt.Sprintf("safebite:lookup:missing:%s", barcode)
}

func (r *redisCache) IsMissing(ctx context.Context, barcode string) bool {
	n, err := r.client.Exists(ctx, r.key(barcode)).Result()
	if err != nil {
		common.LogWarn("讀取查無結果快取失敗", zap.Error(err))
		return false
	}
	if n == 0 {
		common.LogCacheMiss("negative_lookup", barcode)
		return false
	}
	common.LogCacheHit("negative_lookup", barcode)
	return true
}

func (r *redisCache) MarkMissing(ctx context.Context, barcode string) {
	if err := r.client.Set(ctx, r.key(barcode), "1", r.ttl).Err(); err != nil {
		common.LogWarn("寫入查無結果快取失敗", zap.Error(err))
	}
}
