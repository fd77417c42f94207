package grounding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/metrics"
)

// Cache stores embeddings keyed by content hash.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, value []float32)
}

// CachingEmbedder wraps another Embedder and serves repeated texts from a Cache.
type CachingEmbedder struct {
	base  Embedder
	cache Cache
	model string
}

// NewCachingEmbedder returns base unchanged when cache is nil.
func NewCachingEmbedder(base Embedder, cache Cache, model string) Embedder {
	if cache == nil {
		return base
	}
	return &CachingEmbedder{base: base, cache: cache, model: model}
}

// Embed returns cached vectors where available and embeds only the misses.
func (c *CachingEmbedder) Embed(ctx context.Context, texts []string, kind InputKind) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var (
		missing    []string
		missingIdx []int
	)
	for i, text := range texts {
		keys[i] = cacheKey(c.model, kind, text)
		if vec, ok := c.cache.Get(ctx, keys[i]); ok {
			metrics.RecordEmbeddingCache("hit")
			out[i] = vec
			continue
		}
		metrics.RecordEmbeddingCache("miss")
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.base.Embed(ctx, missing, kind)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: want %d got %d", len(missing), len(vectors))
	}
	for j, idx := range missingIdx {
		out[idx] = vectors[j]
		c.cache.Set(ctx, keys[idx], vectors[j])
	}
	return out, nil
}

func cacheKey(model string, kind InputKind, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + string(kind) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	value     []float32
	expiresAt time.Time
}

// MemoryCache is a bounded LRU with per-entry expiry.
type MemoryCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryCache holds at most size embeddings for ttl each.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &MemoryCache{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	val, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := val.(memoryEntry)
	if m.ttl > 0 && m.now().After(entry.expiresAt) {
		m.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []float32) {
	m.cache.Add(key, memoryEntry{value: value, expiresAt: m.now().Add(m.ttl)})
}

// RedisCache shares embeddings across instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisCache{client: client, prefix: "tubepilot:embedding:", ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return decodeVector(data)
}

func (r *RedisCache) Set(ctx context.Context, key string, value []float32) {
	if err := r.client.Set(ctx, r.prefix+key, encodeVector(value), r.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("embedding cache write failed", slog.Any("error", err))
	}
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func encodeVector(value []float32) []byte {
	data := make([]byte, len(value)*4)
	for i, f := range value {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	return data
}

func decodeVector(data []byte) ([]float32, bool) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true
}
