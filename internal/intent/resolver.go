package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"presentos/internal/model"
)

// ErrUnresolvedIntent 没有任何子句达到置信度阈值，调用方应追问而不是猜测
var ErrUnresolvedIntent = errors.New("unresolved intent")

const (
	DefaultMinConfidence = 0.35
	defaultCacheSize     = 256
	defaultCacheTTL      = 5 * time.Minute
)

type Config struct {
	MinConfidence float64       `yaml:"min_confidence"`
	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type cacheEntry struct {
	intents  []model.Intent
	storedAt time.Time
}

// Resolver 将一句话拆成有序的意图列表
type Resolver struct {
	classifier Classifier
	threshold  float64
	cache      *lru.Cache[string, cacheEntry]
	ttl        time.Duration
	logger     *zap.Logger
}

func NewResolver(cfg Config, classifier Classifier, logger *zap.Logger) *Resolver {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, cacheEntry](cfg.CacheSize)
	return &Resolver{
		classifier: classifier,
		threshold:  cfg.MinConfidence,
		cache:      cache,
		ttl:        cfg.CacheTTL,
		logger:     logger,
	}
}

// Resolve returns intents in clause order, or ErrUnresolvedIntent.
func (r *Resolver) Resolve(ctx context.Context, u model.Utterance) ([]model.Intent, error) {
	clauses := SplitClauses(u.Text)
	key := cacheKey(clauses)
	if key == "" {
		return nil, ErrUnresolvedIntent
	}
	if entry, ok := r.cache.Get(key); ok {
		if time.Since(entry.storedAt) < r.ttl {
			return cloneIntents(entry.intents), nil
		}
		r.cache.Remove(key)
	}

	var intents []model.Intent
	for i, clause := range clauses {
		in, err := r.classifier.Classify(ctx, clause)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("clause classification failed",
				zap.String("clause", clause),
				zap.Error(err),
			)
			continue
		}
		if in.Confidence < r.threshold || !in.Kind.Valid() {
			r.logger.Debug("clause below confidence threshold",
				zap.String("clause", clause),
				zap.String("kind", string(in.Kind)),
				zap.Float64("confidence", in.Confidence),
			)
			continue
		}
		in.Clause = clause
		in.Index = i
		intents = append(intents, in)
	}

	if len(intents) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedIntent, u.Text)
	}
	r.cache.Add(key, cacheEntry{intents: cloneIntents(intents), storedAt: time.Now()})
	return intents, nil
}

// cacheKey 按切分结果生成，切分不同的句子不共享缓存
func cacheKey(clauses []string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if n := normalize(c); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " | ")
}

func cloneIntents(in []model.Intent) []model.Intent {
	out := make([]model.Intent, len(in))
	for i, v := range in {
		if v.Params != nil {
			params := make(map[string]string, len(v.Params))
			for k, p := range v.Params {
				params[k] = p
			}
			v.Params = params
		}
		out[i] = v
	}
	return out
}
