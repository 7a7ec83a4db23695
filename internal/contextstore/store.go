package contextstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"presentos/internal/model"
)

// Collector 情境采集器，每个采集器只负责一种条目
type Collector interface {
	Kind() model.ContextKind
	// Collect returns a snapshot with only its own entry set.
	// A nil entry with nil error means nothing new was collected.
	Collect(ctx context.Context) (model.ContextSnapshot, error)
}

type Config struct {
	CollectTimeout time.Duration `yaml:"collect_timeout"`
	// Staleness overrides keyed by kind name
	Staleness map[model.ContextKind]time.Duration `yaml:"staleness"`
	KeyPrefix string                              `yaml:"key_prefix"`
}

func (c Config) withDefaults() Config {
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = 3 * time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "context:"
	}
	return c
}

// Store 持有最新快照；刷新时整体替换指针，读者永远看到完整快照
type Store struct {
	cfg        Config
	collectors []Collector
	current    atomic.Pointer[model.ContextSnapshot]
	group      singleflight.Group
	logger     *zap.Logger
	now        func() time.Time
}

func NewStore(cfg Config, logger *zap.Logger, collectors ...Collector) *Store {
	s := &Store{
		cfg:        cfg.withDefaults(),
		collectors: collectors,
		logger:     logger,
		now:        time.Now,
	}
	s.current.Store(&model.ContextSnapshot{Staleness: s.cfg.Staleness})
	return s
}

// Current returns the latest snapshot without refreshing.
func (s *Store) Current() model.ContextSnapshot {
	return *s.current.Load()
}

// Set replaces the snapshot, used by push-style collectors.
func (s *Store) Set(snap model.ContextSnapshot) {
	snap.Staleness = s.cfg.Staleness
	s.current.Store(&snap)
}

// Refresh runs every collector concurrently and swaps in the merged snapshot.
// Concurrent callers share one refresh.
func (s *Store) Refresh(ctx context.Context) (model.ContextSnapshot, error) {
	v, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if shared {
		s.logger.Debug("context refresh coalesced")
	}
	snap, _ := v.(model.ContextSnapshot)
	return snap, err
}

func (s *Store) refresh(ctx context.Context) (model.ContextSnapshot, error) {
	parts := make([]model.ContextSnapshot, len(s.collectors))
	errs := make([]error, len(s.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.collectors {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.cfg.CollectTimeout)
			defer cancel()
			part, err := c.Collect(cctx)
			if err != nil {
				errs[i] = fmt.Errorf("collect %s: %w", c.Kind(), err)
				s.logger.Warn("context collector failed",
					zap.String("kind", string(c.Kind())),
					zap.Error(err),
				)
				return nil
			}
			parts[i] = part
			return nil
		})
	}
	_ = g.Wait()

	next := s.update(func(cur model.ContextSnapshot) model.ContextSnapshot {
		for _, p := range parts {
			cur = merge(cur, p)
		}
		return cur
	})
	return next, errors.Join(errs...)
}

// update 以 CAS 方式替换快照，期间有 Set 写入则基于新快照重做
func (s *Store) update(fn func(model.ContextSnapshot) model.ContextSnapshot) model.ContextSnapshot {
	for {
		cur := s.current.Load()
		next := fn(*cur)
		next.Staleness = s.cfg.Staleness
		if s.current.CompareAndSwap(cur, &next) {
			return next
		}
	}
}

// Fresh refreshes only when some entry is stale. The returned snapshot is usable even on error.
func (s *Store) Fresh(ctx context.Context) (model.ContextSnapshot, error) {
	snap := s.Current()
	stale := snap.StaleKinds(s.now())
	if len(stale) == 0 || len(s.collectors) == 0 {
		return snap, nil
	}
	s.logger.Debug("refreshing stale context", zap.Any("kinds", stale))
	return s.Refresh(ctx)
}

// merge keeps an entry from dst unless src has a newer one.
func merge(dst, src model.ContextSnapshot) model.ContextSnapshot {
	if src.Energy != nil && (dst.Energy == nil || !src.Energy.CollectedAt.Before(dst.Energy.CollectedAt)) {
		dst.Energy = src.Energy
	}
	if src.Environment != nil && (dst.Environment == nil || !src.Environment.CollectedAt.Before(dst.Environment.CollectedAt)) {
		dst.Environment = src.Environment
	}
	if src.Calendar != nil && (dst.Calendar == nil || !src.Calendar.CollectedAt.Before(dst.Calendar.CollectedAt)) {
		dst.Calendar = src.Calendar
	}
	return dst
}
