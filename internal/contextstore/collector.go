package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"presentos/internal/model"
)

// RedisCollector reads the JSON entry an external collector wrote under <prefix><kind>.
type RedisCollector struct {
	rdb    redis.Cmdable
	kind   model.ContextKind
	prefix string
}

func NewRedisCollector(rdb redis.Cmdable, kind model.ContextKind, prefix string) *RedisCollector {
	if prefix == "" {
		prefix = "context:"
	}
	return &RedisCollector{rdb: rdb, kind: kind, prefix: prefix}
}

// RedisCollectors one collector per kind.
func RedisCollectors(rdb redis.Cmdable, prefix string) []Collector {
	out := make([]Collector, 0, len(model.ContextKinds))
	for _, k := range model.ContextKinds {
		out = append(out, NewRedisCollector(rdb, k, prefix))
	}
	return out
}

func (c *RedisCollector) Kind() model.ContextKind { return c.kind }

func (c *RedisCollector) Key() string { return c.prefix + string(c.kind) }

func (c *RedisCollector) Collect(ctx context.Context) (model.ContextSnapshot, error) {
	raw, err := c.rdb.Get(ctx, c.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ContextSnapshot{}, nil
	}
	if err != nil {
		return model.ContextSnapshot{}, err
	}
	return DecodeEntry(c.kind, raw)
}

// DecodeEntry 解析单个条目
func DecodeEntry(kind model.ContextKind, raw []byte) (model.ContextSnapshot, error) {
	var snap model.ContextSnapshot
	var err error
	switch kind {
	case model.ContextEnergy:
		var e model.EnergyState
		if err = json.Unmarshal(raw, &e); err == nil {
			if e.Level < 0 || e.Level > 100 {
				return snap, fmt.Errorf("energy level %d out of range", e.Level)
			}
			snap.Energy = &e
		}
	case model.ContextEnvironment:
		var e model.EnvironmentState
		if err = json.Unmarshal(raw, &e); err == nil {
			snap.Environment = &e
		}
	case model.ContextCalendar:
		var c model.CalendarLoad
		if err = json.Unmarshal(raw, &c); err == nil {
			snap.Calendar = &c
		}
	default:
		return snap, fmt.Errorf("unknown context kind %q", kind)
	}
	if err != nil {
		return snap, fmt.Errorf("decode %s entry: %w", kind, err)
	}
	return snap, nil
}

// StaticCollector returns whatever Fn produces, used in tests and local runs.
type StaticCollector struct {
	K  model.ContextKind
	Fn func(ctx context.Context) (model.ContextSnapshot, error)
}

func (c StaticCollector) Kind() model.ContextKind { return c.K }

func (c StaticCollector) Collect(ctx context.Context) (model.ContextSnapshot, error) {
	return c.Fn(ctx)
}
