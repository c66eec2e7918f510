package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

const keyPrefix = "achievements:directory:"

// Cached — справочник с кэшем в Redis. Промахи и ошибки Redis уходят в next;
// «не найдено» не кэшируется.
type Cached struct {
	next workflow.Directory
	rdb  redis.UniversalClient
	ttl  time.Duration
	log  *zap.Logger
}

func NewCached(next workflow.Directory, rdb redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: log}
}

func StudentKey(id uuid.UUID) string  { return keyPrefix + "student:" + id.String() }
func CategoryKey(id uuid.UUID) string { return keyPrefix + "category:" + id.String() }

func (c *Cached) get(ctx context.Context, key string, out any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("directory cache get", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn("directory cache decode", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cached) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("directory cache set", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cached) Student(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var dto studentDTO
	if c.get(ctx, StudentKey(id), &dto) {
		return dto.model(), nil
	}
	s, err := c.next.Student(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, StudentKey(id), studentDTO{ID: s.ID, NISN: s.NISN, Name: s.Name, ClassName: s.ClassName})
	return s, nil
}

func (c *Cached) Category(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var dto categoryDTO
	if c.get(ctx, CategoryKey(id), &dto) {
		return dto.model(), nil
	}
	cat, err := c.next.Category(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, CategoryKey(id), categoryDTO{ID: cat.ID, Code: cat.Code, Name: cat.Name, Type: string(cat.Type), BasePoints: cat.BasePoints})
	return cat, nil
}

// Invalidate удаляет закэшированные записи.
func (c *Cached) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, StudentKey(id), CategoryKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
