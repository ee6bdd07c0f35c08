package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"ebantek/internal/cache"
	"ebantek/internal/models"

	"github.com/redis/go-redis/v9"
)

// DraftRepository stores per-user form draft snapshots in Redis.
// Each user owns a hash keyed by draft key, one field per draft.
type DraftRepository interface {
	Save(ctx context.Context, userID uint, draft *models.DraftSnapshot) error
	Get(ctx context.Context, userID uint, key string) (*models.DraftSnapshot, error)
	List(ctx context.Context, userID uint) ([]models.DraftSnapshot, error)
	Remove(ctx context.Context, userID uint, key string) error
}

type draftRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDraftRepository returns a Redis-backed DraftRepository.
func NewDraftRepository(rdb *redis.Client) DraftRepository {
	return &draftRepository{
		rdb: rdb,
		ttl: 30 * 24 * time.Hour,
	}
}

func (r *draftRepository) Save(ctx context.Context, userID uint, draft *models.DraftSnapshot) error {
	if r.rdb == nil {
		return models.NewInternalError(redis.ErrClosed)
	}
	if draft.SavedAt.IsZero() {
		draft.SavedAt = time.Now()
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		return models.NewInternalError(err)
	}

	hashKey := cache.DraftsKey(userID)
	if err := r.rdb.HSet(ctx, hashKey, draft.Key, raw).Err(); err != nil {
		return models.NewInternalError(err)
	}
	// Refresh the retention window on every save.
	r.rdb.Expire(ctx, hashKey, r.ttl)
	return nil
}

func (r *draftRepository) Get(ctx context.Context, userID uint, key string) (*models.DraftSnapshot, error) {
	if r.rdb == nil {
		return nil, models.NewInternalError(redis.ErrClosed)
	}

	raw, err := r.rdb.HGet(ctx, cache.DraftsKey(userID), key).Bytes()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("Draft", key)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	var draft models.DraftSnapshot
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &draft, nil
}

func (r *draftRepository) List(ctx context.Context, userID uint) ([]models.DraftSnapshot, error) {
	if r.rdb == nil {
		return nil, models.NewInternalError(redis.ErrClosed)
	}

	fields, err := r.rdb.HGetAll(ctx, cache.DraftsKey(userID)).Result()
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	drafts := make([]models.DraftSnapshot, 0, len(fields))
	for _, raw := range fields {
		var draft models.DraftSnapshot
		if err := json.Unmarshal([]byte(raw), &draft); err != nil {
			continue
		}
		drafts = append(drafts, draft)
	}

	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].SavedAt.After(drafts[j].SavedAt)
	})
	return drafts, nil
}

func (r *draftRepository) Remove(ctx context.Context, userID uint, key string) error {
	if r.rdb == nil {
		return models.NewInternalError(redis.ErrClosed)
	}

	removed, err := r.rdb.HDel(ctx, cache.DraftsKey(userID), key).Result()
	if err != nil {
		return models.NewInternalError(err)
	}
	if removed == 0 {
		return models.NewNotFoundError("Draft", key)
	}
	return nil
}
