package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"idPhoto/client/models"
)

const (
	statusKeyPrefix = "idphoto:task:status:"
	statusTTL       = 10 * time.Minute
)

// KV is the subset of database.Cache the status cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Observation is the last status seen for a task.
type Observation struct {
	Status     models.TaskStatus `json:"status"`
	ObservedAt time.Time         `json:"observed_at"`
}

// StatusCache remembers the last observed status of each task so other
// processes (batch, watch) can report on in-flight work.
type StatusCache struct {
	cache KV
	now   func() time.Time
}

func NewStatusCache(cache KV) *StatusCache {
	return &StatusCache{cache: cache, now: time.Now}
}

func (sc *StatusCache) Get(ctx context.Context, taskID string) (*Observation, error) {
	data, err := sc.cache.Get(ctx, statusKeyPrefix+taskID)
	if err != nil {
		return nil, err
	}

	var obs Observation
	if err := json.Unmarshal([]byte(data), &obs); err != nil {
		return nil, fmt.Errorf("decode status for %s: %w", taskID, err)
	}
	return &obs, nil
}

func (sc *StatusCache) Set(ctx context.Context, taskID string, status models.TaskStatus) error {
	data, err := json.Marshal(Observation{Status: status, ObservedAt: sc.now().UTC()})
	if err != nil {
		return err
	}
	return sc.cache.Set(ctx, statusKeyPrefix+taskID, data, statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, taskID string) error {
	return sc.cache.Del(ctx, statusKeyPrefix+taskID)
}
