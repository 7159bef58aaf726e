package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jinseisieko/se-toolkit-lab-4/models"
)

const snapshotKey = "interactions"

type Reader interface {
	ListInteractions(ctx context.Context) ([]models.InteractionLog, error)
}

// Cached keeps the last full interaction listing for ttl. The returned slice
// is shared between callers and must not be modified.
type Cached struct {
	next  Reader
	cache *expirable.LRU[string, []models.InteractionLog]
}

func NewCached(next Reader, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, []models.InteractionLog](1, nil, ttl),
	}
}

func (c *Cached) ListInteractions(ctx context.Context) ([]models.InteractionLog, error) {
	if logs, ok := c.cache.Get(snapshotKey); ok {
		return logs, nil
	}

	logs, err := c.next.ListInteractions(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.Add(snapshotKey, logs)

	return logs, nil
}

// Purge drops the cached snapshot so the next read goes to storage.
func (c *Cached) Purge() {
	c.cache.Purge()
}
