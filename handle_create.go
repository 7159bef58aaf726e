package lab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jinseisieko/se-toolkit-lab-4/models"
)

var ErrInvalidInteraction = errors.New("invalid interaction")

// CreateInteraction is the write payload for a single interaction. Pointer
// fields distinguish a missing value from a legitimate zero.
type CreateInteraction struct {
	ID        *int64 `json:"id"`
	LearnerID *int64 `json:"learner_id"`
	ItemID    *int64 `json:"item_id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`

	// ClampCreatedAt replaces an out-of-range created_at with the current
	// time instead of rejecting the interaction.
	ClampCreatedAt bool `json:"-"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInteraction, fmt.Sprintf(format, args...))
}

func (c *CreateInteraction) toLog(now time.Time) (*models.InteractionLog, error) {
	if c.ID == nil {
		return nil, invalid("id is required")
	}
	if c.LearnerID == nil {
		return nil, invalid("learner_id is required")
	}
	if c.ItemID == nil {
		return nil, invalid("item_id is required")
	}

	kind := strings.TrimSpace(c.Kind)
	if kind == "" {
		return nil, invalid("kind is required")
	}

	createdAt, err := parseCreatedAt(c.CreatedAt, now, c.ClampCreatedAt)
	if err != nil {
		return nil, err
	}

	return &models.InteractionLog{
		ID:        *c.ID,
		LearnerID: *c.LearnerID,
		ItemID:    *c.ItemID,
		Kind:      kind,
		CreatedAt: createdAt,
	}, nil
}

func parseCreatedAt(raw string, now time.Time, clamp bool) (time.Time, error) {
	if raw == "" {
		return now.UTC(), nil
	}

	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, invalid("unparseable created_at %q", raw)
	}

	if !inRange(t, now) {
		if clamp {
			return now.UTC(), nil
		}
		return time.Time{}, invalid("created_at %s is out of range", t.Format(time.RFC3339))
	}

	return t.UTC(), nil
}

func inRange(t, now time.Time) bool {
	if t.Before(now) {
		return now.Sub(t) <= time.Hour*24*365*5
	}
	return t.Sub(now) <= time.Hour*24*200
}

// handleCreate validates the interaction and queues it for insertion.
func (l *Lab) handleCreate(ctx context.Context, in *CreateInteraction) (*models.InteractionLog, error) {
	rec, err := in.toLog(time.Now())
	if err != nil {
		return nil, err
	}

	if err := l.inserter.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to queue interaction: %w", err)
	}

	return rec, nil
}
