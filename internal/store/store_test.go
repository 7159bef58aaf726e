package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jinseisieko/se-toolkit-lab-4/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSelector struct {
	rows    []models.InteractionLog
	err     error
	queries []string
}

func (s *fakeSelector) Select(ctx context.Context, dest any, query string, args ...any) error {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return s.err
	}
	out := dest.(*[]models.InteractionLog)
	*out = append(*out, s.rows...)
	return nil
}

type countingReader struct {
	calls int
	logs  []models.InteractionLog
	err   error
}

func (r *countingReader) ListInteractions(ctx context.Context) ([]models.InteractionLog, error) {
	r.calls++
	return r.logs, r.err
}

func TestClickHouse_ListInteractions(t *testing.T) {
	sel := &fakeSelector{rows: []models.InteractionLog{
		{ID: 1, LearnerID: 2, ItemID: 3, Kind: "attempt"},
		{ID: 2, LearnerID: 3, ItemID: 3, Kind: "view"},
	}}
	ch := NewClickHouse(sel, nil)

	logs, err := ch.ListInteractions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sel.rows, logs)
	assert.Equal(t, []string{listInteractionsQuery}, sel.queries)
}

func TestClickHouse_EmptyTableIsEmptySlice(t *testing.T) {
	ch := NewClickHouse(&fakeSelector{}, nil)

	logs, err := ch.ListInteractions(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestClickHouse_SelectError(t *testing.T) {
	boom := errors.New("connection refused")
	ch := NewClickHouse(&fakeSelector{err: boom}, nil)

	_, err := ch.ListInteractions(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCached_ServesSnapshotUntilPurged(t *testing.T) {
	next := &countingReader{logs: []models.InteractionLog{{ID: 1}}}
	c := NewCached(next, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		logs, err := c.ListInteractions(ctx)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	}
	assert.Equal(t, 1, next.calls)

	c.Purge()

	_, err := c.ListInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_Expires(t *testing.T) {
	next := &countingReader{logs: []models.InteractionLog{{ID: 1}}}
	c := NewCached(next, 20*time.Millisecond)
	ctx := context.Background()

	_, err := c.ListInteractions(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := c.ListInteractions(ctx)
		return err == nil && next.calls >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &countingReader{err: errors.New("down")}
	c := NewCached(next, time.Minute)
	ctx := context.Background()

	_, err := c.ListInteractions(ctx)
	require.Error(t, err)

	next.err = nil
	next.logs = []models.InteractionLog{{ID: 9}}

	logs, err := c.ListInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), logs[0].ID)
}
