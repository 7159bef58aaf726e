package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinseisieko/se-toolkit-lab-4/models"
)

const listInteractionsQuery = "SELECT id, learner_id, item_id, kind, created_at FROM interaction ORDER BY id"

// Selector is satisfied by a clickhouse-go driver.Conn.
type Selector interface {
	Select(ctx context.Context, dest any, query string, args ...any) error
}

type ClickHouse struct {
	conn   Selector
	logger *slog.Logger
}

func NewClickHouse(conn Selector, logger *slog.Logger) *ClickHouse {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClickHouse{
		conn:   conn,
		logger: logger,
	}
}

// ListInteractions loads every stored interaction ordered by id.
func (c *ClickHouse) ListInteractions(ctx context.Context) ([]models.InteractionLog, error) {
	var logs []models.InteractionLog
	if err := c.conn.Select(ctx, &logs, listInteractionsQuery); err != nil {
		return nil, fmt.Errorf("failed to select interactions: %w", err)
	}

	c.logger.Debug("loaded interactions", "count", len(logs))

	if logs == nil {
		logs = []models.InteractionLog{}
	}

	return logs, nil
}
