package lab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jinseisieko/se-toolkit-lab-4/autochecker"
	"github.com/jinseisieko/se-toolkit-lab-4/models"
)

const (
	defaultScrapePageSize    = 500
	defaultScrapeIdleTimeout = 30 * time.Second
	scrapeCatchUpInterval    = 500 * time.Millisecond
)

type LogFetcher interface {
	FetchLogs(ctx context.Context, since string, limit int) (*autochecker.LogsResponse, error)
}

type CreateFunc func(ctx context.Context, in *CreateInteraction) (*models.InteractionLog, error)

// LogScraper pulls interaction logs from the upstream checker and feeds them
// through the same create path as the HTTP API.
type LogScraper struct {
	fetcher     LogFetcher
	create      CreateFunc
	logger      *slog.Logger
	cursor      string
	cursorFile  string
	pageSize    int
	idleTimeout time.Duration
}

type LogScraperArgs struct {
	Logger      *slog.Logger
	Fetcher     LogFetcher
	Create      CreateFunc
	CursorFile  string
	PageSize    int
	IdleTimeout time.Duration
}

func NewLogScraper(ctx context.Context, args LogScraperArgs) (*LogScraper, error) {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if args.Fetcher == nil || args.Create == nil {
		return nil, errors.New("log scraper needs a fetcher and a create func")
	}

	if args.PageSize <= 0 {
		args.PageSize = defaultScrapePageSize
	}

	if args.IdleTimeout <= 0 {
		args.IdleTimeout = defaultScrapeIdleTimeout
	}

	return &LogScraper{
		fetcher:     args.Fetcher,
		create:      args.Create,
		logger:      args.Logger,
		cursorFile:  args.CursorFile,
		pageSize:    args.PageSize,
		idleTimeout: args.IdleTimeout,
	}, nil
}

func (s *LogScraper) Run(ctx context.Context) error {
	startCursor, err := s.getCursor()
	if err != nil {
		s.logger.Error("error getting cursor", "error", err)
	}
	s.cursor = startCursor

	ticker := time.NewTicker(scrapeCatchUpInterval)
	defer ticker.Stop()
	currTickerDuration := scrapeCatchUpInterval

	setTickerDuration := func(d time.Duration) {
		if currTickerDuration == d {
			return
		}
		ticker.Reset(d)
		currTickerDuration = d
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		hasMore, err := s.scrapeOnce(ctx)
		if err != nil {
			s.logger.Error("error scraping logs", "cursor", s.cursor, "error", err)
			setTickerDuration(s.idleTimeout)
			continue
		}

		if hasMore {
			setTickerDuration(scrapeCatchUpInterval)
		} else {
			setTickerDuration(s.idleTimeout)
		}
	}
}

// scrapeOnce fetches and stores one page after the current cursor.
func (s *LogScraper) scrapeOnce(ctx context.Context) (bool, error) {
	s.logger.Info("performing scrape", "cursor", s.cursor)

	resp, err := s.fetcher.FetchLogs(ctx, s.cursor, s.pageSize)
	if err != nil {
		return false, err
	}

	for _, upstream := range resp.Logs {
		// stop inserting if context is cancelled
		if ctx.Err() != nil {
			return false, nil
		}

		in := createFromUpstream(upstream)
		if _, err := s.create(ctx, &in); err != nil {
			s.logger.Error("error creating interaction from upstream log", "id", upstream.ID, "error", err)
		}

		if upstream.CreatedAt != "" {
			s.cursor = upstream.CreatedAt
		}
	}

	if len(resp.Logs) > 0 {
		if err := s.saveCursor(s.cursor); err != nil {
			s.logger.Error("error saving cursor", "error", err)
		}
	}

	return resp.HasMore && len(resp.Logs) > 0, nil
}

func createFromUpstream(l autochecker.Log) CreateInteraction {
	id, learnerID, itemID := l.ID, l.LearnerID, l.ItemID
	return CreateInteraction{
		ID:             &id,
		LearnerID:      &learnerID,
		ItemID:         &itemID,
		Kind:           l.Kind,
		CreatedAt:      l.CreatedAt,
		ClampCreatedAt: true,
	}
}

func (s *LogScraper) getCursor() (string, error) {
	if s.cursorFile == "" {
		return "", nil
	}

	cursor, err := os.ReadFile(s.cursorFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read cursor: %w", err)
	}
	return strings.TrimSpace(string(cursor)), nil
}

func (s *LogScraper) saveCursor(cursor string) error {
	if s.cursorFile == "" {
		return nil
	}

	if err := os.WriteFile(s.cursorFile, []byte(cursor), 0644); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}

	s.logger.Debug("saved cursor", "cursor", cursor)

	return nil
}
