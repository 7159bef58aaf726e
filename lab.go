package lab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jinseisieko/se-toolkit-lab-4/autochecker"
	"github.com/jinseisieko/se-toolkit-lab-4/clickhouse_inserter"
	"github.com/jinseisieko/se-toolkit-lab-4/internal/store"
	"github.com/jinseisieko/se-toolkit-lab-4/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const insertInteractionQuery = "INSERT INTO interaction (id, learner_id, item_id, kind, created_at)"

type InteractionReader interface {
	ListInteractions(ctx context.Context) ([]models.InteractionLog, error)
}

type InteractionInserter interface {
	Insert(ctx context.Context, e any) error
	Close(ctx context.Context) error
}

type Lab struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	httpAddr string

	reader   InteractionReader
	inserter InteractionInserter

	scraper *LogScraper

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gatherer        prometheus.Gatherer

	conn driver.Conn
}

type Args struct {
	Logger             *slog.Logger
	HTTPAddr           string
	ClickhouseAddr     string
	ClickhouseDatabase string
	ClickhouseUser     string
	ClickhousePass     string
	BatchSize          int
	FlushInterval      time.Duration
	CacheTTL           time.Duration
	Registerer         prometheus.Registerer
	Gatherer           prometheus.Gatherer

	UpstreamURL       string
	UpstreamUser      string
	UpstreamPass      string
	UpstreamRPS       int
	ScrapeCursorFile  string
	ScrapePageSize    int
	ScrapeIdleTimeout time.Duration
}

func New(ctx context.Context, args *Args) (*Lab, error) {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{args.ClickhouseAddr},
		Auth: clickhouse.Auth{
			Database: args.ClickhouseDatabase,
			Username: args.ClickhouseUser,
			Password: args.ClickhousePass,
		},
	})
	if err != nil {
		return nil, err
	}

	if args.Registerer == nil {
		args.Registerer = prometheus.DefaultRegisterer
	}

	if args.Gatherer == nil {
		args.Gatherer = prometheus.DefaultGatherer
	}

	insertionsHist := promauto.With(args.Registerer).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lab_inserts_time",
		Help:    "histogram of lab inserts",
		Buckets: prometheus.ExponentialBucketsRange(0.0001, 30, 20),
	}, []string{"type"})

	cached := store.NewCached(store.NewClickHouse(conn, args.Logger), args.CacheTTL)

	ii, err := clickhouse_inserter.New(ctx, &clickhouse_inserter.Args{
		PrometheusCounterPrefix: "lab_interactions",
		Registerer:              args.Registerer,
		Histogram:               insertionsHist,
		BatchSize:               args.BatchSize,
		FlushInterval:           args.FlushInterval,
		Logger:                  args.Logger,
		Conn:                    clickhouse_inserter.WrapConn(conn),
		Query:                   insertInteractionQuery,
		OnFlush:                 cached.Purge,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	l := newLab(&deps{
		logger:     args.Logger,
		httpAddr:   args.HTTPAddr,
		reader:     cached,
		inserter:   ii,
		registerer: args.Registerer,
		gatherer:   args.Gatherer,
	})
	l.conn = conn

	if args.UpstreamURL != "" {
		client := autochecker.NewClient(autochecker.Args{
			Endpoint:          args.UpstreamURL,
			User:              args.UpstreamUser,
			Password:          args.UpstreamPass,
			RequestsPerSecond: args.UpstreamRPS,
		})

		scraper, err := NewLogScraper(ctx, LogScraperArgs{
			Logger:      args.Logger,
			Fetcher:     client,
			Create:      l.handleCreate,
			CursorFile:  args.ScrapeCursorFile,
			PageSize:    args.ScrapePageSize,
			IdleTimeout: args.ScrapeIdleTimeout,
		})
		if err != nil {
			ii.Close(ctx)
			conn.Close()
			return nil, err
		}

		l.scraper = scraper
	}

	return l, nil
}

type deps struct {
	logger     *slog.Logger
	httpAddr   string
	reader     InteractionReader
	inserter   InteractionInserter
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

func newLab(d *deps) *Lab {
	factory := promauto.With(d.registerer)

	return &Lab{
		logger:   d.logger,
		httpAddr: d.httpAddr,
		reader:   d.reader,
		inserter: d.inserter,
		gatherer: d.gatherer,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lab_http_requests",
			Help: "total http requests by route and status",
		}, []string{"route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lab_http_request_duration_seconds",
			Help:    "histogram of http request durations",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (l *Lab) Run(baseCtx context.Context) error {
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	srv := &http.Server{
		Addr:              l.httpAddr,
		Handler:           l.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.logger.Info("starting http server", "addr", l.httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("http server failed", "error", err)
			serveErr <- fmt.Errorf("http server failed: %w", err)
			cancel()
		}
	}()

	if l.scraper != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := l.scraper.Run(ctx); err != nil {
				l.logger.Error("log scraper stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	l.logger.Info("stopping http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.logger.Error("failed to shut down http server", "error", err)
	}

	l.wg.Wait()

	l.logger.Info("stopping inserter")
	if err := l.inserter.Close(shutdownCtx); err != nil {
		l.logger.Error("failed to close interactions inserter", "error", err)
	} else {
		l.logger.Info("interactions inserter closed")
	}

	var runErr error
	select {
	case runErr = <-serveErr:
	default:
	}

	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to close clickhouse connection: %w", err))
		}
	}

	return runErr
}
