package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	lab "github.com/jinseisieko/se-toolkit-lab-4"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:   "lab",
		Usage:  "interaction log service backed by clickhouse",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"LAB_HTTP_ADDR"},
				Value:   ":8080",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LAB_LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "clickhouse-addr",
				EnvVars: []string{"LAB_CLICKHOUSE_ADDR"},
				Value:   "localhost:9000",
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				EnvVars: []string{"LAB_CLICKHOUSE_DATABASE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				EnvVars: []string{"LAB_CLICKHOUSE_USER"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:     "clickhouse-pass",
				EnvVars:  []string{"LAB_CLICKHOUSE_PASS"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "batch-size",
				EnvVars: []string{"LAB_BATCH_SIZE"},
				Value:   500,
			},
			&cli.DurationFlag{
				Name:    "flush-interval",
				EnvVars: []string{"LAB_FLUSH_INTERVAL"},
				Value:   2 * time.Second,
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				EnvVars: []string{"LAB_CACHE_TTL"},
				Value:   5 * time.Second,
			},
			&cli.StringFlag{
				Name:    "upstream-url",
				Usage:   "base url of the autochecker api; scraping is disabled when empty",
				EnvVars: []string{"LAB_UPSTREAM_URL"},
			},
			&cli.StringFlag{
				Name:    "upstream-user",
				EnvVars: []string{"LAB_UPSTREAM_USER"},
			},
			&cli.StringFlag{
				Name:    "upstream-pass",
				EnvVars: []string{"LAB_UPSTREAM_PASS"},
			},
			&cli.IntFlag{
				Name:    "upstream-rps",
				EnvVars: []string{"LAB_UPSTREAM_RPS"},
				Value:   5,
			},
			&cli.StringFlag{
				Name:    "scrape-cursor-file",
				EnvVars: []string{"LAB_SCRAPE_CURSOR_FILE"},
				Value:   "lab-scrape-cursor.txt",
			},
			&cli.IntFlag{
				Name:    "scrape-page-size",
				EnvVars: []string{"LAB_SCRAPE_PAGE_SIZE"},
				Value:   500,
			},
			&cli.DurationFlag{
				Name:    "scrape-idle-interval",
				EnvVars: []string{"LAB_SCRAPE_IDLE_INTERVAL"},
				Value:   30 * time.Second,
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("lab exited with error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var run = func(cmd *cli.Context) error {
	ctx := cmd.Context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cmd.String("log-level")),
	}))

	svc, err := lab.New(ctx, &lab.Args{
		Logger:             l,
		HTTPAddr:           cmd.String("http-addr"),
		ClickhouseAddr:     cmd.String("clickhouse-addr"),
		ClickhouseDatabase: cmd.String("clickhouse-database"),
		ClickhouseUser:     cmd.String("clickhouse-user"),
		ClickhousePass:     cmd.String("clickhouse-pass"),
		BatchSize:          cmd.Int("batch-size"),
		FlushInterval:      cmd.Duration("flush-interval"),
		CacheTTL:           cmd.Duration("cache-ttl"),
		UpstreamURL:        cmd.String("upstream-url"),
		UpstreamUser:       cmd.String("upstream-user"),
		UpstreamPass:       cmd.String("upstream-pass"),
		UpstreamRPS:        cmd.Int("upstream-rps"),
		ScrapeCursorFile:   cmd.String("scrape-cursor-file"),
		ScrapePageSize:     cmd.Int("scrape-page-size"),
		ScrapeIdleTimeout:  cmd.Duration("scrape-idle-interval"),
	})
	if err != nil {
		return err
	}

	go func() {
		exitSignals := make(chan os.Signal, 1)
		signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)

		sig := <-exitSignals

		l.Info("received os exit signal", "signal", sig)
		cancel()
	}()

	return svc.Run(ctx)
}
