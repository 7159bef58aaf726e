package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jinseisieko/se-toolkit-lab-4/interactions"
	"github.com/jinseisieko/se-toolkit-lab-4/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:   "labdump",
		Usage:  "print stored interactions as json lines",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "clickhouse-addr",
				EnvVars:  []string{"LAB_CLICKHOUSE_ADDR"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "clickhouse-database",
				EnvVars:  []string{"LAB_CLICKHOUSE_DATABASE"},
				Required: true,
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
			&cli.Int64Flag{
				Name:  "item-id",
				Usage: "only print interactions with this item id",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var run = func(cmd *cli.Context) error {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cmd.String("clickhouse-addr")},
		Auth: clickhouse.Auth{
			Database: cmd.String("clickhouse-database"),
			Username: cmd.String("clickhouse-user"),
			Password: cmd.String("clickhouse-pass"),
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	logs, err := store.NewClickHouse(conn, nil).ListInteractions(cmd.Context)
	if err != nil {
		return err
	}

	var itemID *int64
	if cmd.IsSet("item-id") {
		v := cmd.Int64("item-id")
		itemID = &v
	}

	enc := json.NewEncoder(os.Stdout)
	for _, l := range interactions.FilterByItemID(logs, itemID) {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}

	return nil
}
