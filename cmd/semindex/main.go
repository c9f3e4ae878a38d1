// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/config"
	"github.com/poiesic/semindex/storage/sqlite"
)

const (
	configKey = "config"
	closerKey = "logCloser"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "semindex",
		Usage: "Semantic index for job-tracker content",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "semindex.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to a rotating file instead of stderr",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the database (badger directory or SQLite file)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Persistent store (badger, sqlite)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Embedding backend (hugot, openai, mock)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Load the embedding model and report progress",
				Action: initCommand,
			},
			{
				Name:   "index",
				Usage:  "Embed every entity of a corpus file",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "corpus",
						Usage:    "YAML or JSON corpus file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed entities whose content is unchanged",
					},
					&cli.BoolFlag{
						Name:  "summaries",
						Usage: "Embed document summaries instead of full text",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entities",
						Value: 1,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the index",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "type",
						Usage: "Restrict results to entity types",
					},
					&cli.StringFlag{
						Name:  "job",
						Usage: "Restrict results to one job and what it owns",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score",
					},
				},
			},
			{
				Name:   "similar",
				Usage:  "List jobs similar to a job",
				Action: similarCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Usage:    "Job ID",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Re-embed a corpus file's entities whenever it changes",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "corpus",
						Usage:    "YAML or JSON corpus file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "summaries",
						Usage: "Embed document summaries instead of full text",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show embedded entity counts and model status",
				Action: statsCommand,
			},
			{
				Name:   "delete",
				Usage:  "Remove an entity, or a job and everything it owns",
				Action: deleteCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Entity type",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Entity ID",
					},
					&cli.StringFlag{
						Name:  "job",
						Usage: "Job ID; removes the job and its notes, Q&A and cover letter",
					},
				},
			},
			{
				Name:   "clear",
				Usage:  "Remove every embedding",
				Action: clearCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to the configured server address)",
					},
				},
			},
		},
	}
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("store") {
		cfg.Store = c.String("store")
	}
	if c.IsSet("backend") {
		cfg.Model.Backend = c.String("backend")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	c.App.Metadata[closerKey] = closer
	return nil
}

func teardown(c *cli.Context) error {
	if closer, ok := c.App.Metadata[closerKey].(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func configFrom(c *cli.Context) (*config.Config, error) {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// openIndex opens the index on the configured store.
func openIndex(c *cli.Context) (*semindex.Index, *config.Config, error) {
	cfg, err := configFrom(c)
	if err != nil {
		return nil, nil, err
	}

	opts := append(cfg.IndexOptions(), semindex.WithLogger(slog.Default()))
	path := cfg.DBPath
	var store *sqlite.Store
	if cfg.Store == config.StoreSQLite {
		store, err = sqlite.Open(cfg.DBPath, sqlite.WithDimensions(cfg.Model.Dimensions))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		opts = append(opts, semindex.WithStore(store))
		path = ""
	}

	idx, err := semindex.Open(path, opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	return idx, cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
