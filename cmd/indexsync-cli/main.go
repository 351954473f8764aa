package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/bootstrap"
	"github.com/kailas-cloud/indexsync/internal/config"
	logpkg "github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/version"
)

// pipelineFactory builds the pipeline a command runs against.
type pipelineFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*bootstrap.Pipeline, error)

func main() {
	if err := newApp(bootstrap.NewPipeline).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(build pipelineFactory) *cli.App {
	return &cli.App{
		Name:    "indexsync-cli",
		Usage:   "Operate the indexsync pipeline: replay change events, query and provision indices",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Configuration environment (config/<env>.yaml)",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Explicit configuration file, overrides --env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "replay",
				Usage:  "Dispatch change events from a batch file or an archived dead letter",
				Action: withPipeline(build, replayCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Batch file ({\"Records\":[...]} or a single record)",
					},
					&cli.StringFlag{
						Name:  "dead-letter",
						Usage: "Archived dead letter file",
					},
					&cli.StringFlag{
						Name:  "s3-key",
						Usage: "Object key of an archived dead letter in the configured bucket",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Override the provenance of every event (table name, stream ARN or cdc.<table>)",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Run a query against a tenant index",
				Action: withPipeline(build, searchCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Usage:    "Tenant id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "fulltext, fuzzy, prefix, autocomplete or hybrid",
						Value: "fulltext",
					},
					&cli.StringFlag{
						Name:  "stage",
						Usage: "Stage to query, defaults to the configured stage",
					},
					&cli.IntFlag{
						Name:  "from",
						Usage: "Number of hits to skip",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Page size",
						Value: 10,
					},
				},
			},
			{
				Name:   "provision",
				Usage:  "Create missing tenant indices for a stage",
				Action: withPipeline(build, provisionCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "stage",
						Usage: "Stage to provision, defaults to the configured stage",
					},
					&cli.StringFlag{
						Name:  "tenant",
						Usage: "Only this tenant",
					},
					&cli.BoolFlag{
						Name:  "recreate",
						Usage: "Drop and recreate the index (requires --tenant, deletes documents)",
					},
				},
			},
		},
	}
}

// withPipeline loads configuration, builds the logger and pipeline, and runs action.
func withPipeline(build pipelineFactory, action func(*cli.Context, *bootstrap.Pipeline, *zap.Logger) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		var (
			cfg config.Config
			err error
		)
		if path := c.String("config"); path != "" {
			cfg, err = config.LoadFile(path)
		} else {
			cfg, err = config.Load(c.String("env"))
		}
		if err != nil {
			return err
		}

		logger, err := logpkg.NewLogger(c.String("env"), "indexsync-cli", c.String("log-level"))
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		p, err := build(c.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		return action(c, p, logger)
	}
}
