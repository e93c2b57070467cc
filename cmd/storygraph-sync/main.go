// storygraph-sync replays reading state from Audible and Goodreads
// into a StoryGraph account through a driven browser. Each invocation
// runs one flow for one profile and exits.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/config"
	"github.com/jtara/storygraph-sync/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "storygraph-sync",
		Usage:   "Sync Audible progress and Goodreads history into StoryGraph",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:     "profile",
				Aliases:  []string{"p"},
				Usage:    "Profile name; scopes sync state and run history",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "apply",
				Usage: "Perform writes; without this flag the run is a dry run",
			},
			&cli.BoolFlag{
				Name:  "headed",
				Usage: "Run the browser with a visible window",
			},
			&cli.IntFlag{
				Name:  "max-results",
				Usage: "Maximum search results considered per book",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "progress",
				Usage:  "Sync in-progress Audible percentages to StoryGraph",
				Action: runProgress,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-export",
						Usage: "Reuse the existing library export instead of fetching a fresh one",
					},
				},
			},
			{
				Name:   "read",
				Usage:  "Sync finished Goodreads books to StoryGraph",
				Action: runRead,
				Flags: []cli.Flag{
					&cli.TimestampFlag{
						Name:   "seed-before",
						Usage:  "Mark reviews finished on or before `DATE` (YYYY-MM-DD) as processed without writing",
						Layout: "2006-01-02",
					},
				},
			},
			{
				Name:   "runs",
				Usage:  "Show recent run history for a profile",
				Action: showRuns,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Get().Error("Run failed", errorFields(err))
		os.Exit(1)
	}
}

// errorFields builds the log fields for a fatal run error. Login
// failures carry an instruction for the user; it must end up in the
// output, not just inside the error value.
func errorFields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error": err.Error(),
	}

	var authErr *browser.AuthenticationError
	if errors.As(err, &authErr) && authErr.Remediation != "" {
		fields["remediation"] = authErr.Remediation
	}
	return fields
}

// loadConfig builds the effective configuration for one invocation:
// file and environment first, then command-line flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.Bool("apply") {
		cfg.Sync.DryRun = false
	}
	if c.Bool("headed") {
		cfg.Browser.Headless = false
	}
	if n := c.Int("max-results"); n > 0 {
		cfg.Sync.MaxResults = n
	}

	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
	})

	logger.Get().Info("Starting storygraph-sync", map[string]interface{}{
		"version": version,
		"profile": c.String("profile"),
		"dry_run": cfg.Sync.DryRun,
	})

	return cfg, nil
}
