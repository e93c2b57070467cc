package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jtara/storygraph-sync/internal/audible"
	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/config"
	"github.com/jtara/storygraph-sync/internal/database"
	"github.com/jtara/storygraph-sync/internal/goodreads"
	"github.com/jtara/storygraph-sync/internal/logger"
	"github.com/jtara/storygraph-sync/internal/match"
	"github.com/jtara/storygraph-sync/internal/storygraph"
	"github.com/jtara/storygraph-sync/internal/sync"
	"github.com/jtara/storygraph-sync/internal/sync/state"
)

// newService wires the resolver and reconciler from configuration.
func newService(cfg *config.Config, log *logger.Logger) *sync.Service {
	resolver := match.NewResolver(match.Policy{
		AuthorRule: match.AuthorRule(cfg.Sync.AuthorRule),
	}, log)

	recCfg := sync.DefaultReconcilerConfig()
	recCfg.VerifyTolerance = cfg.Sync.VerifyTolerance

	return sync.NewService(sync.NewReconciler(resolver, recCfg, log), log)
}

func browserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		StepTimeout: cfg.Browser.StepTimeout,
	}
}

// storygraphConnect returns a ConnectFunc that opens a session against
// the given session factory and authenticates. The session the closure
// opens is handed back through the pointer so the caller can close it.
func storygraphConnect(c *cli.Context, cfg *config.Config, log *logger.Logger, session **browser.Session) sync.ConnectFunc {
	return func() (*sync.Collaborators, error) {
		s := *session
		if s == nil {
			opened, err := browser.NewSession(c.Context, browserOptions(cfg), log)
			if err != nil {
				return nil, err
			}
			*session = opened
			s = opened
		}

		client := storygraph.NewClient(s, cfg.Sync.MaxResults, log)
		err := client.EnsureAuthenticated(storygraph.Credentials{
			Email:    cfg.StoryGraph.Email,
			Password: cfg.StoryGraph.Password,
		})
		if err != nil {
			return nil, err
		}
		return &sync.Collaborators{Searcher: client, Remote: client}, nil
	}
}

func runProgress(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.RequireStoryGraph(); err != nil {
		return err
	}
	log := logger.Get()
	profile := c.String("profile")

	library := audible.NewLibrary(cfg.Audible.ExportPath, log)
	if !c.Bool("skip-export") {
		if err := library.Export(c.Context); err != nil {
			return err
		}
	}
	observed, err := library.InProgress()
	if err != nil {
		return fmt.Errorf("failed to read library export: %w", err)
	}

	db, err := database.New(cfg.Paths.DatabaseFile, log)
	if err != nil {
		return fmt.Errorf("failed to open run history database: %w", err)
	}
	defer func() { _ = db.Close() }()

	store := state.Load(cfg.StatePath(profile), log)

	var session *browser.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	summary, runErr := newService(cfg, log).RunProgress(
		observed, store, storygraphConnect(c, cfg, log, &session), cfg.Sync.DryRun,
	)
	recordRun(db, profile, summary, log)
	return runErr
}

func runRead(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.RequireGoodreads(); err != nil {
		return err
	}

	seedBefore := c.Timestamp("seed-before")
	if seedBefore == nil {
		// Seed runs never write to StoryGraph, so they are the one mode
		// that works without its credentials.
		if err := cfg.RequireStoryGraph(); err != nil {
			return err
		}
	}

	log := logger.Get()
	profile := c.String("profile")

	db, err := database.New(cfg.Paths.DatabaseFile, log)
	if err != nil {
		return fmt.Errorf("failed to open run history database: %w", err)
	}
	defer func() { _ = db.Close() }()

	store := state.Load(cfg.StatePath(profile), log)

	session, err := browser.NewSession(c.Context, browserOptions(cfg), log)
	if err != nil {
		return err
	}
	defer session.Close()

	scraper := goodreads.NewScraper(session, log)
	err = scraper.EnsureAuthenticated(goodreads.Credentials{
		Email:    cfg.Goodreads.Email,
		Password: cfg.Goodreads.Password,
	})
	if err != nil {
		return err
	}

	stubs, err := scraper.ReadBooks()
	if err != nil {
		return fmt.Errorf("failed to scrape read shelf: %w", err)
	}

	// The scrape session doubles as the StoryGraph session; the detail
	// phase is finished before the connect closure ever navigates away.
	summary, runErr := newService(cfg, log).RunRead(
		stubs, scraper.ReviewDetails, store,
		storygraphConnect(c, cfg, log, &session),
		cfg.Sync.DryRun, seedBefore,
	)
	recordRun(db, profile, summary, log)
	return runErr
}

func showRuns(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get()

	db, err := database.New(cfg.Paths.DatabaseFile, log)
	if err != nil {
		return fmt.Errorf("failed to open run history database: %w", err)
	}
	defer func() { _ = db.Close() }()

	runs, err := db.RecentRuns(c.String("profile"), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to query run history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded for this profile.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %-8s %-7s ok=%d skip=%d fail=%d unchanged=%d (%s)\n",
			run.StartedAt.Format(time.RFC3339),
			run.Flow,
			run.Mode,
			run.Succeeded,
			run.Skipped,
			run.Failed,
			run.Unchanged,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
		)
		for _, outcome := range run.Outcomes {
			if outcome.Outcome == "unchanged" {
				continue
			}
			line := fmt.Sprintf("    %-9s %s", outcome.Outcome, outcome.Title)
			if outcome.Detail != "" {
				line += " - " + outcome.Detail
			}
			fmt.Println(line)
		}
	}
	return nil
}

// recordRun persists a run summary; history failures never fail the
// sync itself.
func recordRun(db *database.Database, profile string, summary *sync.Summary, log *logger.Logger) {
	if summary == nil {
		return
	}

	run := &database.RunRecord{
		Profile:    profile,
		Flow:       summary.Flow,
		Mode:       summary.Mode,
		StartedAt:  summary.Started,
		FinishedAt: summary.Finished,
		Succeeded:  summary.Succeeded,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		Unchanged:  summary.Unchanged,
	}
	for _, outcome := range summary.Outcomes {
		run.Outcomes = append(run.Outcomes, database.BookOutcome{
			Key:     outcome.Key,
			Title:   outcome.Title,
			Outcome: outcome.Result,
			Detail:  outcome.Detail,
		})
	}

	if err := db.RecordRun(run); err != nil {
		log.Warn("Failed to record run history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
