package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/seatwatch/internal/config"
	"github.com/hpungsan/seatwatch/internal/db"
	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/logging"
	"github.com/hpungsan/seatwatch/internal/mcp"
	"github.com/hpungsan/seatwatch/internal/notify"
	"github.com/hpungsan/seatwatch/internal/ops"
	"github.com/hpungsan/seatwatch/internal/probe"
	"github.com/hpungsan/seatwatch/internal/store"
	"github.com/hpungsan/seatwatch/internal/viewer"
	"github.com/hpungsan/seatwatch/internal/web"
)

// newCLIApp creates the CLI application with all commands. cfg may be nil
// when only help or version output is needed.
func newCLIApp(cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "seatwatch",
		Usage:   "Event seat availability monitor",
		Version: Version,
		Commands: []*cli.Command{
			checkCmd(cfg),
			statusCmd(cfg),
			historyCmd(cfg),
			serveCmd(cfg, baseDir),
			mcpCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// checkCmd creates the check command: one collector run.
func checkCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Observe the event page once, update the status document, and notify on change",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "document", Aliases: []string{"d"}, Usage: "Status document path (defaults to document_path)"},
			&cli.StringFlag{Name: "event-url", Usage: "Event page URL (defaults to event_url)"},
		},
		Action: func(c *cli.Context) error {
			conf := *cfg
			if v := c.String("document"); v != "" {
				conf.DocumentPath = v
			}
			if v := c.String("event-url"); v != "" {
				conf.EventURL = v
			}
			if err := conf.Validate(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			if err := ops.ValidateDocumentPath(conf.DocumentPath); err != nil {
				return outputError(err)
			}

			log, err := logging.NewFromConfig(conf.Log)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			log = log.With("command", "check")

			client := &http.Client{Timeout: conf.HTTPTimeout()}
			observer, err := probe.New(probe.Config{
				EventURL:  conf.EventURL,
				Pattern:   regexp.MustCompile(conf.Pattern),
				UserAgent: conf.UserAgent,
				Location:  conf.Location(),
				Timeout:   conf.HTTPTimeout(),
			}, client)
			if err != nil {
				return outputError(err)
			}

			notifier, err := notify.FromConfig(&conf, client)
			if err != nil {
				log.Warn("notifier setup incomplete", "error", err)
			}
			defer func() {
				if err := notifier.Close(); err != nil {
					log.Warn("notifier close failed", "error", err)
				}
			}()
			if notifier.Len() == 0 {
				log.Info("no notifiers configured; changes are only persisted")
			} else {
				log.Info("notifiers configured", "notifiers", notifier.Names())
			}

			output, err := ops.Check(c.Context, ops.Collector{
				Observer: observer,
				Store:    store.NewFileStore(conf.DocumentPath),
				Notifier: notifier,
				Logger:   log,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current snapshot and the change it implies",
		Flags: []cli.Flag{sourceFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Current(c.Context, sourceFor(c, cfg))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent readings, newest first",
		Flags: []cli.Flag{
			sourceFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Maximum entries (max 50)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(c.Context, sourceFor(c, cfg), ops.HistoryInput{Limit: c.Int("limit")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command: the long-lived viewer.
func serveCmd(cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local viewer web UI",
		Flags: []cli.Flag{
			sourceFlag(),
			&cli.StringFlag{Name: "bind", Usage: "Bind address (defaults to viewer.bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (defaults to viewer.port)"},
		},
		Action: func(c *cli.Context) error {
			conf := *cfg
			if v := c.String("source"); v != "" {
				conf.Viewer.Source = v
			}
			if v := c.String("bind"); v != "" {
				conf.Viewer.Bind = v
			}
			if c.IsSet("port") {
				conf.Viewer.Port = c.Int("port")
			}
			if err := conf.Validate(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			log, err := logging.NewFromConfig(conf.Log)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			log = log.With("command", "serve")

			database, err := db.Init(baseDir)
			if err != nil {
				return outputError(errors.NewInternal(fmt.Errorf("initialize database: %w", err)))
			}
			defer database.Close()

			src := store.NewSource(conf.ViewerSource(), &http.Client{Timeout: conf.HTTPTimeout()})
			sqlStore := &viewer.SQLStore{DB: database}
			ctrl := viewer.NewController(viewer.Options{
				Source:        src,
				Settings:      sqlStore,
				Feed:          sqlStore,
				Logger:        log,
				CheckInterval: time.Duration(conf.Viewer.CheckIntervalMinutes) * time.Minute,
				FeedRetention: time.Duration(conf.Viewer.FeedRetentionDays) * 24 * time.Hour,
			})

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var watchPath string
			if fs, ok := src.(*store.FileSource); ok {
				watchPath = fs.Path
			}
			sched := viewer.NewScheduler(ctrl, time.Duration(conf.Viewer.RefreshMinutes)*time.Minute, watchPath, log)
			if err := sched.Start(ctx); err != nil {
				return outputError(errors.NewInternal(err))
			}
			defer sched.Stop()

			srv, err := web.NewServer(ctrl, &conf, Version, log)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(ctx, srv, log); err != nil && err != http.ErrServerClosed {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command: a read-only stdio MCP server.
func mcpCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the status document to agents over MCP stdio",
		Flags: []cli.Flag{sourceFlag()},
		Action: func(c *cli.Context) error {
			// Stdout carries the MCP stdio transport.
			logCfg := cfg.Log
			if logCfg.Output == "stdout" {
				logCfg.Output = "stderr"
			}
			log, err := logging.NewFromConfig(logCfg)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
				log.Warn("unknown tools in disabled_tools", "tools", unknown, "known", mcp.AllToolNames())
			}
			if err := mcp.Run(sourceFor(c, cfg), cfg, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

func sourceFlag() cli.Flag {
	return &cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Status document path or URL (defaults to viewer.source)"}
}

// sourceFor resolves the read-only document source for a command.
func sourceFor(c *cli.Context, cfg *config.Config) store.Source {
	location := cfg.ViewerSource()
	if v := c.String("source"); v != "" {
		location = v
	}
	return store.NewSource(location, &http.Client{Timeout: cfg.HTTPTimeout()})
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if wErr, ok := err.(*errors.WatchError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", wErr.Code, wErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
