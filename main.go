package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/client"
	"github.com/colonyops/triage/internal/commands"
	"github.com/colonyops/triage/internal/core/config"
	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/data/db"
	"github.com/colonyops/triage/internal/data/stores"
	"github.com/colonyops/triage/internal/data/topics"
	"github.com/colonyops/triage/internal/triage"
	"github.com/colonyops/triage/internal/triage/sweep"
	"github.com/colonyops/triage/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, build() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser   func()
		triageApp   = &triage.App{}
		database    *db.DB
		watcher     *topics.Watcher
		sweepCancel context.CancelFunc
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "triage",
		Usage:     "Keep your approval queue in view",
		UsageText: "triage [global options] command [command options]",
		Description: `Triage mirrors the approval queues you are entitled to act on and keeps
them synchronized in the background: new items get flagged, approvals and
rejections apply instantly, and a helper process can poll on your behalf.

Run 'triage' with no arguments to open the interactive queue view.
Run 'triage watch' to start the background helper.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("TRIAGE_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/triage.log)",
				Sources:     cli.EnvVars("TRIAGE_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TRIAGE_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("TRIAGE_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := os.MkdirAll(flags.DataDir, 0o755); err != nil {
				return ctx, fmt.Errorf("create data directory: %w", err)
			}

			// Always log to a file; use explicit path or default to <datadir>/triage.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "triage.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}
			flags.Config = cfg

			// Open database connection
			database, err = db.Open(cfg.DataDir, db.OpenOptions{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
			})
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			// Create stores
			kvStore := stores.NewKVStore(database)
			notifyStore := stores.NewNotifyStore(database)

			// Start background KV sweep goroutine
			sweepCtx, cancel := context.WithCancel(context.Background())
			sweepCancel = cancel
			go sweep.Start(sweepCtx, kvStore, 5*time.Minute)

			// Cross-process topics: helper snapshots plus heartbeat
			topicsDir := filepath.Join(cfg.DataDir, "topics")
			channel, err := topics.NewChannel(topicsDir)
			if err != nil {
				return ctx, fmt.Errorf("open topics channel: %w", err)
			}
			watcher, err = topics.NewWatcher(topicsDir)
			if err != nil {
				return ctx, fmt.Errorf("open topics watcher: %w", err)
			}

			// Remote clients
			clientCfg := client.Config{
				BaseURL: cfg.Server.URL,
				Token:   cfg.Server.Token,
			}
			source := client.NewDocumentSource(clientCfg)
			actions := client.NewActionService(clientCfg)

			// Engine assembly
			var (
				bus   = eventbus.New(128)
				clock = triage.NewClock()
				seq   = &triage.Sequence{}
			)
			store := triage.NewStore(actions, cfg.Actor, clock, cfg.Sync.ActionTimeout)
			dispatcher := triage.NewDispatcher(
				triage.DispatcherOptions{
					MarkerTTL: cfg.Alerts.MarkerTTL,
					Suppress:  cfg.Alerts.Suppress,
					Sound:     cfg.Alerts.Sound,
					Desktop:   cfg.Alerts.Desktop,
				},
				notify.BeeepSink{}, notifyStore, bus, kvStore, clock,
			)
			engine := triage.NewEngine(triage.EngineDeps{
				Fetcher:     triage.NewFetcher(source, cfg.Actor, seq, clock),
				Store:       store,
				Coordinator: triage.NewCoordinator(channel, cfg.Helper.Categories, cfg.Helper.HeartbeatWindow, clock),
				Dispatcher:  dispatcher,
				Bus:         bus,
				Watcher:     watcher,
				Channel:     channel,
				Entitled:    cfg.Categories,
				Seq:         seq,
				Prefs:       kvStore,
				Periods: triage.SchedulerPeriods{
					Active:     cfg.Sync.ActivePeriod,
					Background: cfg.Sync.BackgroundPeriod,
					Dormant:    cfg.Sync.DormantPeriod,
					Staleness:  cfg.Sync.Staleness,
				},
				Clock: clock,
			})

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*triageApp = *triage.NewApp(cfg, engine, bus, source, actions, channel, notifyStore, kvStore, database, version)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if sweepCancel != nil {
				sweepCancel()
			}
			if watcher != nil {
				_ = watcher.Close()
			}
			if database != nil {
				_ = database.Close()
			}
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	tuiCmd := commands.NewTuiCmd(flags, triageApp)
	app.Action = tuiCmd.Run

	commands.NewLsCmd(flags, triageApp).Register(app)
	commands.NewShowCmd(flags, triageApp).Register(app)
	commands.NewApproveCmd(flags, triageApp).Register(app)
	commands.NewRejectCmd(flags, triageApp).Register(app)
	commands.NewWatchCmd(flags, triageApp).Register(app)
	commands.NewMuteCmd(flags, triageApp).Register(app)
	commands.NewAlertsCmd(flags, triageApp).Register(app)
	commands.NewConfigValidateCmd(flags).Register(app)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
