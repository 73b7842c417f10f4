package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/core/messaging"
	"github.com/colonyops/triage/internal/triage"
)

type WatchCmd struct {
	flags *Flags
	app   *triage.App

	// flags
	interval time.Duration
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags, app *triage.App) *WatchCmd {
	return &WatchCmd{flags: flags, app: app}
}

// Register adds the watch command to the application
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Run the background helper process",
		UsageText: "triage watch [--interval <duration>]",
		Description: `Polls the configured helper categories on a fixed interval and
publishes the results plus a heartbeat for foreground instances to pick
up. Foreground clients skip those categories while the heartbeat is
fresh.

Runs until interrupted.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "interval",
				Aliases:     []string{"i"},
				Usage:       "poll interval (defaults to helper.interval from config)",
				Destination: &cmd.interval,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.app.Config
	if len(cfg.Helper.Categories) == 0 {
		return fmt.Errorf("no helper categories configured; set helper.categories in the config file")
	}

	interval := cmd.interval
	if interval <= 0 {
		interval = cfg.Helper.Interval
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("categories", len(cfg.Helper.Categories)).
		Dur("interval", interval).
		Msg("helper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First cycle runs immediately; the ticker paces the rest.
	cmd.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("helper stopped")
			return nil
		case <-ticker.C:
			cmd.cycle(ctx)
		}
	}
}

// cycle polls every helper category and publishes the results. Publishing
// the heartbeat last means a fresh heartbeat always implies fresh topics.
func (cmd *WatchCmd) cycle(ctx context.Context) {
	cfg := cmd.app.Config

	for _, cat := range cfg.Helper.Categories {
		items, err := cmd.app.Source.ListPending(ctx, cfg.Actor, cat)
		if err != nil {
			log.Warn().Err(err).Str("category", string(cat)).Msg("helper fetch failed")
			continue
		}
		err = cmd.app.Channel.PublishSnapshot(ctx, messaging.SnapshotMessage{
			Category:    cat,
			Items:       items,
			PublishedAt: time.Now(),
		})
		if err != nil {
			log.Warn().Err(err).Str("category", string(cat)).Msg("publish snapshot failed")
		}
	}

	err := cmd.app.Channel.PublishHeartbeat(ctx, messaging.Heartbeat{
		At:         time.Now(),
		PID:        os.Getpid(),
		Categories: cfg.Helper.Categories,
	})
	if err != nil {
		log.Warn().Err(err).Msg("publish heartbeat failed")
	}
}
