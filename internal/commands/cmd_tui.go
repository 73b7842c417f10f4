package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/triage"
	"github.com/colonyops/triage/internal/triage/updatecheck"
	"github.com/colonyops/triage/internal/tui"
)

type TuiCmd struct {
	flags *Flags
	app   *triage.App
}

// NewTuiCmd creates a new tui command
func NewTuiCmd(flags *Flags, app *triage.App) *TuiCmd {
	return &TuiCmd{flags: flags, app: app}
}

// Run executes the TUI. Exported for use as default command.
func (cmd *TuiCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *TuiCmd) run(ctx context.Context, _ *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go cmd.app.Bus.Run(ctx)

	if err := cmd.app.Engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	// The queue view is the hot path for the whole TUI session.
	cmd.app.Engine.Scheduler().SetHotPath(true)

	// Non-blocking update check; a hit surfaces as a regular notification.
	go func() {
		result, err := updatecheck.Check(ctx, cmd.app.KV, cmd.app.Version)
		if err != nil || result == nil {
			return
		}
		cmd.app.Bus.PublishNotificationPublished(eventbus.NotificationPublishedPayload{
			Level:   notify.LevelInfo,
			Message: fmt.Sprintf("triage %s is available (current %s)", result.Latest, result.Current),
		})
	}()

	program := tea.NewProgram(
		tui.New(cmd.app),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)

	if _, err := program.Run(); err != nil {
		log.Error().Err(err).Msg("tui exited with error")
		return err
	}
	return nil
}
