package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/triage"
)

type MuteCmd struct {
	flags *Flags
	app   *triage.App
}

// NewMuteCmd creates a new mute command
func NewMuteCmd(flags *Flags, app *triage.App) *MuteCmd {
	return &MuteCmd{flags: flags, app: app}
}

// Register adds the mute command group to the application
func (cmd *MuteCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "mute",
		Usage:     "Control alert muting",
		UsageText: "triage mute [on|off|status]",
		Description: `Muting silences sound, desktop, and in-app alerts. New items still
appear in the queue with their "new" markers.

The preference persists across restarts. With no argument, prints the
current state.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *MuteCmd) run(ctx context.Context, c *cli.Command) error {
	d := cmd.app.Engine.Dispatcher()
	out := c.Root().Writer

	switch arg := c.Args().First(); arg {
	case "", "status":
		state := "off"
		if d.Muted(ctx) {
			state = "on"
		}
		fmt.Fprintf(out, "mute is %s\n", state)
		return nil
	case "on":
		if err := d.SetMuted(ctx, true); err != nil {
			return fmt.Errorf("set mute: %w", err)
		}
		fmt.Fprintln(out, "Alerts muted")
		return nil
	case "off":
		if err := d.SetMuted(ctx, false); err != nil {
			return fmt.Errorf("set mute: %w", err)
		}
		fmt.Fprintln(out, "Alerts unmuted")
		return nil
	default:
		return fmt.Errorf("unknown argument %q, want on, off, or status", arg)
	}
}
