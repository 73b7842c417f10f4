package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/triage"
)

type AlertsCmd struct {
	flags *Flags
	app   *triage.App
}

// NewAlertsCmd creates a new alerts command
func NewAlertsCmd(flags *Flags, app *triage.App) *AlertsCmd {
	return &AlertsCmd{flags: flags, app: app}
}

// Register adds the alerts command group to the application
func (cmd *AlertsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "alerts",
		Usage:     "Show or clear alert history",
		UsageText: "triage alerts [clear]",
		Action:    cmd.run,
	})

	return app
}

func (cmd *AlertsCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().First() == "clear" {
		if err := cmd.app.History.Clear(ctx); err != nil {
			return fmt.Errorf("clear alert history: %w", err)
		}
		fmt.Fprintln(c.Root().Writer, "Alert history cleared")
		return nil
	}

	notifications, err := cmd.app.History.List(ctx)
	if err != nil {
		return fmt.Errorf("list alert history: %w", err)
	}
	if len(notifications) == 0 {
		fmt.Fprintf(os.Stderr, "No alerts recorded\n")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tLEVEL\tMESSAGE")
	for _, n := range notifications {
		fmt.Fprintf(w, "%s\t%s\t%s\n", n.CreatedAt.Format(time.DateTime), n.Level, n.Message)
	}
	return w.Flush()
}
