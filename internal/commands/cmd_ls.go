package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/core/queue"
	"github.com/colonyops/triage/internal/triage"
	"github.com/colonyops/triage/pkg/iojson"
)

type LsCmd struct {
	flags *Flags
	app   *triage.App

	// flags
	jsonOutput bool
	category   string
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags, app *triage.App) *LsCmd {
	return &LsCmd{flags: flags, app: app}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List pending approval items",
		UsageText: "triage ls [--json] [--category <name>]",
		Description: `Fetches the pending queue once and prints it as a table.

Use --json for JSONL output, one item per line.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
			&cli.StringFlag{
				Name:        "category",
				Aliases:     []string{"c"},
				Usage:       "only show one category",
				Destination: &cmd.category,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	cmd.app.Engine.Tick(ctx)

	snap := cmd.app.Engine.Snapshot()
	items := snap.Items
	if cmd.category != "" {
		filtered := items[:0:0]
		for _, it := range items {
			if it.Category == queue.Category(cmd.category) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	if len(items) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No pending items\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, it := range items {
			if err := iojson.WriteLine(out, it); err != nil {
				return fmt.Errorf("encode item: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tDOCUMENT\tREQUESTED BY\tAGE\tAMOUNT\tSTEP")
	now := time.Now()
	for _, it := range items {
		marker := ""
		if cmd.app.Engine.Dispatcher().IsNew(it.ID) {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%s\t%s\t%s\t%s\t%.2f %s\t%s\n",
			it.ID, marker,
			it.Category,
			it.DocumentNumber,
			it.RequestedBy,
			formatAge(now.Sub(it.RequestedAt)),
			it.Amount, it.Currency,
			it.WorkflowStep,
		)
	}
	return w.Flush()
}

// formatAge renders a duration as a compact single-unit age.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
