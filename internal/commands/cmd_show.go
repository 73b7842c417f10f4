package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/colonyops/triage/internal/core/queue"
	"github.com/colonyops/triage/internal/triage"
	"github.com/colonyops/triage/pkg/iojson"
)

type ShowCmd struct {
	flags *Flags
	app   *triage.App

	// flags
	jsonOutput bool
}

// NewShowCmd creates a new show command
func NewShowCmd(flags *Flags, app *triage.App) *ShowCmd {
	return &ShowCmd{flags: flags, app: app}
}

// Register adds the show command to the application
func (cmd *ShowCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Show one pending item in detail",
		UsageText: "triage show <item-id> [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the raw item as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ShowCmd) run(ctx context.Context, c *cli.Command) error {
	id, err := parseItemID(c)
	if err != nil {
		return err
	}

	cmd.app.Engine.Tick(ctx)

	item, ok := cmd.app.Engine.Snapshot().Get(id)
	if !ok {
		return fmt.Errorf("item %d is not in the pending queue", id)
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, os.Stderr, item)
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(width, 100)),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	rendered, err := r.Render(itemMarkdown(item))
	if err != nil {
		return fmt.Errorf("render item: %w", err)
	}

	fmt.Fprint(c.Root().Writer, rendered)
	return nil
}

// itemMarkdown formats a pending item as a markdown document for terminal
// rendering.
func itemMarkdown(it queue.PendingItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", strings.ToUpper(string(it.Category)), it.DocumentNumber)
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| ID | %d |\n", it.ID)
	fmt.Fprintf(&b, "| Document | %s |\n", it.DocumentID)
	fmt.Fprintf(&b, "| Requested by | %s |\n", it.RequestedBy)
	fmt.Fprintf(&b, "| Requested at | %s |\n", it.RequestedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "| Amount | %.2f %s |\n", it.Amount, it.Currency)
	fmt.Fprintf(&b, "| Priority | %d |\n", it.Priority)
	fmt.Fprintf(&b, "| Workflow step | %s |\n", it.WorkflowStep)
	fmt.Fprintf(&b, "\nApprove with `triage approve %d`, reject with `triage reject %d`.\n", it.ID, it.ID)
	return b.String()
}
