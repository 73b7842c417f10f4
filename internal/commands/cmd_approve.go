package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/core/queue"
	"github.com/colonyops/triage/internal/triage"
)

type ApproveCmd struct {
	flags *Flags
	app   *triage.App
}

// NewApproveCmd creates a new approve command
func NewApproveCmd(flags *Flags, app *triage.App) *ApproveCmd {
	return &ApproveCmd{flags: flags, app: app}
}

// Register adds the approve command to the application
func (cmd *ApproveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "approve",
		Usage:     "Approve a pending item",
		UsageText: "triage approve <item-id>",
		Action:    cmd.run,
	})

	return app
}

func (cmd *ApproveCmd) run(ctx context.Context, c *cli.Command) error {
	id, err := parseItemID(c)
	if err != nil {
		return err
	}

	// Apply needs a primed snapshot; a CLI invocation starts cold.
	cmd.app.Engine.Tick(ctx)

	if err := cmd.app.Engine.ApplyAction(ctx, id, queue.ActionApprove, ""); err != nil {
		return fmt.Errorf("approve item %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "Approved item %d\n", id)
	return nil
}

// parseItemID reads the single positional item-id argument.
func parseItemID(c *cli.Command) (queue.ItemID, error) {
	arg := c.Args().First()
	if arg == "" {
		return 0, fmt.Errorf("missing required argument: item-id")
	}
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q: %w", arg, err)
	}
	return queue.ItemID(n), nil
}
