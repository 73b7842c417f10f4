package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/triage/internal/core/queue"
	"github.com/colonyops/triage/internal/triage"
)

type RejectCmd struct {
	flags *Flags
	app   *triage.App

	// flags
	comment string
}

// NewRejectCmd creates a new reject command
func NewRejectCmd(flags *Flags, app *triage.App) *RejectCmd {
	return &RejectCmd{flags: flags, app: app}
}

// Register adds the reject command to the application
func (cmd *RejectCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "reject",
		Usage:     "Reject a pending item",
		UsageText: "triage reject <item-id> [--comment <text>]",
		Description: `Rejects a pending item. A comment is required; when not given via
--comment an interactive form asks for one.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "comment",
				Aliases:     []string{"m"},
				Usage:       "rejection comment passed to the backend",
				Destination: &cmd.comment,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RejectCmd) run(ctx context.Context, c *cli.Command) error {
	id, err := parseItemID(c)
	if err != nil {
		return err
	}

	if cmd.comment == "" {
		if err := cmd.runForm(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return fmt.Errorf("form: %w", err)
		}
	}

	cmd.app.Engine.Tick(ctx)

	if err := cmd.app.Engine.ApplyAction(ctx, id, queue.ActionReject, cmd.comment); err != nil {
		return fmt.Errorf("reject item %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "Rejected item %d\n", id)
	return nil
}

func (cmd *RejectCmd) runForm() error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Rejection comment").
				Description("Sent to the requester with the decision").
				Validate(validateComment).
				Value(&cmd.comment),
		),
	).Run()
}

func validateComment(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("comment is required")
	}
	return nil
}
