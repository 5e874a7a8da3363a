package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
)

func newFollowUpsCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "followups",
		Short: "Post-visit follow-ups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send every due follow-up once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *bootstrap.App) error {
				report, err := app.FollowUpWorker().ProcessDue(ctx)
				if err != nil {
					return err
				}
				app.Deliverer.Drain(ctx)
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	})
	return cmd
}

func newConversationsCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Conversation maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Nudge, abandon or close idle conversations once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *bootstrap.App) error {
				report, err := app.SweepOnce(ctx)
				if err != nil {
					return err
				}
				app.Deliverer.Drain(ctx)
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	})
	return cmd
}
