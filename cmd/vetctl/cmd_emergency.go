package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
)

func newEmergencyCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Emergency escalation administration",
	}
	cmd.AddCommand(newClearAccessCmd(open))
	return cmd
}

func newClearAccessCmd(open appOpener) *cobra.Command {
	var clinicID, actor string
	cmd := &cobra.Command{
		Use:   "clear-access <client-id>",
		Short: "Restore emergency access for a client and reset the false alarm count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *bootstrap.App) error {
				client, err := app.Emergencies.ClearAccess(ctx, clinicID, args[0], actor)
				if err != nil {
					return fmt.Errorf("clear-access: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "emergency access restored for %s (%s)\n", client.ID, client.Phone)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clinicID, "clinic", "", "clinic id")
	cmd.Flags().StringVar(&actor, "actor", "vetctl", "staff member recorded in the audit log")
	_ = cmd.MarkFlagRequired("clinic")
	return cmd
}
