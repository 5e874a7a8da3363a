package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
)

func newClinicsCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinics",
		Short: "Manage clinic configuration",
	}
	cmd.AddCommand(newClinicsSeedCmd(open), newClinicsShowCmd(open))
	return cmd
}

func newClinicsSeedCmd(open appOpener) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write clinic profiles from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := clinic.LoadProfiles(file)
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, app *bootstrap.App) error {
				if err := clinic.Seed(ctx, app.Clinics, profiles); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				for _, p := range profiles {
					fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (%s)\n", p.ID, p.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "clinic profiles YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newClinicsShowCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <clinic-id>",
		Short: "Print the stored configuration of a clinic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *bootstrap.App) error {
				cfg, err := app.Clinics.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cfg)
			})
		},
	}
}
