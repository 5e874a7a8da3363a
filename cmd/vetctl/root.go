package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/wolfman30/vetclinic-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
)

// appOpener builds the component graph a command works on.
type appOpener func(ctx context.Context) (*bootstrap.App, error)

func defaultOpener(ctx context.Context) (*bootstrap.App, error) {
	cfg, logger := mainconfig.Load()
	awsCfg, err := mainconfig.OptionalAWS(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(ctx, cfg, logger, bootstrap.Options{AWS: awsCfg})
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, open appOpener, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func newRootCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vetctl",
		Short:         "Operator tasks for the veterinary clinic assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newClinicsCmd(open),
		newFollowUpsCmd(open),
		newConversationsCmd(open),
		newEmergencyCmd(open),
		newMigrateCmd(defaultMigrator),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
