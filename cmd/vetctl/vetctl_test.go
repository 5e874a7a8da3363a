package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vetclinic-ai-platform/internal/config"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// memoryOpener hands every command the same in-memory app so tests can
// inspect what a command wrote.
func memoryOpener(t *testing.T) (appOpener, *bootstrap.App) {
	t.Helper()
	cfg := &appconfig.Config{
		UseMemoryStore: true,
		UseMemoryQueue: true,
		WorkerCount:    1,
		TurnLockTTL:    time.Second,
		SweepBatchSize: 10,
	}
	app, err := bootstrap.Build(context.Background(), cfg, logging.Discard(), bootstrap.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return func(context.Context) (*bootstrap.App, error) { return app, nil }, app
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const profileYAML = `clinics:
  - id: clinic-norte
    name: Clínica Veterinaria Norte
    timezone: America/Bogota
    numbers: ["+576015550001"]
`

func TestClinicsSeedWritesProfiles(t *testing.T) {
	open, app := memoryOpener(t)
	path := filepath.Join(t.TempDir(), "clinics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profileYAML), 0o600))

	out, err := execute(newRootCmd(open), "clinics", "seed", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded clinic-norte")

	cfg, err := app.Clinics.Get(context.Background(), "clinic-norte")
	require.NoError(t, err)
	assert.Equal(t, "Clínica Veterinaria Norte", cfg.Name)

	out, err = execute(newRootCmd(open), "clinics", "show", "clinic-norte")
	require.NoError(t, err)
	assert.Contains(t, out, `"timezone": "America/Bogota"`)
}

func TestClinicsSeedRequiresFile(t *testing.T) {
	open, _ := memoryOpener(t)
	_, err := execute(newRootCmd(open), "clinics", "seed")
	assert.Error(t, err)
}

func TestFollowUpsRunAndSweepPrintReports(t *testing.T) {
	open, _ := memoryOpener(t)

	out, err := execute(newRootCmd(open), "followups", "run")
	require.NoError(t, err)
	assert.Contains(t, out, `"sent": 0`)

	out, err = execute(newRootCmd(open), "conversations", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"abandoned": 0`)
}

func TestEmergencyClearAccess(t *testing.T) {
	open, app := memoryOpener(t)
	ctx := context.Background()
	client, err := app.Clients.GetOrCreate(ctx, "clinic-1", "+573001112233", "Ana")
	require.NoError(t, err)
	_, err = app.Clients.RecordFalseAlarm(ctx, "clinic-1", client.ID, 1)
	require.NoError(t, err)

	out, err := execute(newRootCmd(open), "emergency", "clear-access", client.ID, "--clinic", "clinic-1")
	require.NoError(t, err)
	assert.Contains(t, out, "emergency access restored for "+client.ID)

	restored, err := app.Clients.Get(ctx, "clinic-1", client.ID)
	require.NoError(t, err)
	assert.False(t, restored.AccessRevoked)
	assert.Zero(t, restored.FalseAlarmCount)

	_, err = execute(newRootCmd(open), "emergency", "clear-access", "missing", "--clinic", "clinic-1")
	assert.Error(t, err)
}

type fakeMigrator struct {
	up      error
	steps   []int
	forced  []int
	version uint
	verErr  error
	closed  bool
}

func (f *fakeMigrator) Up() error { return f.up }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = append(f.forced, v)
	return nil
}

func (f *fakeMigrator) Close() (error, error) {
	f.closed = true
	return nil, nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, f.verErr
}

func TestMigrateCommands(t *testing.T) {
	m := &fakeMigrator{up: migrate.ErrNoChange, version: 7}
	open := func() (migrator, error) { return m, nil }

	out, err := execute(newMigrateCmd(open), "up")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations complete")
	assert.True(t, m.closed)

	_, err = execute(newMigrateCmd(open), "down", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, []int{-2}, m.steps)

	out, err = execute(newMigrateCmd(open), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version 7")

	_, err = execute(newMigrateCmd(open), "force", "3")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, m.forced)

	_, err = execute(newMigrateCmd(open), "force", "three")
	assert.Error(t, err)
}

func TestMigrateSurfacesFailures(t *testing.T) {
	m := &fakeMigrator{up: errors.New("dirty database"), verErr: migrate.ErrNilVersion}
	open := func() (migrator, error) { return m, nil }

	_, err := execute(newMigrateCmd(open), "up")
	assert.ErrorContains(t, err, "dirty database")

	out, err := execute(newMigrateCmd(open), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations applied")

	_, err = execute(newMigrateCmd(func() (migrator, error) { return nil, errors.New("no db") }), "up")
	assert.ErrorContains(t, err, "no db")
}
