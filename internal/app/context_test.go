package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"payops/internal/config"
	"payops/internal/migrate"
)

func TestOpenMigratesDefaultWorkspace(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, Options{Workspace: t.TempDir(), LogLevel: "error"})
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, "sqlite", a.Config.Database.Driver)
	require.Equal(t, "error", a.Config.Log.Level)
	v, err := migrate.Version(ctx, a.DB, a.Dialect)
	require.NoError(t, err)
	require.Positive(t, v)

	proposals, err := a.Engine.ComputeProposals(ctx)
	require.NoError(t, err)
	require.Empty(t, proposals)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	workspace := t.TempDir()
	cfg := `log:
  level: warn
  format: json
auth:
  ops_domains: [payops.example]
  roles:
    ops: [payments.create]
    contractor: [self.read]
`
	require.NoError(t, os.WriteFile(config.Path(workspace), []byte(cfg), 0o644))

	a, err := Open(context.Background(), Options{Workspace: workspace})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, "json", a.Config.Log.Format)
	require.True(t, a.Policy.IsOps("lead@payops.example"))
}

func TestOpenRejectsInvalidOverride(t *testing.T) {
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), Driver: "mysql"})
	require.Error(t, err)
}
