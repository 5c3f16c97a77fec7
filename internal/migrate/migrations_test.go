package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"payops/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(ctx, conn, db.SQLite))
	require.NoError(t, Migrate(ctx, conn, db.SQLite))

	v, err := Version(ctx, conn, db.SQLite)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	for _, table := range []string{"contractors", "projects", "time_entries", "payments", "events", "actor_roles", "api_keys"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestLinkedEntryMustBeApproved(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, Migrate(ctx, conn, db.SQLite))

	_, err = conn.ExecContext(ctx, `INSERT INTO contractors(id,first_name,last_name,email,hourly_rate,created_at,updated_at) VALUES ('c1','A','B','a@b.c','20','t','t')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO payments(id,contractor_id,period_start,period_end,total_hours,hourly_rate,gross_amount,net_amount,created_at,updated_at) VALUES ('p1','c1','2026-01-01','2026-01-01','1','20','20','20','t','t')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO time_entries(id,contractor_id,date,total_hours,approved,payment_id,created_at) VALUES ('e1','c1','2026-01-01','1',0,'p1','t')`)
	require.Error(t, err)
}
