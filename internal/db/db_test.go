package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `UPDATE time_entries SET payment_id=? WHERE id IN (?,?) AND payment_id IS NULL`
	require.Equal(t, q, Rebind(SQLite, q))
	require.Equal(t, `UPDATE time_entries SET payment_id=$1 WHERE id IN ($2,$3) AND payment_id IS NULL`, Rebind(Postgres, q))
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	require.FileExists(t, Path(dir))
}

func TestDialect(t *testing.T) {
	require.Equal(t, SQLite, Config{}.Dialect())
	require.Equal(t, Postgres, Config{Driver: "postgres"}.Dialect())
	_, err := Open(Config{Driver: "postgres"})
	require.Error(t, err)
}

func TestSQLiteDSNAddsLockingParams(t *testing.T) {
	require.Equal(t, "file:/tmp/x.db?_pragma=busy_timeout(10000)&_txlock=immediate", sqliteDSN("file:/tmp/x.db"))
	require.Equal(t, "file:/tmp/x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_txlock=immediate",
		sqliteDSN("file:/tmp/x.db?_pragma=foreign_keys(1)"))
	custom := "file:/tmp/x.db?_pragma=busy_timeout(500)&_txlock=deferred"
	require.Equal(t, custom, sqliteDSN(custom))
}

func TestOpenSQLiteCustomDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.db")
	conn, err := Open(Config{DSN: "file:" + path})
	require.NoError(t, err)
	defer conn.Close()
	var timeout int
	require.NoError(t, conn.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	require.Equal(t, 10000, timeout)
}
