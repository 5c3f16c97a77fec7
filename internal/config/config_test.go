package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "/v1", cfg.Server.BasePath)
	require.Contains(t, cfg.Auth.Roles["ops"], "payments.create")
	require.Equal(t, []string{"self.read"}, cfg.Auth.Roles["contractor"])
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
auth:
  ops_domains: [verita-ai.com]
  ops_emails: [ops@example.com]
  roles:
    ops: [payments.create]
    contractor: [self.read]
webhooks:
  - url: http://localhost:9999/hook
    events: [payment.created]
`))
	require.NoError(t, err)
	require.Equal(t, []string{"verita-ai.com"}, cfg.Auth.OpsDomains)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.Len(t, cfg.Webhooks, 1)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"driver":       "database:\n  driver: mysql\n",
		"postgres dsn": "database:\n  driver: postgres\n",
		"log format":   "log:\n  format: xml\n",
		"ops domain":   "auth:\n  ops_domains: [ops@example.com]\n",
		"webhook url":  "webhooks:\n  - secret: s\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("log:\n  level: debug\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
}
