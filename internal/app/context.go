package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"payops/internal/config"
	"payops/internal/db"
	"payops/internal/engine"
	"payops/internal/engine/auth"
	"payops/internal/logging"
	"payops/internal/migrate"
)

// Options override values from the workspace config. Empty fields keep the
// configured value.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	LogLevel  string
	LogFormat string
}

// App bundles everything a command or the server needs.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Dialect   db.Dialect
	Engine    engine.Engine
	Policy    *auth.Policy
	Logger    *slog.Logger
}

// Open loads the workspace config, installs the process logger, opens the
// database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.Init(cfg.Log.Level, cfg.Log.Format)

	dbCfg := db.Config{Workspace: opts.Workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	dialect := dbCfg.Dialect()
	if err := migrate.Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, dialect, cfg)
	e.Logger = logger
	logger.Debug("workspace opened", "workspace", opts.Workspace, "driver", dialect)
	return &App{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Dialect:   dialect,
		Engine:    e,
		Policy:    auth.NewPolicy(cfg.Auth, e.Repo),
		Logger:    logger,
	}, nil
}

func applyOverrides(cfg *config.Config, opts Options) {
	if v := strings.TrimSpace(opts.Driver); v != "" {
		cfg.Database.Driver = v
	}
	if v := strings.TrimSpace(opts.DSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(opts.LogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(opts.LogFormat); v != "" {
		cfg.Log.Format = v
	}
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
