// Package app wires the workspace together: database, migrations,
// configuration and the task catalog sync that keeps the catalog table
// aligned with sitework.yml.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/engine"
	"sitework/internal/migrate"
)

// App is an opened workspace.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Bootstrap opens the workspace database, applies pending migrations,
// loads sitework.yml when present and syncs the configured task catalog
// into the store. A missing config file is not an error; the workspace
// then runs with defaults and an empty catalog.
func Bootstrap(ctx context.Context, workspace, actorID string) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, cfg)
	if actorID == "" {
		actorID = "local-user"
	}
	if err := e.SyncTaskCatalog(ctx, actorID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sync task catalog: %w", err)
	}
	return &App{DB: conn, Config: cfg, Engine: e}, nil
}

// Close releases the workspace database.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
