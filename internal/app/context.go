// Package app wires a workspace directory into a ready engine for the CLI and server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"gapline/internal/config"
	"gapline/internal/db"
	"gapline/internal/engine"
	"gapline/internal/migrate"
)

// Workspace holds what one command needs: the migrated database, the workspace config
// and an engine bound to both.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace directory, applies pending migrations and loads
// gapline.yml, falling back to the built-in defaults when the file is absent.
func Open(ctx context.Context, dir string, log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(dir), err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("workspace opened", zap.Int("schema_version", version), zap.String("db", db.Path(dir)))
	return &Workspace{
		Dir:    dir,
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg, log),
	}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// InitConfig writes the default gapline.yml into the workspace. An existing file is
// kept unless force is set.
func InitConfig(dir string, force bool) (string, error) {
	path := config.Path(dir)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !os.IsNotExist(err) {
		return path, err
	}
	if err := os.WriteFile(path, []byte(config.DefaultTemplate), 0o644); err != nil {
		return path, err
	}
	return path, nil
}
