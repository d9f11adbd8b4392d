// Package db opens the workspace-local SQLite store. All state lives
// under a .taskledger directory inside the workspace so a workspace can
// be moved or wiped as a unit.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".taskledger"
	dbFile   = "taskledger.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the state directory for a workspace and returns
// its path. An empty workspace means the current directory.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspaceRoot(workspace), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return dir, nil
}

// Open returns a handle to the workspace database, creating the state
// directory on first use. Foreign keys are enforced via DSN pragma.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspaceRoot(workspace), stateDir, dbFile)
}

func workspaceRoot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
