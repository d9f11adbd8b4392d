package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureWorkspaceCreatesStateDir(t *testing.T) {
	ws := t.TempDir()
	dir, err := EnsureWorkspace(ws)
	if err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	if dir != filepath.Join(ws, ".taskledger") {
		t.Fatalf("unexpected state dir: %s", dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("state dir not created: %v", err)
	}
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(Path(ws)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}

func TestPathDefaultsToCurrentDirectory(t *testing.T) {
	if got := Path(""); got != filepath.Join(".", ".taskledger", "taskledger.db") {
		t.Fatalf("unexpected path: %s", got)
	}
}
